package fund

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// RequiredPrecision is the number of decimals a resolved native amount carries.
const RequiredPrecision = 6

// NativeDecimals is the precision of the chain's base currency.
const NativeDecimals = 18

// ResolveAmount converts a USD amount into the native amount at rate.
//
// Returns "" when usd is empty, not a number, or not positive, so callers can
// tell "nothing entered" apart from a real request. The result always has
// RequiredPrecision decimals.
func ResolveAmount(usd string, rate decimal.Decimal) string {
	amount, ok := ParsePositive(usd)
	if !ok || rate.Sign() <= 0 {
		return ""
	}
	return amount.DivRound(rate, RequiredPrecision).StringFixed(RequiredPrecision)
}

// ParseUnits converts a decimal string into its integer representation.
// Digits beyond decimals are truncated.
func ParseUnits(value string, decimals int32) (*big.Int, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return nil, false
	}
	return d.Shift(decimals).Truncate(0).BigInt(), true
}

// ParseEther converts an ETH amount string to wei.
func ParseEther(value string) (*big.Int, bool) {
	return ParseUnits(value, NativeDecimals)
}

// IsSufficient reports whether balance covers required.
// The comparison is done in wei; an empty requirement is never sufficient.
func IsSufficient(required string, balance *big.Int) bool {
	if required == "" || balance == nil {
		return false
	}
	wei, ok := ParseEther(required)
	if !ok {
		return false
	}
	return wei.Cmp(balance) <= 0
}

// NewContributionIntent derives an intent from what the donor typed.
func NewContributionIntent(usd string, rate decimal.Decimal, balance *big.Int) ContributionIntent {
	required := ResolveAmount(usd, rate)
	return ContributionIntent{
		USDAmount:  strings.TrimSpace(usd),
		Required:   required,
		Sufficient: IsSufficient(required, balance),
	}
}

// ParsePositive parses a strictly positive decimal amount.
func ParsePositive(value string) (decimal.Decimal, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	if d.Sign() <= 0 {
		return decimal.Zero, false
	}
	return d, true
}
