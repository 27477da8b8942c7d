package swap

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

const EstimateGasLimit = 200000

var (
	// EstimateFallbackGasPrice is 1 gwei
	EstimateFallbackGasPrice = big.NewInt(1_000_000_000)

	EstimateMarkup = decimal.RequireFromString("1.1")
)

// GasPriceReader reports the network gas price.
type GasPriceReader interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// EstimateFee is the client-side relayer fee estimate in USDC, shown before
// the donor signs anything. The relayer quotes its own fee on submission.
func EstimateFee(ctx context.Context, reader GasPriceReader, ethUSD decimal.Decimal) decimal.Decimal {
	gasPrice := EstimateFallbackGasPrice
	if reader != nil {
		if p, err := reader.GasPrice(ctx); err == nil && p != nil && p.Sign() > 0 {
			gasPrice = p
		}
	}
	gasCost := new(big.Int).Mul(gasPrice, big.NewInt(EstimateGasLimit))
	return evm.FormatUnits(gasCost, evm.NativeDecimals).
		Mul(EstimateMarkup).
		Mul(ethUSD).
		Round(evm.DefaultDecimals)
}

type errorRule struct {
	match   func(msg string, err error) bool
	code    string
	message string
}

var errorRules = []errorRule{
	{
		match:   func(msg string, err error) bool { return fund.IsUserRejection(err) },
		code:    fund.ErrCodeUserRejected,
		message: "Transaction was cancelled by user",
	},
	{
		match:   func(msg string, err error) bool { return strings.Contains(msg, "insufficient") },
		code:    fund.ErrCodeInsufficientBalance,
		message: "Insufficient balance for swap or relayer has insufficient funds",
	},
	{
		match:   func(msg string, err error) bool { return strings.Contains(msg, "relayer") },
		code:    fund.ErrCodeRelayerUnavailable,
		message: "Relayer service temporarily unavailable",
	},
	{
		match: func(msg string, err error) bool {
			return strings.Contains(msg, "network") || errors.Is(err, context.DeadlineExceeded)
		},
		code:    fund.ErrCodeNetwork,
		message: "Network connection error - please check your connection",
	},
	{
		match:   func(msg string, err error) bool { return strings.Contains(msg, "gas") },
		code:    fund.ErrCodeGasEstimation,
		message: "Gas estimation failed - please try again",
	},
}

// ClassifyError maps a swap failure to the message shown to the donor.
func ClassifyError(err error) string {
	return classify(err).Message
}

func classify(err error) *fund.FundError {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range errorRules {
		if rule.match(msg, err) {
			return fund.WrapFundError(rule.code, rule.message, err)
		}
	}
	code := fund.CodeOf(err)
	if code == "" {
		code = fund.ErrCodeTransactionFailed
	}
	return fund.WrapFundError(code, "Swap failed: "+fund.UserMessage(err), err)
}
