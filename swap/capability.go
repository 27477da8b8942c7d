// Package swap converts a donor's USDC into the native asset through the
// settlement protocol, choosing the least friction path the wallet allows.
package swap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

// Capability is what the donor's wallet and token can do without extra gas.
type Capability int

const (
	NotSupported Capability = iota
	SupportsPermit
	SupportsSmartWallet
)

func (c Capability) String() string {
	switch c {
	case SupportsPermit:
		return "permit"
	case SupportsSmartWallet:
		return "smart-wallet"
	default:
		return "not-supported"
	}
}

// MarshalText encodes the capability by name.
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Method is a swap execution path.
type Method string

const (
	MethodAccountAbstraction Method = "account-abstraction"
	MethodRelayer            Method = "relayer"
	MethodTraditional        Method = "traditional"
)

// Allowed reports whether m can run with capability c.
func (m Method) Allowed(c Capability) bool {
	switch m {
	case MethodAccountAbstraction:
		return c == SupportsSmartWallet
	case MethodRelayer:
		return c == SupportsPermit || c == SupportsSmartWallet
	case MethodTraditional:
		return true
	default:
		return false
	}
}

// SelectMethod picks account abstraction, then relayer, then traditional.
// A non-empty override wins when c allows it.
func SelectMethod(c Capability, override Method) Method {
	if override != "" && override.Allowed(c) {
		return override
	}
	switch c {
	case SupportsSmartWallet:
		return MethodAccountAbstraction
	case SupportsPermit:
		return MethodRelayer
	default:
		return MethodTraditional
	}
}

// PermitLookup answers whether a token implements EIP-2612 from an off-chain index.
type PermitLookup interface {
	SupportsPermit(ctx context.Context, chainID fund.ChainID, tokenAddress string) (bool, error)
}

// Prober detects the donor's Capability.
type Prober struct {
	reader   evm.ChainReader
	metadata PermitLookup
	chain    fund.ChainID
	logger   *zap.Logger
}

// NewProber creates a prober. metadata may be nil.
func NewProber(reader evm.ChainReader, metadata PermitLookup, chain fund.ChainID, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{reader: reader, metadata: metadata, chain: chain, logger: logger.Named("swap.probe")}
}

// Probe checks for contract code at owner, then a DOMAIN_SEPARATOR on token,
// then the metadata index. Read failures degrade to NotSupported.
func (p *Prober) Probe(ctx context.Context, owner, token string) Capability {
	code, err := p.reader.GetCode(ctx, owner)
	if err != nil {
		p.logger.Debug("code lookup failed", zap.String("owner", owner), zap.Error(err))
	} else if len(code) > 0 {
		return SupportsSmartWallet
	}

	_, err = p.reader.ReadContract(ctx, token, evm.ERC20ABI, evm.FunctionDomainSeparator)
	if err == nil {
		return SupportsPermit
	}
	p.logger.Debug("DOMAIN_SEPARATOR call failed", zap.String("token", token), zap.Error(err))

	if p.metadata != nil {
		ok, err := p.metadata.SupportsPermit(ctx, p.chain, token)
		if err != nil {
			p.logger.Debug("token metadata lookup failed", zap.String("token", token), zap.Error(err))
		} else if ok {
			return SupportsPermit
		}
	}
	return NotSupported
}

// errNoStrategy is returned when the selected method has no registered strategy.
func errNoStrategy(m Method) error {
	return fund.NewFundError(fund.ErrCodeConfig, fmt.Sprintf("Swap method %s is not available", m), nil)
}
