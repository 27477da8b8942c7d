// Package payment sends the donor's native-asset contribution to the fund.
package payment

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

// DefaultMemo is attached to terminal payments
const DefaultMemo = "Marina Pickleball Community Fund contribution"

// Backend is where contributions are paid. It is implemented only by
// DirectContract and Terminal.
type Backend interface {
	// Name identifies the backend in logs and config
	Name() string
	validate() error
	call(ctx context.Context, reader evm.ChainReader, amount *big.Int, beneficiary string, logger *zap.Logger) (evm.Call, error)
}

// DirectContract pays the bespoke fund contract's contribute().
type DirectContract struct {
	Address string
}

func (d DirectContract) Name() string { return "direct" }

func (d DirectContract) validate() error {
	if d.Address == "" || !evm.IsValidAddress(d.Address) {
		return fund.ConfigError("contract address")
	}
	return nil
}

func (d DirectContract) call(ctx context.Context, reader evm.ChainReader, amount *big.Int, beneficiary string, logger *zap.Logger) (evm.Call, error) {
	return evm.Call{
		To:       evm.NormalizeAddress(d.Address),
		ABI:      evm.PickleballFundABI,
		Function: evm.FunctionContribute,
		Value:    amount,
	}, nil
}

// Terminal pays a Juicebox v4 project through its primary native terminal.
type Terminal struct {
	ProjectID uint64
	// Directory resolves the project's terminal, defaults to the Base JBDirectory
	Directory string
	// Fallback is used when the directory lookup fails, defaults to JBMultiTerminal
	Fallback string
	Memo     string
}

func (t Terminal) Name() string { return "terminal" }

func (t Terminal) validate() error {
	if t.ProjectID == 0 {
		return fund.ConfigError("project id")
	}
	return nil
}

// ResolveTerminal returns the project's primary terminal for the native token.
func (t Terminal) ResolveTerminal(ctx context.Context, reader evm.ChainReader, logger *zap.Logger) string {
	fallback := t.Fallback
	if fallback == "" {
		fallback = evm.JBMultiTerminalAddress
	}
	directory := t.Directory
	if directory == "" {
		directory = evm.JBDirectoryAddress
	}
	if reader == nil {
		return evm.NormalizeAddress(fallback)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	result, err := reader.ReadContract(ctx, directory, evm.JBDirectoryABI, evm.FunctionPrimaryTerminal,
		new(big.Int).SetUint64(t.ProjectID), common.HexToAddress(evm.JBNativeToken))
	if err != nil {
		logger.Debug("terminal lookup failed, using fallback", zap.Error(err))
		return evm.NormalizeAddress(fallback)
	}
	addr, ok := result.(common.Address)
	if !ok || addr == (common.Address{}) {
		return evm.NormalizeAddress(fallback)
	}
	return addr.Hex()
}

func (t Terminal) call(ctx context.Context, reader evm.ChainReader, amount *big.Int, beneficiary string, logger *zap.Logger) (evm.Call, error) {
	memo := t.Memo
	if memo == "" {
		memo = DefaultMemo
	}
	return evm.Call{
		To:       t.ResolveTerminal(ctx, reader, logger),
		ABI:      evm.JBMultiTerminalABI,
		Function: evm.FunctionPay,
		Args: []interface{}{
			new(big.Int).SetUint64(t.ProjectID),
			common.HexToAddress(evm.JBNativeToken),
			amount,
			common.HexToAddress(beneficiary),
			big.NewInt(0),
			memo,
			[]byte{},
		},
		Value: amount,
	}, nil
}
