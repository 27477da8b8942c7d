// Package relayer submits donor-signed permits and settlement orders while
// paying the gas from a funded server key.
package relayer

import (
	"math/big"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/pkg/cow"
)

// SwapRequest is the body of a gasless swap submission.
type SwapRequest struct {
	UserAddress string `json:"userAddress"`
	// USDCAmount is in base units (6 decimals)
	USDCAmount string `json:"usdcAmount"`
	// MinEthAmount is in wei
	MinEthAmount    string               `json:"minEthAmount"`
	Deadline        int64                `json:"deadline"`
	PermitSignature *evm.PermitSignature `json:"permitSignature"`
	Order           *cow.SignedOrder     `json:"order,omitempty"`
}

// SwapResponse is the relayer's answer to a SwapRequest.
//
// A simulated response never carries a transaction hash, order UID or
// explorer link. NetEthReceived is the order output less the relayer fee and
// GasUsed is the gas budgeted for the swap.
type SwapResponse struct {
	Success            bool   `json:"success"`
	OrderUID           string `json:"orderUid,omitempty"`
	PermitTxHash       string `json:"permitTxHash,omitempty"`
	RelayerFeeUSDC     string `json:"relayerFeeUSDC"`
	EstimatedEthOutput string `json:"estimatedEthOutput"`
	NetEthReceived     string `json:"netEthReceived"`
	GasUsed            uint64 `json:"gasUsed"`
	GasPriceGwei       string `json:"gasPrice"`
	ExplorerURL        string `json:"basescanUrl,omitempty"`
	Simulated          bool   `json:"simulated,omitempty"`
	SimulationID       string `json:"simulationId,omitempty"`
	Message            string `json:"message,omitempty"`
}

// Status describes the relayer account.
type Status struct {
	Address       string `json:"address"`
	BalanceWei    string `json:"balanceWei"`
	BalanceETH    string `json:"balanceEth"`
	MinBalanceETH string `json:"minBalanceEth"`
	Funded        bool   `json:"funded"`
	DemoMode      bool   `json:"demoMode"`
	ChainID       int64  `json:"chainId"`
}

var (
	ErrMissingParameters = fund.NewFundError(fund.ErrCodeInvalidRequest, "Missing required parameters", nil)
	ErrInvalidPermit     = fund.NewFundError(fund.ErrCodeInvalidRequest, "Invalid permit signature", nil)
	ErrInvalidOrder      = fund.NewFundError(fund.ErrCodeInvalidRequest, "Invalid order", nil)
	ErrPermitExpired     = fund.NewFundError(fund.ErrCodeInvalidRequest, "Permit deadline has passed", nil)
	ErrRelayerUnfunded   = fund.NewFundError(fund.ErrCodeRelayerUnavailable, "Relayer has insufficient funds", nil)
	ErrFeeExceedsAmount  = fund.NewFundError(fund.ErrCodeInsufficientBalance, "Swap amount does not cover the relayer fee", nil)
)

// Validate checks that every required field is present.
func (r *SwapRequest) Validate() error {
	if r == nil || r.UserAddress == "" || r.USDCAmount == "" || r.MinEthAmount == "" || r.Deadline == 0 || r.PermitSignature == nil {
		return ErrMissingParameters
	}
	if !evm.IsValidAddress(r.UserAddress) {
		return fund.NewFundError(fund.ErrCodeInvalidRequest, "Invalid user address", nil)
	}
	amount, ok := new(big.Int).SetString(r.USDCAmount, 10)
	if !ok || amount.Sign() <= 0 {
		return fund.ErrInvalidAmount
	}
	if minEth, ok := new(big.Int).SetString(r.MinEthAmount, 10); !ok || minEth.Sign() < 0 {
		return fund.ErrInvalidAmount
	}
	return nil
}
