package fund

import (
	"errors"
	"fmt"
	"strings"
)

// FundError is a user-facing error raised by the donation flow.
// Message is safe to show directly to the donor.
type FundError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	err error
}

func (e *FundError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FundError) Unwrap() error {
	return e.err
}

// Is reports whether target is a FundError with the same code.
func (e *FundError) Is(target error) bool {
	t, ok := target.(*FundError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeWalletNotConnected  = "wallet_not_connected"
	ErrCodeNoAddress           = "no_address"
	ErrCodeChainMismatch       = "chain_mismatch"
	ErrCodeUnsupportedChain    = "unsupported_chain"
	ErrCodeConfig              = "config"
	ErrCodeUserRejected        = "user_rejected"
	ErrCodeInsufficientBalance = "insufficient_balance"
	ErrCodeRelayerUnavailable  = "relayer_unavailable"
	ErrCodeNetwork             = "network"
	ErrCodeGasEstimation       = "gas_estimation"
	ErrCodeOrderFailed         = "order_failed"
	ErrCodeInFlight            = "in_flight"
	ErrCodeInvalidAmount       = "invalid_amount"
	ErrCodeTransactionFailed   = "transaction_failed"
	ErrCodeInvalidRequest      = "invalid_request"
)

// Sentinels for errors.Is matching by code.
var (
	ErrWalletNotConnected  = &FundError{Code: ErrCodeWalletNotConnected, Message: "Wallet not connected"}
	ErrNoAddress           = &FundError{Code: ErrCodeNoAddress, Message: "No wallet address found"}
	ErrChainMismatch       = &FundError{Code: ErrCodeChainMismatch}
	ErrUnsupportedChain    = &FundError{Code: ErrCodeUnsupportedChain, Message: "Unsupported chain ID"}
	ErrConfig              = &FundError{Code: ErrCodeConfig}
	ErrUserRejected        = &FundError{Code: ErrCodeUserRejected, Message: "Transaction was cancelled by user"}
	ErrInsufficientBalance = &FundError{Code: ErrCodeInsufficientBalance}
	ErrInFlight            = &FundError{Code: ErrCodeInFlight, Message: "A transaction is already in progress"}
	ErrInvalidAmount       = &FundError{Code: ErrCodeInvalidAmount, Message: "Please enter a valid amount"}
)

// NewFundError creates a new fund error
func NewFundError(code, message string, details map[string]interface{}) *FundError {
	return &FundError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WrapFundError creates a fund error that keeps cause reachable through errors.Unwrap.
func WrapFundError(code, message string, cause error) *FundError {
	return &FundError{
		Code:    code,
		Message: message,
		err:     cause,
	}
}

// ChainMismatchError is returned when the wallet cannot be moved to the required chain.
func ChainMismatchError(required int64, cause error) *FundError {
	return &FundError{
		Code:    ErrCodeChainMismatch,
		Message: fmt.Sprintf("Please switch to network %d", required),
		Details: map[string]interface{}{"requiredChainId": required},
		err:     cause,
	}
}

// ConfigError is returned when a required identifier is missing.
func ConfigError(name string) *FundError {
	return &FundError{
		Code:    ErrCodeConfig,
		Message: fmt.Sprintf("%s is not configured", name),
		Details: map[string]interface{}{"setting": name},
	}
}

// CodeOf returns the FundError code in err's chain, or "".
func CodeOf(err error) string {
	var fe *FundError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// UserMessage returns the text to show the donor for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FundError
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}

var rejectionPhrases = []string{
	"user rejected",
	"user denied",
	"rejected by user",
	"user cancelled",
	"user canceled",
}

// IsUserRejection reports whether err came from the wallet declining a request.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if CodeOf(err) == ErrCodeUserRejected {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range rejectionPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
