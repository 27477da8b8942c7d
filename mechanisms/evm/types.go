package evm

import (
	"context"
	"math/big"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
)

// TypedDataDomain represents the EIP-712 domain separator
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField represents a field in EIP-712 typed data
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransactionReceipt represents the receipt of a mined transaction
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
	GasUsed     uint64 `json:"gasUsed"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r *TransactionReceipt) Succeeded() bool {
	return r != nil && r.Status == TxStatusSuccess
}

// AssetInfo contains information about an ERC20 token
type AssetInfo struct {
	Address  string
	Symbol   string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig contains network-specific configuration
type NetworkConfig struct {
	ChainID      *big.Int
	Name         string
	DefaultAsset AssetInfo
	ExplorerURL  string
}

// TxURL links a transaction on the block explorer.
func (c NetworkConfig) TxURL(hash string) string {
	return c.ExplorerURL + "/tx/" + hash
}

// Call is a single contract invocation.
type Call struct {
	To       string        `json:"to"`
	ABI      []byte        `json:"-"`
	Function string        `json:"function"`
	Args     []interface{} `json:"-"`
	// Value is the native amount attached, nil for none
	Value *big.Int `json:"value,omitempty"`
}

// ChainReader is read access to an EVM chain.
type ChainReader interface {
	// ReadContract reads data from a smart contract
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)

	// GetBalance gets the balance of an address for a token; an empty token means the native asset
	GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error)

	// GetCode returns the bytecode at the given address
	// Returns empty slice if address is an EOA or doesn't exist
	GetCode(ctx context.Context, address string) ([]byte, error)

	// GasPrice returns the network's suggested gas price in wei
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Wallet is the donor's connected wallet session.
type Wallet interface {
	// Account returns the current session state
	Account() fund.Account

	// SwitchChain asks the wallet to move to chainID
	SwitchChain(ctx context.Context, chainID fund.ChainID) error

	// SignTypedData signs EIP-712 typed data
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)

	// SendCall signs and broadcasts a contract call, returning its hash
	SendCall(ctx context.Context, call Call) (string, error)

	// WaitForTransactionReceipt waits for a transaction to be mined
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)
}

// RelayerSigner is the server-side key that pays gas on a donor's behalf.
type RelayerSigner interface {
	ChainReader

	// Address returns the relayer's address
	Address() string

	// SendCall signs and broadcasts a contract call, returning its hash
	SendCall(ctx context.Context, call Call) (string, error)

	// WaitForTransactionReceipt waits for a transaction to be mined
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)
}

// PermitSignature is an EIP-2612 signature split for the permit() call.
type PermitSignature struct {
	V        uint8  `json:"v"`
	R        string `json:"r"`
	S        string `json:"s"`
	Deadline string `json:"deadline"`
	Nonce    string `json:"nonce"`
}

// Permit is a signed EIP-2612 allowance.
type Permit struct {
	Owner     string          `json:"owner"`
	Spender   string          `json:"spender"`
	Token     string          `json:"token"`
	Value     string          `json:"value"`
	Signature PermitSignature `json:"signature"`
}
