// Package chain provides in-memory wallets and chain readers for tests.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

// ============================================================================
// Chain
// ============================================================================

// Chain is an in-memory ChainReader. Balances are keyed by lower-cased
// "holder" for native and "holder/token" for ERC-20s.
type Chain struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	code     map[string][]byte
	nonces   map[string]*big.Int

	// GasPriceWei is returned by GasPrice; nil makes GasPrice fail
	GasPriceWei *big.Int
	// PermitTokens lists tokens answering DOMAIN_SEPARATOR
	PermitTokens map[string]bool
	// ReadErr, when set, fails every ReadContract and GetBalance
	ReadErr error
	// ContractReads answers any other read by function name
	ContractReads map[string]func(args ...interface{}) (interface{}, error)

	Reads int
}

// NewChain creates an empty chain
func NewChain() *Chain {
	return &Chain{
		balances:      make(map[string]*big.Int),
		code:          make(map[string][]byte),
		nonces:        make(map[string]*big.Int),
		PermitTokens:  make(map[string]bool),
		ContractReads: make(map[string]func(args ...interface{}) (interface{}, error)),
		GasPriceWei:   big.NewInt(1_000_000_000),
	}
}

func balanceKey(holder, token string) string {
	if evm.IsZeroAddress(token) {
		return strings.ToLower(holder)
	}
	return strings.ToLower(holder) + "/" + strings.ToLower(token)
}

// SetBalance sets holder's balance of token ("" for native).
func (c *Chain) SetBalance(holder, token string, value *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[balanceKey(holder, token)] = new(big.Int).Set(value)
}

// SetCode deploys bytecode at address.
func (c *Chain) SetCode(address string, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[strings.ToLower(address)] = code
}

func (c *Chain) ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Reads++
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}

	switch functionName {
	case evm.FunctionDomainSeparator:
		if c.PermitTokens[strings.ToLower(address)] {
			return [32]byte{1}, nil
		}
		return nil, errors.New("execution reverted")
	case evm.FunctionNonces:
		owner := fmt.Sprint(args[0])
		if n, ok := c.nonces[strings.ToLower(owner)]; ok {
			return new(big.Int).Set(n), nil
		}
		return big.NewInt(0), nil
	case evm.FunctionBalanceOf:
		holder := fmt.Sprint(args[0])
		if v, ok := c.balances[balanceKey(holder, address)]; ok {
			return new(big.Int).Set(v), nil
		}
		return big.NewInt(0), nil
	}

	if fn, ok := c.ContractReads[functionName]; ok {
		return fn(args...)
	}
	return nil, fmt.Errorf("unexpected read %s", functionName)
}

func (c *Chain) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Reads++
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	if v, ok := c.balances[balanceKey(address, tokenAddress)]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (c *Chain) GetCode(ctx context.Context, address string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code[strings.ToLower(address)], nil
}

func (c *Chain) GasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GasPriceWei == nil {
		return nil, errors.New("gas price unavailable")
	}
	return new(big.Int).Set(c.GasPriceWei), nil
}

// ============================================================================
// Wallet
// ============================================================================

// Wallet is a key-backed wallet session that records the calls it sends.
type Wallet struct {
	*Chain

	mu        sync.Mutex
	key       *ecdsa.PrivateKey
	address   string
	connected bool
	chainID   fund.ChainID

	// SwitchErr fails SwitchChain
	SwitchErr error
	// SignErr fails SignTypedData
	SignErr error
	// SendErr fails SendCall
	SendErr error
	// ReceiptStatus is returned by WaitForTransactionReceipt, default success
	ReceiptStatus uint64
	// ReceiptGate, if set, blocks receipts until it is closed
	ReceiptGate chan struct{}

	Calls    []evm.Call
	Switches []fund.ChainID
}

// NewWallet creates a connected wallet on chainID with a fresh key.
func NewWallet(chain *Chain, chainID fund.ChainID) *Wallet {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &Wallet{
		Chain:         chain,
		key:           key,
		address:       crypto.PubkeyToAddress(key.PublicKey).Hex(),
		connected:     true,
		chainID:       chainID,
		ReceiptStatus: evm.TxStatusSuccess,
	}
}

// Address returns the wallet address.
func (w *Wallet) Address() string {
	return w.address
}

// Disconnect drops the session.
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
}

func (w *Wallet) Account() fund.Account {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return fund.Account{}
	}
	return fund.Account{Address: w.address, Connected: true, ChainID: w.chainID}
}

func (w *Wallet) SwitchChain(ctx context.Context, chainID fund.ChainID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Switches = append(w.Switches, chainID)
	if w.SwitchErr != nil {
		return w.SwitchErr
	}
	w.chainID = chainID
	return nil
}

func (w *Wallet) SignTypedData(ctx context.Context, domain evm.TypedDataDomain, types map[string][]evm.TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error) {
	if w.SignErr != nil {
		return nil, w.SignErr
	}
	digest, err := evm.HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, w.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

func (w *Wallet) SendCall(ctx context.Context, call evm.Call) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.SendErr != nil {
		return "", w.SendErr
	}
	w.Calls = append(w.Calls, call)
	return fmt.Sprintf("0x%064x", len(w.Calls)), nil
}

func (w *Wallet) WaitForTransactionReceipt(ctx context.Context, txHash string) (*evm.TransactionReceipt, error) {
	if w.ReceiptGate != nil {
		select {
		case <-w.ReceiptGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &evm.TransactionReceipt{Status: w.ReceiptStatus, TxHash: txHash, BlockNumber: 1}, nil
}

// SentCalls returns a copy of the calls sent so far.
func (w *Wallet) SentCalls() []evm.Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]evm.Call(nil), w.Calls...)
}
