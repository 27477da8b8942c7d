package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	fundevm "github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

// DefaultGasLimit is used when gas estimation fails.
const DefaultGasLimit = uint64(300000)

// DefaultReceiptPollInterval is how often WaitForTransactionReceipt polls.
const DefaultReceiptPollInterval = time.Second

// RPCClient is the subset of *ethclient.Client the signer uses.
type RPCClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Signer implements the wallet and relayer signer interfaces with an ECDSA key.
// It holds one RPC client per chain and tracks the currently selected chain,
// so SwitchChain behaves like a browser wallet switching networks.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address

	mu      sync.RWMutex
	clients map[fund.ChainID]RPCClient
	current fund.ChainID

	receiptPollInterval time.Duration
}

// Option configures a Signer
type Option func(*Signer)

// WithReceiptPollInterval overrides how often receipts are polled.
func WithReceiptPollInterval(d time.Duration) Option {
	return func(s *Signer) {
		if d > 0 {
			s.receiptPollInterval = d
		}
	}
}

// NewSigner creates a signer from a hex-encoded private key.
//
// Args:
//
//	privateKeyHex: Hex-encoded private key (with or without "0x" prefix)
//	clients: RPC client per supported chain
//	initial: The chain selected at start
//
// Returns:
//
//	*Signer ready for use as a Wallet or RelayerSigner
//	Error if the key is invalid or initial has no client
func NewSigner(privateKeyHex string, clients map[fund.ChainID]RPCClient, initial fund.ChainID, opts ...Option) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if _, ok := clients[initial]; !ok {
		return nil, fmt.Errorf("no RPC client for chain %d", initial)
	}

	s := &Signer{
		privateKey:          privateKey,
		address:             crypto.PubkeyToAddress(privateKey.PublicKey),
		clients:             clients,
		current:             initial,
		receiptPollInterval: DefaultReceiptPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dial connects to each RPC URL and returns a signer over them.
func Dial(ctx context.Context, privateKeyHex string, rpcURLs map[fund.ChainID]string, initial fund.ChainID, opts ...Option) (*Signer, error) {
	clients := make(map[fund.ChainID]RPCClient, len(rpcURLs))
	for chainID, url := range rpcURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to dial chain %d: %w", chainID, err)
		}
		clients[chainID] = client
	}
	return NewSigner(privateKeyHex, clients, initial, opts...)
}

// Address returns the Ethereum address of the signer.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// Account reports the signer as an always-connected session.
func (s *Signer) Account() fund.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fund.Account{
		Address:   s.address.Hex(),
		Connected: true,
		ChainID:   s.current,
	}
}

// SwitchChain selects the RPC client for chainID.
func (s *Signer) SwitchChain(ctx context.Context, chainID fund.ChainID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[chainID]; !ok {
		return fund.ErrUnsupportedChain
	}
	s.current = chainID
	return nil
}

func (s *Signer) client() (RPCClient, fund.ChainID) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[s.current], s.current
}

// SignTypedData signs EIP-712 typed data.
//
// Returns the 65-byte signature (r, s, v) with v in {27, 28}.
func (s *Signer) SignTypedData(
	ctx context.Context,
	domain fundevm.TypedDataDomain,
	types map[string][]fundevm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	digest, err := fundevm.HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Adjust v value for Ethereum (recovery ID 0/1 → 27/28)
	signature[64] += 27

	return signature, nil
}

// ReadContract reads data from a smart contract.
func (s *Signer) ReadContract(
	ctx context.Context,
	contractAddress string,
	abiBytes []byte,
	functionName string,
	args ...interface{},
) (interface{}, error) {
	client, _ := s.client()

	contractABI, err := abi.JSON(strings.NewReader(string(abiBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	addr := common.HexToAddress(contractAddress)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}

	outputs, err := contractABI.Unpack(functionName, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	if len(outputs) == 0 {
		return nil, nil
	}
	if len(outputs) == 1 {
		return outputs[0], nil
	}
	return outputs, nil
}

// GetBalance returns the native balance when tokenAddress is empty, otherwise balanceOf.
func (s *Signer) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	if fundevm.IsZeroAddress(tokenAddress) {
		client, _ := s.client()
		balance, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}

	result, err := s.ReadContract(ctx, tokenAddress, fundevm.ERC20ABI, fundevm.FunctionBalanceOf, common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	if balance, ok := result.(*big.Int); ok {
		return balance, nil
	}
	return nil, fmt.Errorf("unexpected balance type: %T", result)
}

// GetCode returns the bytecode deployed at address.
func (s *Signer) GetCode(ctx context.Context, address string) ([]byte, error) {
	client, _ := s.client()
	code, err := client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code: %w", err)
	}
	return code, nil
}

// GasPrice returns the suggested legacy gas price.
func (s *Signer) GasPrice(ctx context.Context) (*big.Int, error) {
	client, _ := s.client()
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

// SendCall packs, signs, and broadcasts a contract call on the current chain.
func (s *Signer) SendCall(ctx context.Context, call fundevm.Call) (string, error) {
	client, chainID := s.client()

	contractABI, err := abi.JSON(strings.NewReader(string(call.ABI)))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(call.Function, call.Args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack method call: %w", err)
	}

	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	to := common.HexToAddress(call.To)
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil || gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(int64(chainID))), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}

// WaitForTransactionReceipt polls until the transaction is mined or ctx ends.
func (s *Signer) WaitForTransactionReceipt(ctx context.Context, txHash string) (*fundevm.TransactionReceipt, error) {
	client, _ := s.client()
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(s.receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			out := &fundevm.TransactionReceipt{
				Status:  receipt.Status,
				TxHash:  receipt.TxHash.Hex(),
				GasUsed: receipt.GasUsed,
			}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
