package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	fundevm "github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

const (
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

type fakeRPC struct {
	mu sync.Mutex

	balance   *big.Int
	tokenBal  *big.Int
	code      []byte
	gasPrice  *big.Int
	nonce     uint64
	gasErr    error
	sent      []*types.Transaction
	receipts  map[common.Hash]*types.Receipt
	notFound  int
	callMsgs  []ethereum.CallMsg
	sendError error
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		balance:  big.NewInt(5_000_000_000_000_000),
		tokenBal: big.NewInt(25_500_000),
		gasPrice: big.NewInt(1_000_000_000),
		nonce:    7,
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeRPC) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeRPC) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return f.code, nil
}

func (f *fakeRPC) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.callMsgs = append(f.callMsgs, msg)
	f.mu.Unlock()
	parsed, err := abi.JSON(strings.NewReader(string(fundevm.ERC20ABI)))
	if err != nil {
		return nil, err
	}
	return parsed.Methods[fundevm.FunctionBalanceOf].Outputs.Pack(f.tokenBal)
}

func (f *fakeRPC) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.gasErr != nil {
		return 0, f.gasErr
	}
	return 65000, nil
}

func (f *fakeRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeRPC) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendError != nil {
		return f.sendError
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeRPC) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notFound > 0 {
		f.notFound--
		return nil, ethereum.NotFound
	}
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func newTestSigner(t *testing.T, rpc *fakeRPC) *Signer {
	t.Helper()
	s, err := NewSigner(testKey, map[fund.ChainID]RPCClient{8453: rpc, 84532: newFakeRPC()}, 8453,
		WithReceiptPollInterval(time.Millisecond))
	require.NoError(t, err)
	return s
}

func TestNewSigner(t *testing.T) {
	s := newTestSigner(t, newFakeRPC())
	assert.Equal(t, testAddress, s.Address())

	_, err := NewSigner("not-hex", map[fund.ChainID]RPCClient{8453: newFakeRPC()}, 8453)
	assert.Error(t, err)

	_, err = NewSigner(testKey, map[fund.ChainID]RPCClient{8453: newFakeRPC()}, 1)
	assert.Error(t, err)
}

func TestAccountAndSwitchChain(t *testing.T) {
	s := newTestSigner(t, newFakeRPC())
	assert.Equal(t, fund.Account{Address: testAddress, Connected: true, ChainID: 8453}, s.Account())

	require.NoError(t, s.SwitchChain(context.Background(), 84532))
	assert.Equal(t, fund.ChainID(84532), s.Account().ChainID)

	assert.ErrorIs(t, s.SwitchChain(context.Background(), 1), fund.ErrUnsupportedChain)
	assert.Equal(t, fund.ChainID(84532), s.Account().ChainID)
}

func TestSignTypedDataRecovers(t *testing.T) {
	s := newTestSigner(t, newFakeRPC())
	network, err := fundevm.GetNetworkConfig(8453)
	require.NoError(t, err)

	domain, fields, message := fundevm.PermitTypedData(network.DefaultAsset, network.ChainID, testAddress,
		fundevm.CowVaultRelayerAddress, big.NewInt(25_000_000), big.NewInt(0), big.NewInt(1893456000))
	sig, err := s.SignTypedData(context.Background(), domain, fields, "Permit", message)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	signer, err := fundevm.RecoverTypedDataSigner(domain, fields, "Permit", message, sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, signer)
}

func TestGetBalance(t *testing.T) {
	rpc := newFakeRPC()
	s := newTestSigner(t, rpc)
	ctx := context.Background()

	native, err := s.GetBalance(ctx, testAddress, "")
	require.NoError(t, err)
	assert.Equal(t, "5000000000000000", native.String())

	usdc, err := s.GetBalance(ctx, testAddress, fundevm.USDCAddress)
	require.NoError(t, err)
	assert.Equal(t, "25500000", usdc.String())
	require.Len(t, rpc.callMsgs, 1)
	assert.Equal(t, common.HexToAddress(fundevm.USDCAddress), *rpc.callMsgs[0].To)
}

func TestSendCall(t *testing.T) {
	rpc := newFakeRPC()
	s := newTestSigner(t, rpc)

	hash, err := s.SendCall(context.Background(), fundevm.Call{
		To:       fundevm.USDCAddress,
		ABI:      fundevm.ERC20ABI,
		Function: fundevm.FunctionApprove,
		Args:     []interface{}{common.HexToAddress(fundevm.CowVaultRelayerAddress), big.NewInt(25_000_000)},
	})
	require.NoError(t, err)
	require.Len(t, rpc.sent, 1)

	tx := rpc.sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(65000), tx.Gas())
	assert.Equal(t, "1000000000", tx.GasPrice().String())
	assert.Equal(t, common.HexToAddress(fundevm.USDCAddress), *tx.To())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), tx)
	require.NoError(t, err)
	assert.Equal(t, testAddress, from.Hex())
}

func TestSendCallGasFallback(t *testing.T) {
	rpc := newFakeRPC()
	rpc.gasErr = errors.New("execution reverted")
	s := newTestSigner(t, rpc)

	_, err := s.SendCall(context.Background(), fundevm.Call{
		To:       fundevm.JBMultiTerminalAddress,
		ABI:      fundevm.ERC20ABI,
		Function: fundevm.FunctionApprove,
		Args:     []interface{}{common.HexToAddress(fundevm.CowVaultRelayerAddress), big.NewInt(1)},
		Value:    big.NewInt(0),
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultGasLimit, rpc.sent[0].Gas())
}

func TestSendCallErrors(t *testing.T) {
	rpc := newFakeRPC()
	rpc.sendError = errors.New("insufficient funds for gas")
	s := newTestSigner(t, rpc)
	call := fundevm.Call{
		To:       fundevm.USDCAddress,
		ABI:      fundevm.ERC20ABI,
		Function: fundevm.FunctionApprove,
		Args:     []interface{}{common.HexToAddress(fundevm.CowVaultRelayerAddress), big.NewInt(1)},
	}

	_, err := s.SendCall(context.Background(), call)
	assert.ErrorContains(t, err, "insufficient funds for gas")

	call.Function = "transferFrom"
	_, err = s.SendCall(context.Background(), call)
	assert.ErrorContains(t, err, "failed to pack")
}

func TestWaitForTransactionReceipt(t *testing.T) {
	rpc := newFakeRPC()
	s := newTestSigner(t, rpc)
	hash := common.HexToHash("0x01")
	rpc.receipts[hash] = &types.Receipt{Status: 1, TxHash: hash, BlockNumber: big.NewInt(42), GasUsed: 50000}
	rpc.notFound = 2

	receipt, err := s.WaitForTransactionReceipt(context.Background(), hash.Hex())
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, uint64(42), receipt.BlockNumber)
	assert.Equal(t, uint64(50000), receipt.GasUsed)
}

func TestWaitForTransactionReceiptCancelled(t *testing.T) {
	s := newTestSigner(t, newFakeRPC())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.WaitForTransactionReceipt(ctx, "0x02")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
