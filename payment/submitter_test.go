package payment

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/test/mocks/chain"
)

const (
	base        = fund.ChainID(8453)
	fundAddress = "0x1111111111111111111111111111111111111111"
)

type recorder struct {
	mu      sync.Mutex
	records []fund.TransactionRecord
}

func (r *recorder) add(rec fund.TransactionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) statuses() []fund.TxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fund.TxStatus, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Status)
	}
	return out
}

func newDirect(t *testing.T, wallet *chain.Wallet) (*Submitter, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := NewSubmitter(wallet, wallet.Chain, Config{
		ChainID:  base,
		Backend:  DirectContract{Address: fundAddress},
		OnChange: rec.add,
	})
	return s, rec
}

func TestSubmitDirectContract(t *testing.T) {
	wallet := chain.NewWallet(chain.NewChain(), base)
	s, rec := newDirect(t, wallet)

	record, err := s.Submit(context.Background(), "0.029412", "")
	require.NoError(t, err)
	assert.Equal(t, fund.TxSuccess, record.Status)
	assert.NotEmpty(t, record.Hash)
	assert.Equal(t, []fund.TxStatus{fund.TxConnecting, fund.TxPending, fund.TxConfirming, fund.TxSuccess}, rec.statuses())

	calls := wallet.SentCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, evm.FunctionContribute, calls[0].Function)
	assert.Equal(t, evm.NormalizeAddress(fundAddress), calls[0].To)
	assert.Equal(t, "29412000000000000", calls[0].Value.String())
	assert.Empty(t, wallet.Switches)
}

func TestSubmitTerminal(t *testing.T) {
	resolved := "0x2222222222222222222222222222222222222222"

	t.Run("resolves primary terminal", func(t *testing.T) {
		c := chain.NewChain()
		c.ContractReads[evm.FunctionPrimaryTerminal] = func(args ...interface{}) (interface{}, error) {
			assert.Equal(t, big.NewInt(107), args[0])
			return common.HexToAddress(resolved), nil
		}
		wallet := chain.NewWallet(c, base)
		s := NewSubmitter(wallet, c, Config{ChainID: base, Backend: Terminal{ProjectID: 107}})

		_, err := s.Submit(context.Background(), "0.01", "")
		require.NoError(t, err)

		calls := wallet.SentCalls()
		require.Len(t, calls, 1)
		call := calls[0]
		assert.Equal(t, common.HexToAddress(resolved).Hex(), call.To)
		assert.Equal(t, evm.FunctionPay, call.Function)
		require.Len(t, call.Args, 7)
		assert.Equal(t, common.HexToAddress(evm.JBNativeToken), call.Args[1])
		assert.Equal(t, call.Value, call.Args[2])
		assert.Equal(t, common.HexToAddress(wallet.Address()), call.Args[3])
		assert.Equal(t, DefaultMemo, call.Args[5])
	})

	t.Run("falls back when lookup fails", func(t *testing.T) {
		c := chain.NewChain()
		wallet := chain.NewWallet(c, base)
		s := NewSubmitter(wallet, c, Config{ChainID: base, Backend: Terminal{ProjectID: 107}})

		_, err := s.Submit(context.Background(), "0.01", "")
		require.NoError(t, err)
		assert.Equal(t, evm.NormalizeAddress(evm.JBMultiTerminalAddress), wallet.SentCalls()[0].To)
	})

	t.Run("falls back on zero address", func(t *testing.T) {
		c := chain.NewChain()
		c.ContractReads[evm.FunctionPrimaryTerminal] = func(args ...interface{}) (interface{}, error) {
			return common.Address{}, nil
		}
		term := Terminal{ProjectID: 107, Fallback: resolved}
		assert.Equal(t, evm.NormalizeAddress(resolved), term.ResolveTerminal(context.Background(), c, nil))
	})
}

func TestSubmitWrongChainRejected(t *testing.T) {
	wallet := chain.NewWallet(chain.NewChain(), 1)
	wallet.SwitchErr = errors.New("User rejected the request.")
	s, _ := newDirect(t, wallet)

	record, err := s.Submit(context.Background(), "0.01", "")
	require.Error(t, err)
	assert.Equal(t, fund.ErrCodeChainMismatch, fund.CodeOf(err))
	assert.Equal(t, fund.TxError, record.Status)
	assert.Equal(t, []fund.ChainID{base}, wallet.Switches)
	assert.Empty(t, wallet.SentCalls())
}

func TestSubmitWrongChainSwitches(t *testing.T) {
	wallet := chain.NewWallet(chain.NewChain(), 1)
	s, _ := newDirect(t, wallet)

	_, err := s.Submit(context.Background(), "0.01", "")
	require.NoError(t, err)
	assert.Equal(t, []fund.ChainID{base}, wallet.Switches)
	assert.Len(t, wallet.SentCalls(), 1)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(w *chain.Wallet)
		backend Backend
		amount  string
		want    error
	}{
		{name: "disconnected", setup: func(w *chain.Wallet) { w.Disconnect() }, backend: DirectContract{Address: fundAddress}, amount: "0.01", want: fund.ErrWalletNotConnected},
		{name: "invalid amount", backend: DirectContract{Address: fundAddress}, amount: "abc", want: fund.ErrInvalidAmount},
		{name: "zero amount", backend: DirectContract{Address: fundAddress}, amount: "0", want: fund.ErrInvalidAmount},
		{name: "missing contract", backend: DirectContract{}, amount: "0.01", want: fund.ErrConfig},
		{name: "missing project", backend: Terminal{}, amount: "0.01", want: fund.ErrConfig},
		{name: "no backend", amount: "0.01", want: fund.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallet := chain.NewWallet(chain.NewChain(), base)
			if tt.setup != nil {
				tt.setup(wallet)
			}
			s := NewSubmitter(wallet, wallet.Chain, Config{ChainID: base, Backend: tt.backend})

			record, err := s.Submit(context.Background(), tt.amount, "")
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, fund.TxIdle, record.Status)
			assert.Empty(t, wallet.SentCalls())
		})
	}
}

func TestSubmitSendFailures(t *testing.T) {
	t.Run("user rejection", func(t *testing.T) {
		wallet := chain.NewWallet(chain.NewChain(), base)
		wallet.SendErr = errors.New("User denied transaction signature")
		s, _ := newDirect(t, wallet)

		record, err := s.Submit(context.Background(), "0.01", "")
		assert.ErrorIs(t, err, fund.ErrUserRejected)
		assert.Equal(t, fund.TxError, record.Status)
		assert.Equal(t, fund.ErrUserRejected.Message, record.Error)
	})

	t.Run("reverted receipt", func(t *testing.T) {
		wallet := chain.NewWallet(chain.NewChain(), base)
		wallet.ReceiptStatus = evm.TxStatusFailed
		s, _ := newDirect(t, wallet)

		record, err := s.Submit(context.Background(), "0.01", "")
		require.Error(t, err)
		assert.Equal(t, fund.ErrCodeTransactionFailed, fund.CodeOf(err))
		assert.Equal(t, fund.TxError, record.Status)
		assert.NotEmpty(t, record.Hash)
	})
}

func TestSubmitOneAtATime(t *testing.T) {
	wallet := chain.NewWallet(chain.NewChain(), base)
	wallet.ReceiptGate = make(chan struct{})
	s, _ := newDirect(t, wallet)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "0.01", "")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return s.Record().Status == fund.TxConfirming
	}, time.Second, 5*time.Millisecond)

	_, err := s.Submit(context.Background(), "0.02", "")
	assert.ErrorIs(t, err, fund.ErrInFlight)

	close(wallet.ReceiptGate)
	require.NoError(t, <-done)
	assert.Len(t, wallet.SentCalls(), 1)
	assert.Equal(t, fund.TxSuccess, s.Record().Status)
}

func TestResetDiscardsSupersededResult(t *testing.T) {
	wallet := chain.NewWallet(chain.NewChain(), base)
	wallet.ReceiptGate = make(chan struct{})
	s, _ := newDirect(t, wallet)

	done := make(chan fund.TransactionRecord, 1)
	go func() {
		record, _ := s.Submit(context.Background(), "0.01", "")
		done <- record
	}()
	require.Eventually(t, func() bool {
		return s.Record().Status == fund.TxConfirming
	}, time.Second, 5*time.Millisecond)

	s.Reset()
	after := s.Record()
	assert.Equal(t, fund.TxIdle, after.Status)

	close(wallet.ReceiptGate)
	<-done
	assert.Equal(t, after, s.Record())

	s.Reset()
	assert.Equal(t, after, s.Record())
}

func TestResetKeepsSendSlotUntilReceipt(t *testing.T) {
	wallet := chain.NewWallet(chain.NewChain(), base)
	wallet.ReceiptGate = make(chan struct{})
	s, _ := newDirect(t, wallet)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "0.01", "")
		done <- err
	}()
	require.Eventually(t, func() bool {
		return s.Record().Status == fund.TxConfirming
	}, time.Second, 5*time.Millisecond)

	s.Reset()
	assert.Equal(t, fund.TxIdle, s.Record().Status)

	_, err := s.Submit(context.Background(), "0.02", "")
	assert.ErrorIs(t, err, fund.ErrInFlight)
	assert.Len(t, wallet.SentCalls(), 1)

	close(wallet.ReceiptGate)
	require.NoError(t, <-done)

	_, err = s.Submit(context.Background(), "0.02", "")
	require.NoError(t, err)
	assert.Len(t, wallet.SentCalls(), 2)
}
