package payment

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
)

// Config configures a Submitter
type Config struct {
	// ChainID is the chain contributions must be made on
	ChainID fund.ChainID
	Backend Backend
	// OnChange receives every record transition
	OnChange func(fund.TransactionRecord)
	Logger   *zap.Logger
}

// Submitter sends one contribution at a time and tracks its status.
type Submitter struct {
	wallet   evm.Wallet
	reader   evm.ChainReader
	backend  Backend
	chain    fund.ChainID
	onChange func(fund.TransactionRecord)
	logger   *zap.Logger

	mu      sync.Mutex
	attempt uint64
	// inFlight is the attempt holding the send slot, 0 when free. It
	// outlives Reset so a superseded receipt wait still blocks new sends.
	inFlight uint64
	record   fund.TransactionRecord
}

// NewSubmitter creates a submitter paying through wallet. reader resolves
// terminal addresses and may be nil for a DirectContract backend.
func NewSubmitter(wallet evm.Wallet, reader evm.ChainReader, config Config) *Submitter {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		wallet:   wallet,
		reader:   reader,
		backend:  config.Backend,
		chain:    config.ChainID,
		onChange: config.OnChange,
		logger:   logger.Named("payment"),
		record:   fund.TransactionRecord{Status: fund.TxIdle},
	}
}

// Submit pays amountETH to the fund on behalf of beneficiary (the donor when empty).
//
// It blocks until the receipt is known. The returned record is the attempt's
// final state; the error carries the user-facing message.
func (s *Submitter) Submit(ctx context.Context, amountETH string, beneficiary string) (fund.TransactionRecord, error) {
	account := s.wallet.Account()
	if !account.Connected {
		return s.Record(), fund.ErrWalletNotConnected
	}
	if !account.HasAddress() {
		return s.Record(), fund.ErrNoAddress
	}
	amount, ok := fund.ParseEther(amountETH)
	if !ok || amount.Sign() <= 0 {
		return s.Record(), fund.ErrInvalidAmount
	}
	if s.backend == nil {
		return s.Record(), fund.ConfigError("payment backend")
	}
	if err := s.backend.validate(); err != nil {
		return s.Record(), err
	}
	if beneficiary == "" {
		beneficiary = account.Address
	}

	attempt, err := s.begin()
	if err != nil {
		return s.Record(), err
	}
	defer s.release(attempt)

	if s.chain != 0 && account.ChainID != s.chain {
		if err := s.wallet.SwitchChain(ctx, s.chain); err != nil {
			return s.fail(attempt, fund.ChainMismatchError(int64(s.chain), err))
		}
	}

	call, err := s.backend.call(ctx, s.reader, amount, beneficiary, s.logger)
	if err != nil {
		return s.fail(attempt, fund.WrapFundError(fund.ErrCodeTransactionFailed, "Transaction failed: "+err.Error(), err))
	}

	s.advance(attempt, func(r *fund.TransactionRecord) { r.Advance(fund.TxPending) })
	hash, err := s.wallet.SendCall(ctx, call)
	if err != nil {
		return s.fail(attempt, sendError(err))
	}

	s.logger.Info("contribution sent",
		zap.String("backend", s.backend.Name()),
		zap.String("to", call.To),
		zap.String("amount", amountETH),
		zap.String("txHash", hash))
	s.advance(attempt, func(r *fund.TransactionRecord) {
		r.Hash = hash
		r.Advance(fund.TxConfirming)
	})

	receipt, err := s.wallet.WaitForTransactionReceipt(ctx, hash)
	if err != nil {
		return s.fail(attempt, fund.WrapFundError(fund.ErrCodeNetwork, "Transaction confirmation failed: "+err.Error(), err))
	}
	if !receipt.Succeeded() {
		return s.fail(attempt, fund.NewFundError(fund.ErrCodeTransactionFailed, "Transaction failed",
			map[string]interface{}{"txHash": hash}))
	}

	s.advance(attempt, func(r *fund.TransactionRecord) { r.Advance(fund.TxSuccess) })
	return s.recordFor(attempt), nil
}

func sendError(err error) *fund.FundError {
	if fund.IsUserRejection(err) {
		return fund.WrapFundError(fund.ErrCodeUserRejected, fund.ErrUserRejected.Message, err)
	}
	return fund.WrapFundError(fund.ErrCodeTransactionFailed, "Transaction failed: "+err.Error(), err)
}

func (s *Submitter) begin() (uint64, error) {
	s.mu.Lock()
	if s.inFlight != 0 {
		s.mu.Unlock()
		return 0, fund.ErrInFlight
	}
	s.attempt++
	s.inFlight = s.attempt
	s.record = fund.TransactionRecord{Attempt: s.attempt, Status: fund.TxConnecting}
	record := s.record
	s.mu.Unlock()

	s.notify(record)
	return record.Attempt, nil
}

func (s *Submitter) release(attempt uint64) {
	s.mu.Lock()
	if s.inFlight == attempt {
		s.inFlight = 0
	}
	s.mu.Unlock()
}

// advance applies fn when attempt is still current.
func (s *Submitter) advance(attempt uint64, fn func(*fund.TransactionRecord)) {
	s.mu.Lock()
	if s.record.Attempt != attempt {
		s.mu.Unlock()
		return
	}
	fn(&s.record)
	record := s.record
	s.mu.Unlock()
	s.notify(record)
}

func (s *Submitter) fail(attempt uint64, fe *fund.FundError) (fund.TransactionRecord, error) {
	s.advance(attempt, func(r *fund.TransactionRecord) { r.Fail(fe.Message) })
	s.logger.Warn("contribution failed", zap.Uint64("attempt", attempt), zap.Error(fe))
	return s.recordFor(attempt), fe
}

// recordFor returns the current record, or a detached one when attempt was superseded.
func (s *Submitter) recordFor(attempt uint64) fund.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record.Attempt == attempt {
		return s.record
	}
	return fund.TransactionRecord{Attempt: attempt, Status: fund.TxIdle}
}

// Record returns a snapshot of the current attempt.
func (s *Submitter) Record() fund.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// Reset clears status and error. An in-flight receipt wait keeps running
// and its result is discarded, but Submit reports ErrInFlight until it returns.
func (s *Submitter) Reset() {
	s.mu.Lock()
	if s.record.Status == fund.TxIdle && s.record.Error == "" && s.record.Hash == "" {
		s.mu.Unlock()
		return
	}
	s.attempt++
	s.record = fund.TransactionRecord{Attempt: s.attempt, Status: fund.TxIdle}
	record := s.record
	s.mu.Unlock()
	s.notify(record)
}

func (s *Submitter) notify(record fund.TransactionRecord) {
	if s.onChange != nil {
		s.onChange(record)
	}
}

// String describes the backend, for logs.
func (s *Submitter) String() string {
	name := "none"
	if s.backend != nil {
		name = s.backend.Name()
	}
	return fmt.Sprintf("payment.Submitter(%s, chain %d)", name, s.chain)
}
