// Package donation drives a donor session from amount entry to confirmed payment.
package donation

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/balance"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/funding"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/mechanisms/evm"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/swap"
)

// Prices supplies USD per native unit.
type Prices interface {
	Current() decimal.Decimal
}

// Poller is a background refresher owned by the session, such as the price oracle.
type Poller interface {
	Start(ctx context.Context) *fund.Handle
}

// Payer submits the contribution.
type Payer interface {
	Submit(ctx context.Context, amountETH string, beneficiary string) (fund.TransactionRecord, error)
	Record() fund.TransactionRecord
	Reset()
}

// Swapper converts USDC into the native asset.
type Swapper interface {
	Swap(ctx context.Context, owner string, usdc string, override swap.Method) (*swap.Result, error)
}

// Components are the collaborators a Flow drives. Swaps and Pollers are optional.
type Components struct {
	Wallet    evm.Wallet
	Prices    Prices
	Balances  *balance.Observer
	Payments  Payer
	Swaps     Swapper
	Providers []funding.Provider
	Pollers   []Poller
}

// Config configures a Flow
type Config struct {
	ChainID fund.ChainID
	// Funding configures the top-up watcher
	Funding funding.RedirectorConfig
	// OnBalance receives every balance snapshot of the session
	OnBalance func(balance.Snapshot)
	Logger    *zap.Logger
}

// Flow is one donor session.
type Flow struct {
	wallet     evm.Wallet
	prices     Prices
	balances   *balance.Observer
	payments   Payer
	swaps      Swapper
	redirector *funding.Redirector
	providers  []funding.Provider
	pollers    []Poller
	chain      fund.ChainID
	onBalance  func(balance.Snapshot)
	logger     *zap.Logger

	mu      sync.Mutex
	watcher *balance.Watcher
	group   fund.Group
	started bool
}

// New creates a session. Start begins background polling.
func New(c Components, config Config) *Flow {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := config.ChainID
	if chain == 0 {
		chain = fund.ChainID(evm.ChainIDBase.Int64())
	}

	f := &Flow{
		wallet:    c.Wallet,
		prices:    c.Prices,
		balances:  c.Balances,
		payments:  c.Payments,
		swaps:     c.Swaps,
		providers: c.Providers,
		pollers:   c.Pollers,
		chain:     chain,
		onBalance: config.OnBalance,
		logger:    logger.Named("donation"),
	}

	redirectorConfig := config.Funding
	onIncrease := redirectorConfig.OnIncrease
	redirectorConfig.OnIncrease = func(s balance.Snapshot) {
		f.logger.Info("funds arrived", zap.String("native", s.Native().String()))
		f.refreshBalances()
		if onIncrease != nil {
			onIncrease(s)
		}
	}
	if redirectorConfig.Logger == nil {
		redirectorConfig.Logger = logger
	}
	f.redirector = funding.NewRedirector(c.Balances, redirectorConfig)
	return f
}

// Start launches the pollers and the balance watcher. It is a no-op when already started.
func (f *Flow) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return
	}
	f.started = true

	for _, p := range f.pollers {
		f.group.Add(p.Start(ctx))
	}
	f.watcher = f.balances.Watch(ctx, f.wallet.Account(), f.chain, func(s balance.Snapshot) {
		f.redirector.Observe(s)
		if f.onBalance != nil {
			f.onBalance(s)
		}
	})
	f.redirector.UseFeed(f.watcher)
	f.group.Add(f.watcher.Handle())
}

// Close stops every background task of the session and waits for them.
func (f *Flow) Close() {
	f.redirector.Cancel()
	f.group.StopAll()
}

// AccountChanged re-targets balance polling after a wallet change.
func (f *Flow) AccountChanged() {
	if w := f.currentWatcher(); w != nil {
		w.SetAccount(f.wallet.Account(), f.chain)
	}
}

// Intent resolves usd against the current rate and the last known balance.
func (f *Flow) Intent(usd string) fund.ContributionIntent {
	return fund.NewContributionIntent(usd, f.prices.Current(), f.lastNative())
}

// Quote resolves usd against the current rate and a freshly read balance.
func (f *Flow) Quote(ctx context.Context, usd string) fund.ContributionIntent {
	snapshot := f.balances.Fetch(ctx, f.wallet.Account(), f.chain)
	return fund.NewContributionIntent(usd, f.prices.Current(), snapshot.Native())
}

// FundingOptions lists the provider names offered when the balance is short.
func (f *Flow) FundingOptions() []string {
	names := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		names = append(names, p.Name())
	}
	return names
}

// Contribute pays usd worth of the native asset into the fund.
//
// The balance is re-read before submitting. When it does not cover the
// resolved amount, an insufficient-balance error listing the funding options
// is returned and nothing is sent.
func (f *Flow) Contribute(ctx context.Context, usd string) (fund.TransactionRecord, error) {
	account := f.wallet.Account()
	if !account.Connected {
		return f.payments.Record(), fund.ErrWalletNotConnected
	}
	if !account.HasAddress() {
		return f.payments.Record(), fund.ErrNoAddress
	}

	snapshot := f.balances.Fetch(ctx, account, f.chain)
	intent := fund.NewContributionIntent(usd, f.prices.Current(), snapshot.Native())
	if !intent.HasAmount() {
		return f.payments.Record(), fund.ErrInvalidAmount
	}
	if !intent.Sufficient {
		f.logger.Info("balance too low for contribution",
			zap.String("usd", intent.USDAmount),
			zap.String("required", intent.Required),
			zap.String("native", snapshot.Native().String()))
		return f.payments.Record(), insufficient(intent, snapshot.Native(), f.FundingOptions())
	}

	record, err := f.payments.Submit(ctx, intent.Required, account.Address)
	if err == nil {
		f.refreshBalances()
	}
	return record, err
}

func insufficient(intent fund.ContributionIntent, native *big.Int, options []string) *fund.FundError {
	return fund.NewFundError(fund.ErrCodeInsufficientBalance,
		fmt.Sprintf("Insufficient balance: %s ETH required", intent.Required),
		map[string]interface{}{
			"required": intent.Required,
			"balance":  evm.FormatUnits(native, fund.NativeDecimals).String(),
			"options":  options,
		})
}

// AddFunds opens the named provider for usd worth of funding and watches for the top-up.
// It returns the URL to open, or "" when the provider launched in-process.
// Once the session is started the balance watcher polls fast until the top-up
// lands or the wait ends.
func (f *Flow) AddFunds(ctx context.Context, provider string, usd string) (string, error) {
	p := f.provider(provider)
	if p == nil {
		return "", fund.NewFundError(fund.ErrCodeConfig, fmt.Sprintf("Unknown funding option %q", provider),
			map[string]interface{}{"options": f.FundingOptions()})
	}

	intent := f.Intent(usd)
	target, handle, err := f.redirector.Start(ctx, p, f.wallet.Account(), funding.Request{
		ChainID:      f.chain,
		AmountNative: intent.Required,
		AmountUSD:    intent.USDAmount,
	})
	if err != nil {
		return "", err
	}
	f.group.Add(handle)
	return target, nil
}

// FundingState is the current top-up view.
func (f *Flow) FundingState() funding.State {
	return f.redirector.State()
}

// CancelFunding stops waiting for a top-up.
func (f *Flow) CancelFunding() {
	f.redirector.Cancel()
}

// Swap converts usdc into the native asset for the connected account.
func (f *Flow) Swap(ctx context.Context, usdc string, override swap.Method) (*swap.Result, error) {
	if f.swaps == nil {
		return nil, fund.ConfigError("swap")
	}
	account := f.wallet.Account()
	if !account.Connected {
		return nil, fund.ErrWalletNotConnected
	}

	result, err := f.swaps.Swap(ctx, account.Address, usdc, override)
	if err == nil {
		f.refreshBalances()
	}
	return result, err
}

// Payment is the current payment record.
func (f *Flow) Payment() fund.TransactionRecord {
	return f.payments.Record()
}

// ResetPayment clears the payment status.
func (f *Flow) ResetPayment() {
	f.payments.Reset()
}

func (f *Flow) provider(name string) funding.Provider {
	for _, p := range f.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func (f *Flow) currentWatcher() *balance.Watcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watcher
}

func (f *Flow) refreshBalances() {
	if w := f.currentWatcher(); w != nil {
		w.Refresh()
	}
}

func (f *Flow) lastNative() *big.Int {
	w := f.currentWatcher()
	if w == nil {
		return nil
	}
	s, ok := w.Latest()
	if !ok {
		return nil
	}
	return s.Native()
}
