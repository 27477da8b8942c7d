// Package funding hands the donor off to external on-ramps and watches for the top-up to land.
package funding

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/balance"
)

// IncreaseDetector fires once per strict increase over the previous observation.
// The first observation only seeds it.
type IncreaseDetector struct {
	last *big.Int
}

// Observe records value and reports whether it is larger than the previous one.
func (d *IncreaseDetector) Observe(value *big.Int) bool {
	if value == nil {
		return false
	}
	prev := d.last
	d.last = new(big.Int).Set(value)
	return prev != nil && value.Cmp(prev) > 0
}

// Reset forgets the previous observation.
func (d *IncreaseDetector) Reset() {
	d.last = nil
}

// Fetcher reads a balance snapshot.
type Fetcher interface {
	Fetch(ctx context.Context, account fund.Account, chain fund.ChainID) balance.Snapshot
}

// BalanceFeed is a background balance poller the Redirector drives while
// waiting. Its snapshots reach the Redirector through Observe.
// *balance.Watcher implements it.
type BalanceFeed interface {
	SetFastPolling(fast bool)
	Refresh()
}

// State is the UI-facing view of a top-up.
type State struct {
	Waiting          bool   `json:"waiting"`
	BalanceIncreased bool   `json:"balanceIncreased"`
	Provider         string `json:"provider,omitempty"`
	URL              string `json:"url,omitempty"`
	Error            string `json:"error,omitempty"`
}

// RedirectorConfig configures a Redirector
type RedirectorConfig struct {
	// Interval is the fast poll rate while waiting, defaults to 2s
	Interval time.Duration
	// MaxWait stops waiting after this long; zero waits until stopped
	MaxWait time.Duration
	// OnIncrease is called from the polling goroutine when the top-up lands
	OnIncrease func(balance.Snapshot)
	Logger     *zap.Logger
}

// Redirector starts external funding flows and polls for the resulting balance increase.
type Redirector struct {
	fetcher    Fetcher
	interval   time.Duration
	maxWait    time.Duration
	onIncrease func(balance.Snapshot)
	logger     *zap.Logger

	mu      sync.Mutex
	state   State
	attempt uint64
	handle  *fund.Handle
	feed    BalanceFeed
	snaps   chan balance.Snapshot
}

// NewRedirector creates a redirector polling through fetcher
func NewRedirector(fetcher Fetcher, config RedirectorConfig) *Redirector {
	interval := config.Interval
	if interval <= 0 {
		interval = balance.DefaultFastInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redirector{
		fetcher:    fetcher,
		interval:   interval,
		maxWait:    config.MaxWait,
		onIncrease: config.OnIncrease,
		logger:     logger.Named("funding"),
	}
}

// UseFeed makes later waits switch feed to fast polling and consume the
// snapshots passed to Observe instead of fetching on their own.
func (r *Redirector) UseFeed(feed BalanceFeed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feed = feed
}

// Observe hands a snapshot from the attached feed to the current wait.
// Only the newest unconsumed snapshot is kept.
func (r *Redirector) Observe(snap balance.Snapshot) {
	r.mu.Lock()
	snaps := r.snaps
	r.mu.Unlock()
	if snaps == nil {
		return
	}
	for {
		select {
		case snaps <- snap:
			return
		default:
		}
		select {
		case <-snaps:
		default:
		}
	}
}

// Start opens provider for req and begins fast polling account on chain.
//
// On a provider error the waiting state is cleared and a FundError carrying
// the user-facing message is returned; nothing is retried. On success the
// returned handle stops the polling; it also stops on its own once an
// increase has been seen. Start must not be called from OnIncrease.
func (r *Redirector) Start(ctx context.Context, provider Provider, account fund.Account, req Request) (string, *fund.Handle, error) {
	if provider == nil {
		return "", nil, errNoProvider
	}
	if !account.HasAddress() {
		return "", nil, fund.ErrWalletNotConnected
	}
	if req.Address == "" {
		req.Address = account.Address
	}
	if req.ChainID == 0 {
		req.ChainID = account.ChainID
	}

	r.stopCurrent()

	r.mu.Lock()
	r.attempt++
	attempt := r.attempt
	r.state = State{Waiting: true, Provider: provider.Name()}
	r.mu.Unlock()

	target, err := provider.Open(ctx, req)
	if err != nil {
		fe := openError(err)
		r.mu.Lock()
		if r.attempt == attempt {
			r.state.Waiting = false
			r.state.Error = fe.Message
		}
		r.mu.Unlock()
		r.logger.Warn("funding provider failed", zap.String("provider", provider.Name()), zap.Error(err))
		return "", nil, fe
	}

	r.mu.Lock()
	r.state.URL = target
	r.mu.Unlock()

	r.logger.Info("waiting for funds",
		zap.String("provider", provider.Name()),
		zap.String("address", req.Address),
		zap.String("asset", provider.Asset()))

	r.mu.Lock()
	feed := r.feed
	var snaps chan balance.Snapshot
	if feed != nil {
		snaps = make(chan balance.Snapshot, 1)
		r.snaps = snaps
	}
	r.mu.Unlock()

	handle := fund.Go(ctx, func(ctx context.Context) {
		if feed != nil {
			r.follow(ctx, attempt, feed, snaps, req.Address, req.ChainID, provider.Asset())
			return
		}
		r.wait(ctx, attempt, account, req.ChainID, provider.Asset())
	})

	r.mu.Lock()
	r.handle = handle
	r.mu.Unlock()

	return target, handle, nil
}

func openError(err error) *fund.FundError {
	if fund.IsUserRejection(err) {
		return fund.WrapFundError(fund.ErrCodeUserRejected, "Funding was cancelled", err)
	}
	return fund.WrapFundError(fund.ErrCodeNetwork, "Failed to open funding flow: "+err.Error(), err)
}

func (r *Redirector) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.maxWait > 0 {
		return context.WithTimeout(ctx, r.maxWait)
	}
	return ctx, func() {}
}

// follow waits on snapshots from feed, which runs fast until the wait ends.
func (r *Redirector) follow(ctx context.Context, attempt uint64, feed BalanceFeed, snaps <-chan balance.Snapshot, address string, chain fund.ChainID, symbol string) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	defer r.clearWaiting(attempt)

	feed.SetFastPolling(true)
	defer feed.SetFastPolling(false)
	feed.Refresh()

	var detector IncreaseDetector
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snaps:
			if snap.ChainID != chain || !strings.EqualFold(snap.Address, address) {
				continue
			}
			if r.check(attempt, &detector, snap, symbol) {
				return
			}
		}
	}
}

func (r *Redirector) wait(ctx context.Context, attempt uint64, account fund.Account, chain fund.ChainID, symbol string) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	defer r.clearWaiting(attempt)

	var detector IncreaseDetector
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		snap := r.fetcher.Fetch(ctx, account, chain)
		if ctx.Err() != nil {
			return
		}
		if r.check(attempt, &detector, snap, symbol) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check feeds snap to detector and reports whether the wait is over.
func (r *Redirector) check(attempt uint64, detector *IncreaseDetector, snap balance.Snapshot, symbol string) bool {
	if snap.Err || !detector.Observe(snap.Value(symbol)) {
		return false
	}
	if r.markIncreased(attempt) {
		r.logger.Info("balance increased", zap.String("asset", symbol), zap.String("value", snap.Value(symbol).String()))
		if r.onIncrease != nil {
			r.onIncrease(snap)
		}
	}
	return true
}

func (r *Redirector) clearWaiting(attempt uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempt == attempt {
		r.state.Waiting = false
	}
}

func (r *Redirector) markIncreased(attempt uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempt != attempt || !r.state.Waiting {
		return false
	}
	r.state.Waiting = false
	r.state.BalanceIncreased = true
	return true
}

// State returns the current top-up state.
func (r *Redirector) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Waiting reports whether a top-up is being watched.
func (r *Redirector) Waiting() bool {
	return r.State().Waiting
}

// ConsumeIncrease returns the one-shot increase flag and clears it.
func (r *Redirector) ConsumeIncrease() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	increased := r.state.BalanceIncreased
	r.state.BalanceIncreased = false
	return increased
}

// Cancel stops any polling and clears the waiting state.
func (r *Redirector) Cancel() {
	r.stopCurrent()
	r.mu.Lock()
	r.state.Waiting = false
	r.mu.Unlock()
}

func (r *Redirector) stopCurrent() {
	r.mu.Lock()
	handle := r.handle
	r.handle = nil
	r.mu.Unlock()
	handle.Stop()
}
