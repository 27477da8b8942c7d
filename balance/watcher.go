package balance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
)

// Watcher polls an Observer in the background.
type Watcher struct {
	obs        *Observer
	onSnapshot func(Snapshot)

	mu      sync.Mutex
	account fund.Account
	chain   fund.ChainID
	fast    bool
	latest  Snapshot
	polled  bool

	wake   chan struct{}
	handle *fund.Handle
}

// Watch starts polling account on chain. onSnapshot is called from the
// polling goroutine after every cycle and never after Stop returns.
//
// The first poll happens immediately. Afterwards the slow interval applies
// unless fast polling has been switched on.
func (o *Observer) Watch(ctx context.Context, account fund.Account, chain fund.ChainID, onSnapshot func(Snapshot)) *Watcher {
	w := &Watcher{
		obs:        o,
		onSnapshot: onSnapshot,
		account:    account,
		chain:      chain,
		wake:       make(chan struct{}, 1),
	}
	w.handle = fund.Go(ctx, w.run)
	return w
}

func (w *Watcher) run(ctx context.Context) {
	w.poll(ctx)
	for {
		timer := time.NewTimer(w.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.wake:
			timer.Stop()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}
		w.poll(ctx)
	}
}

func (w *Watcher) interval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fast {
		return w.obs.fast
	}
	return w.obs.slow
}

func (w *Watcher) poll(ctx context.Context) {
	w.mu.Lock()
	account, chain := w.account, w.chain
	w.mu.Unlock()

	snap := w.obs.Fetch(ctx, account, chain)
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	w.latest = snap
	w.polled = true
	w.mu.Unlock()

	w.obs.logger.Debug("balances observed",
		zap.String("address", snap.Address),
		zap.Int64("chainId", int64(snap.ChainID)),
		zap.Bool("error", snap.Err))

	if w.onSnapshot != nil {
		w.onSnapshot(snap)
	}
}

func (w *Watcher) trigger() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Refresh requests an immediate poll.
func (w *Watcher) Refresh() {
	w.trigger()
}

// SetAccount updates the observed account; a changed address or chain polls immediately.
func (w *Watcher) SetAccount(account fund.Account, chain fund.ChainID) {
	w.mu.Lock()
	changed := account.Address != w.account.Address ||
		account.Connected != w.account.Connected ||
		chain != w.chain
	w.account = account
	w.chain = chain
	w.mu.Unlock()

	if changed {
		w.trigger()
	}
}

// SetFastPolling switches between the fast and slow interval.
func (w *Watcher) SetFastPolling(fast bool) {
	w.mu.Lock()
	changed := w.fast != fast
	w.fast = fast
	w.mu.Unlock()

	if changed {
		w.trigger()
	}
}

// FastPolling reports whether the fast interval is active.
func (w *Watcher) FastPolling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fast
}

// Latest returns the most recent snapshot and whether any poll has completed.
func (w *Watcher) Latest() (Snapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest, w.polled
}

// Stop ends polling and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.handle.Stop()
}

// Handle exposes the underlying loop handle.
func (w *Watcher) Handle() *fund.Handle {
	return w.handle
}
