package fund

import (
	"context"
	"sync"
	"time"
)

// Handle controls a background loop started by one of the Watch/Start methods.
// Every loop in this module hands one back; the owner must Stop it on exit.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Go runs fn in a goroutine with a context that Stop cancels.
func Go(parent context.Context, fn func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		fn(ctx)
	}()
	return h
}

// Stop cancels the loop and waits for it to return. Safe to call more than once.
// Must not be called from inside the loop's own callback.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Every calls fn on a fixed interval until the handle is stopped or ctx ends.
// If immediate is set, the first call happens before the first tick.
func Every(ctx context.Context, interval time.Duration, immediate bool, fn func(ctx context.Context)) *Handle {
	return Go(ctx, func(ctx context.Context) {
		if immediate {
			fn(ctx)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	})
}

// Group stops a set of handles together.
type Group struct {
	mu      sync.Mutex
	handles []*Handle
}

// Add tracks h; nil handles are ignored.
func (g *Group) Add(h *Handle) {
	if h == nil {
		return
	}
	g.mu.Lock()
	g.handles = append(g.handles, h)
	g.mu.Unlock()
}

// StopAll stops every tracked handle in reverse order of registration.
func (g *Group) StopAll() {
	g.mu.Lock()
	handles := g.handles
	g.handles = nil
	g.mu.Unlock()

	for i := len(handles) - 1; i >= 0; i-- {
		handles[i].Stop()
	}
}
