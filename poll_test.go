package fund

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	h := Every(context.Background(), 5*time.Millisecond, true, func(ctx context.Context) {
		calls.Add(1)
	})

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	h.Stop()
	h.Stop()

	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())

	select {
	case <-h.Done():
	default:
		t.Fatal("handle not done after Stop")
	}
}

func TestEveryImmediate(t *testing.T) {
	first := make(chan struct{}, 1)
	h := Every(context.Background(), time.Hour, true, func(ctx context.Context) {
		select {
		case first <- struct{}{}:
		default:
		}
	})
	defer h.Stop()

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("immediate call did not happen")
	}
}

func TestGoEndsWithParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := Go(ctx, func(ctx context.Context) { <-ctx.Done() })
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit with its parent")
	}
}

func TestGroupStopAllInReverse(t *testing.T) {
	var mu sync.Mutex
	var order []int
	var g Group
	for i := 0; i < 3; i++ {
		i := i
		g.Add(Go(context.Background(), func(ctx context.Context) {
			<-ctx.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	g.Add(nil)

	g.StopAll()
	g.StopAll()
	assert.Equal(t, []int{2, 1, 0}, order)

	var nilHandle *Handle
	nilHandle.Stop()
}
