package cow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
)

type scriptedSource struct {
	mu    sync.Mutex
	steps []func() (*OrderInfo, error)
	calls int
}

func (s *scriptedSource) OrderStatus(ctx context.Context, uid string) (*OrderInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i]()
}

func status(st fund.OrderStatus, hash string) func() (*OrderInfo, error) {
	return func() (*OrderInfo, error) {
		return &OrderInfo{Status: st, TxHash: hash}, nil
	}
}

func failing() (*OrderInfo, error) {
	return nil, errors.New("network down")
}

func TestMonitorOrderExecutes(t *testing.T) {
	source := &scriptedSource{steps: []func() (*OrderInfo, error){
		status(fund.OrderOpen, ""),
		failing,
		status(fund.OrderOpen, ""),
		status(fund.OrderFulfilled, "0xabc"),
	}}

	result := MonitorOrder(context.Background(), source, "0xuid", MonitorConfig{Interval: time.Millisecond})

	if !result.Executed {
		t.Fatalf("Expected executed result, got %+v", result)
	}
	if result.TxHash != "0xabc" {
		t.Errorf("Expected tx hash 0xabc, got %s", result.TxHash)
	}
	if result.Attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", result.Attempts)
	}
	if result.Failed || result.TimedOut {
		t.Errorf("Expected only Executed set, got %+v", result)
	}
}

func TestMonitorOrderFulfilledWithoutHashKeepsPolling(t *testing.T) {
	source := &scriptedSource{steps: []func() (*OrderInfo, error){
		status(fund.OrderFulfilled, ""),
		status(fund.OrderFulfilled, "0xdef"),
	}}

	result := MonitorOrder(context.Background(), source, "0xuid", MonitorConfig{Interval: time.Millisecond})
	if !result.Executed || result.Attempts != 2 {
		t.Fatalf("Expected execution on second attempt, got %+v", result)
	}
}

func TestMonitorOrderFails(t *testing.T) {
	for _, st := range []fund.OrderStatus{fund.OrderCancelled, fund.OrderExpired} {
		t.Run(string(st), func(t *testing.T) {
			source := &scriptedSource{steps: []func() (*OrderInfo, error){
				status(fund.OrderOpen, ""),
				status(st, ""),
			}}
			result := MonitorOrder(context.Background(), source, "0xuid", MonitorConfig{Interval: time.Millisecond})
			if !result.Failed {
				t.Fatalf("Expected failure, got %+v", result)
			}
			if result.Status != st {
				t.Errorf("Expected status %s, got %s", st, result.Status)
			}
		})
	}
}

func TestMonitorOrderTimesOutAfterMaxAttempts(t *testing.T) {
	source := &scriptedSource{steps: []func() (*OrderInfo, error){failing}}

	result := MonitorOrder(context.Background(), source, "0xuid", MonitorConfig{
		MaxAttempts: 30,
		Interval:    time.Millisecond,
	})

	if !result.TimedOut {
		t.Fatalf("Expected timeout, got %+v", result)
	}
	if result.Failed {
		t.Error("Timeout must not be reported as a failure")
	}
	if source.calls != 30 {
		t.Errorf("Expected exactly 30 status reads, got %d", source.calls)
	}
}

func TestMonitorOrderStopsOnCancel(t *testing.T) {
	source := &scriptedSource{steps: []func() (*OrderInfo, error){status(fund.OrderOpen, "")}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan MonitorResult, 1)
	go func() {
		done <- MonitorOrder(ctx, source, "0xuid", MonitorConfig{Interval: time.Hour})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		if !result.Cancelled {
			t.Errorf("Expected cancelled result, got %+v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("MonitorOrder did not stop after cancel")
	}
}

type hangingSource struct {
	mu    sync.Mutex
	calls int
}

func (s *hangingSource) OrderStatus(ctx context.Context, uid string) (*OrderInfo, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestMonitorOrderBoundedBySchedule(t *testing.T) {
	source := &hangingSource{}
	interval := 50 * time.Millisecond

	started := time.Now()
	result := MonitorOrder(context.Background(), source, "0xuid", MonitorConfig{
		MaxAttempts: 5,
		Interval:    interval,
	})
	elapsed := time.Since(started)

	if !result.TimedOut {
		t.Fatalf("Expected timeout, got %+v", result)
	}
	if result.Attempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", result.Attempts)
	}
	if bound := 5*interval + interval/2; elapsed > bound {
		t.Errorf("Expected monitor to finish within %v, took %v", bound, elapsed)
	}
	if source.calls != 5 {
		t.Errorf("Expected 5 status reads, got %d", source.calls)
	}
}
