package cow

import (
	"context"
	"time"

	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/metrics"
)

const (
	DefaultMonitorAttempts = 30
	DefaultMonitorInterval = 10 * time.Second
)

// StatusSource reads the state of a submitted order.
type StatusSource interface {
	OrderStatus(ctx context.Context, uid string) (*OrderInfo, error)
}

// MonitorConfig bounds order polling
type MonitorConfig struct {
	// MaxAttempts defaults to 30
	MaxAttempts int
	// Interval between attempts, defaults to 10s
	Interval time.Duration
	// OnStatus is called after every successful read
	OnStatus func(*OrderInfo)
	Logger   *zap.Logger
}

// MonitorResult is the outcome of MonitorOrder. Exactly one of Executed,
// Failed, TimedOut or Cancelled is set.
type MonitorResult struct {
	Executed  bool             `json:"executed"`
	TxHash    string           `json:"txHash,omitempty"`
	Failed    bool             `json:"failed"`
	TimedOut  bool             `json:"timedOut"`
	Cancelled bool             `json:"cancelled"`
	Status    fund.OrderStatus `json:"status,omitempty"`
	Attempts  int              `json:"attempts"`
}

// MonitorOrder polls uid until it settles, fails, or MaxAttempts is spent.
//
// Attempts run on a fixed schedule: attempt k must finish by k×Interval after
// the start, so the whole call returns within MaxAttempts×Interval no matter
// how slowly the source answers. A read error counts as an attempt and polling
// continues. Running out of attempts yields TimedOut, which is not a failure:
// the order may still settle later. Cancelling ctx stops polling early.
func MonitorOrder(ctx context.Context, source StatusSource, uid string, config MonitorConfig) MonitorResult {
	attempts := config.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMonitorAttempts
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cow.monitor").With(zap.String("uid", uid))

	start := time.Now()
	pollCtx, cancel := context.WithDeadline(ctx, start.Add(time.Duration(attempts)*interval))
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var result MonitorResult
	for result.Attempts < attempts {
		result.Attempts++

		slotEnd := start.Add(time.Duration(result.Attempts) * interval)
		info, err := readStatus(pollCtx, source, uid, slotEnd)
		if ctx.Err() != nil {
			return cancelled(result)
		}
		if err != nil {
			logger.Debug("status read failed", zap.Int("attempt", result.Attempts), zap.Error(err))
		} else {
			result.Status = info.Status
			if config.OnStatus != nil {
				config.OnStatus(info)
			}
			switch {
			case info.Status == fund.OrderFulfilled && info.TxHash != "":
				result.Executed = true
				result.TxHash = info.TxHash
				logger.Info("order executed", zap.String("txHash", info.TxHash), zap.Int("attempts", result.Attempts))
				metrics.OrderMonitorTotal.WithLabelValues("executed").Inc()
				return result
			case info.Status.Failed():
				result.Failed = true
				logger.Warn("order failed", zap.String("status", string(info.Status)))
				metrics.OrderMonitorTotal.WithLabelValues("failed").Inc()
				return result
			}
		}

		if result.Attempts >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			return cancelled(result)
		case <-ticker.C:
		}
	}

	result.TimedOut = true
	logger.Info("order monitor gave up", zap.Int("attempts", result.Attempts), zap.String("status", string(result.Status)))
	metrics.OrderMonitorTotal.WithLabelValues("timeout").Inc()
	return result
}

func cancelled(result MonitorResult) MonitorResult {
	result.Cancelled = true
	metrics.OrderMonitorTotal.WithLabelValues("cancelled").Inc()
	return result
}

// readStatus caps a single read at the end of its polling slot.
func readStatus(ctx context.Context, source StatusSource, uid string, slotEnd time.Time) (*OrderInfo, error) {
	ctx, cancel := context.WithDeadline(ctx, slotEnd)
	defer cancel()
	return source.OrderStatus(ctx, uid)
}
