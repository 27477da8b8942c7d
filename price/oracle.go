// Package price keeps the latest USD price of the native asset.
package price

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/metrics"
)

// DefaultFallbackUSD is used until a fetch has succeeded.
var DefaultFallbackUSD = decimal.NewFromInt(3500)

// DefaultRefreshInterval is the fixed refresh period.
const DefaultRefreshInterval = 30 * time.Second

// Source fetches a USD price.
type Source interface {
	FetchUSD(ctx context.Context) (decimal.Decimal, error)
}

// Rate is a point-in-time view of the oracle.
type Rate struct {
	USD decimal.Decimal `json:"usd"`
	// Fallback is set when no fetch has ever succeeded
	Fallback  bool      `json:"fallback"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// OracleConfig configures an Oracle
type OracleConfig struct {
	// Fallback is reported until the first success, defaults to 3500
	Fallback decimal.Decimal
	// Interval between scheduled fetches, defaults to 30s
	Interval time.Duration
	Logger   *zap.Logger
}

// Oracle exposes the latest known rate. A failed fetch keeps the previous value.
type Oracle struct {
	source   Source
	fallback decimal.Decimal
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	current   decimal.Decimal
	fetched   bool
	updatedAt time.Time
}

// NewOracle creates an oracle over source
func NewOracle(source Source, config OracleConfig) *Oracle {
	fallback := config.Fallback
	if fallback.Sign() <= 0 {
		fallback = DefaultFallbackUSD
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		source:   source,
		fallback: fallback,
		interval: interval,
		logger:   logger.Named("price"),
		now:      time.Now,
		current:  fallback,
	}
}

// Current returns the latest USD price.
func (o *Oracle) Current() decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// IsFallback reports whether Current is still the hardcoded constant.
func (o *Oracle) IsFallback() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return !o.fetched
}

// Rate returns the current value with its provenance.
func (o *Oracle) Rate() Rate {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Rate{
		USD:       o.current,
		Fallback:  !o.fetched,
		UpdatedAt: o.updatedAt,
	}
}

// Refresh fetches once. On failure the previous value is kept and the error returned.
func (o *Oracle) Refresh(ctx context.Context) error {
	value, err := o.source.FetchUSD(ctx)
	if err != nil {
		metrics.PriceFetchTotal.WithLabelValues("error").Inc()
		o.logger.Warn("price fetch failed, keeping previous value",
			zap.String("usd", o.Current().String()),
			zap.Error(err))
		return err
	}

	o.mu.Lock()
	o.current = value
	o.fetched = true
	o.updatedAt = o.now()
	o.mu.Unlock()

	metrics.PriceFetchTotal.WithLabelValues("ok").Inc()
	metrics.PriceUSD.Set(value.InexactFloat64())
	return nil
}

// Start fetches immediately and then on every interval until stopped.
func (o *Oracle) Start(ctx context.Context) *fund.Handle {
	return fund.Every(ctx, o.interval, true, func(ctx context.Context) {
		_ = o.Refresh(ctx)
	})
}
