package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/metrics"
)

// DefaultInterval is the fixed refresh period.
const DefaultInterval = 60 * time.Second

var errNoSources = errors.New("progress: no live sources configured")

// ReporterConfig configures a Reporter
type ReporterConfig struct {
	ProjectID int
	// Goal defaults to fund.DefaultFundingGoalUSD
	Goal decimal.Decimal
	// Static is the last confirmed total, used when every live source fails
	Static   *Totals
	Interval time.Duration
	Logger   *zap.Logger
}

// Reporter keeps the latest campaign progress. Latest never blocks and is
// always fully populated.
type Reporter struct {
	sources   []Source
	projectID int
	goal      decimal.Decimal
	static    *Totals
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.RWMutex
	latest fund.CampaignProgress
	// live is the last value a live source produced
	live *Totals
}

// NewReporter creates a reporter trying sources in order.
func NewReporter(sources []Source, config ReporterConfig) *Reporter {
	projectID := config.ProjectID
	if projectID == 0 {
		projectID = DefaultProjectID
	}
	goal := config.Goal
	if goal.Sign() <= 0 {
		goal = fund.DefaultFundingGoalUSD
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Reporter{
		sources:   sources,
		projectID: projectID,
		goal:      goal,
		static:    config.Static,
		interval:  interval,
		logger:    logger.Named("progress"),
		now:       time.Now,
	}
	r.latest = r.progress(r.fallbackTotals(), true)
	return r
}

// ProjectID is the project being reported
func (r *Reporter) ProjectID() int {
	return r.projectID
}

// Latest returns the last computed progress.
func (r *Reporter) Latest() fund.CampaignProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Refresh walks the source chain once and stores the result.
func (r *Reporter) Refresh(ctx context.Context) fund.CampaignProgress {
	totals, source, err := r.fetchLive(ctx, r.projectID)

	r.mu.Lock()
	if err == nil {
		r.live = &totals
		r.latest = r.progress(totals, false)
	} else {
		r.latest = r.progress(r.fallbackTotalsLocked(), true)
		source = r.fallbackName()
	}
	latest := r.latest
	r.mu.Unlock()

	metrics.ProgressFetchTotal.WithLabelValues(source).Inc()
	return latest
}

// Fetch resolves progress for any project without touching the stored value.
// Only the reporter's own project falls back to the last known value.
func (r *Reporter) Fetch(ctx context.Context, projectID int) fund.CampaignProgress {
	if projectID == 0 || projectID == r.projectID {
		return r.Refresh(ctx)
	}
	totals, _, err := r.fetchLive(ctx, projectID)
	if err != nil {
		return r.progress(Totals{TotalRaised: decimal.Zero}, true)
	}
	return r.progress(totals, false)
}

// Start refreshes immediately and then on every interval until stopped.
func (r *Reporter) Start(ctx context.Context) *fund.Handle {
	return fund.Every(ctx, r.interval, true, func(ctx context.Context) {
		r.Refresh(ctx)
	})
}

func (r *Reporter) fetchLive(ctx context.Context, projectID int) (Totals, string, error) {
	var lastErr error
	for _, s := range r.sources {
		totals, err := s.Fetch(ctx, projectID)
		if err != nil {
			r.logger.Debug("progress source failed",
				zap.String("source", s.Name()),
				zap.Int("projectId", projectID),
				zap.Error(err))
			lastErr = err
			continue
		}
		return totals, s.Name(), nil
	}
	if lastErr == nil {
		lastErr = errNoSources
	}
	r.logger.Warn("all progress sources failed, using fallback", zap.Int("projectId", projectID), zap.Error(lastErr))
	return Totals{}, "", lastErr
}

func (r *Reporter) fallbackTotals() Totals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallbackTotalsLocked()
}

func (r *Reporter) fallbackTotalsLocked() Totals {
	switch {
	case r.live != nil:
		return *r.live
	case r.static != nil:
		return *r.static
	default:
		return Totals{TotalRaised: decimal.Zero}
	}
}

// fallbackName labels the fallback tier for metrics; r.mu must be held.
func (r *Reporter) fallbackName() string {
	switch {
	case r.live != nil:
		return "cached"
	case r.static != nil:
		return "static"
	default:
		return "zero"
	}
}

func (r *Reporter) progress(t Totals, fallback bool) fund.CampaignProgress {
	return fund.CampaignProgress{
		TotalRaised:      t.TotalRaised,
		ContributorCount: t.ContributorCount,
		Goal:             r.goal,
		Fallback:         fallback,
		UpdatedAt:        r.now(),
	}
}
