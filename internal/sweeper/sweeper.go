// Package sweeper advances elections past their end date from pending/active
// to completed. The transition is advisory bookkeeping: voting eligibility is
// always derived from the live clock, so a missed sweep can never extend a
// voting window.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"ballotbox/internal/election/store"
	"ballotbox/internal/platform/metrics"
)

type Sweeper struct {
	store    store.Store
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    func() time.Time
}

type Option func(*Sweeper)

func WithClock(clock func() time.Time) Option {
	return func(s *Sweeper) {
		s.clock = clock
	}
}

func New(st store.Store, interval time.Duration, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    st,
		interval: interval,
		metrics:  m,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one pass and returns how many elections were completed.
// Idempotent: a second pass right after finds nothing to do.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	count, err := s.store.SweepExpired(ctx, s.clock())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.metrics.SweepTransitions.Add(float64(count))
		s.logger.InfoContext(ctx, "swept expired elections", "count", count)
	}
	return count, nil
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.WarnContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}
