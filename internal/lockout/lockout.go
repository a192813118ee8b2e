// Package lockout throttles repeated credential failures against the public
// voting endpoints. Voter keys are short tokens, so unlimited guessing within
// an election window is the one online attack worth blunting.
package lockout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	dErrors "ballotbox/pkg/domainerrors"
)

// Store counts failures within a rolling window. Implementations are pure
// I/O; the lock decision lives in the service.
type Store interface {
	// Incr adds one failure for key and returns the count in the current
	// window, establishing the window on the first failure.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Count returns the current failure count without modifying it.
	Count(ctx context.Context, key string) (int64, error)
	// Reset clears the failure count for key.
	Reset(ctx context.Context, key string) error
}

// Service decides whether a voter ID is currently locked out.
type Service struct {
	store       Store
	maxFailures int64
	window      time.Duration
	logger      *slog.Logger
}

func New(store Store, maxFailures int64, window time.Duration, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}
	if maxFailures <= 0 {
		maxFailures = 10
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Service{store: store, maxFailures: maxFailures, window: window, logger: logger}, nil
}

// Check returns too_many_requests once the failure budget for this voter ID
// is spent. Store errors fail open: an unavailable counter must not block
// legitimate voters.
func (s *Service) Check(ctx context.Context, voterID string) error {
	count, err := s.store.Count(ctx, normalize(voterID))
	if err != nil {
		s.logger.WarnContext(ctx, "lockout check unavailable", "error", err)
		return nil
	}
	if count >= s.maxFailures {
		return dErrors.New(dErrors.CodeTooManyRequests, "too many failed attempts, try again later")
	}
	return nil
}

// RecordFailure notes one failed credential attempt.
func (s *Service) RecordFailure(ctx context.Context, voterID string) {
	if _, err := s.store.Incr(ctx, normalize(voterID), s.window); err != nil {
		s.logger.WarnContext(ctx, "lockout record failed", "error", err)
	}
}

// Reset clears the counter after a successful verification.
func (s *Service) Reset(ctx context.Context, voterID string) {
	if err := s.store.Reset(ctx, normalize(voterID)); err != nil {
		s.logger.WarnContext(ctx, "lockout reset failed", "error", err)
	}
}

func normalize(voterID string) string {
	return "lockout:voter:" + strings.ToUpper(strings.TrimSpace(voterID))
}
