// Package service orchestrates the organizer-facing election flows: creation
// with credential dispatch, management reads, result distribution, deletion.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ballotbox/internal/audit"
	"ballotbox/internal/election"
	"ballotbox/internal/election/store"
	"ballotbox/internal/mailer"
	"ballotbox/internal/platform/metrics"
	dErrors "ballotbox/pkg/domainerrors"
	"ballotbox/pkg/platform/sentinel"
)

// maxCreateAttempts bounds uniqueness retries for the voting slug and the
// voter-ID roster during creation.
const maxCreateAttempts = 10

// EmailStatus summarizes the best-effort credential dispatch at creation.
type EmailStatus struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// CreateResult is what the creation flow hands back to the transport layer.
type CreateResult struct {
	Election    *election.Election
	EmailStatus EmailStatus
}

type Service struct {
	store   store.Store
	sender  mailer.Sender
	auditor audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	clock   func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source, for tests that pin the window.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(st store.Store, sender mailer.Sender, auditor audit.Publisher, m *metrics.Metrics, logger *slog.Logger, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("election store is required")
	}
	if sender == nil {
		return nil, errors.New("mail sender is required")
	}
	svc := &Service{
		store:   st,
		sender:  sender,
		auditor: auditor,
		metrics: m,
		logger:  logger,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create validates input, persists a fully formed aggregate, and emails each
// voter their credentials. Slug collisions regenerate the slug and voter-ID
// collisions re-roll the roster, each up to maxCreateAttempts before the
// request fails. Email failures never fail creation; they are reported in the
// sent/failed summary.
func (s *Service) Create(ctx context.Context, input election.CreateInput, creatorID string) (*CreateResult, error) {
	now := s.clock()
	e, err := election.New(input, creatorID, now)
	if err != nil {
		return nil, err
	}

	if err := s.persistWithRetry(ctx, e); err != nil {
		return nil, err
	}
	s.metrics.ElectionsCreated.Inc()

	status := EmailStatus{Total: len(e.Voters)}
	for _, voter := range e.Voters {
		if err := s.sender.SendVoterCredentials(ctx, e, voter); err != nil {
			s.logger.WarnContext(ctx, "credential email failed",
				"election_id", e.ID.String(),
				"email", voter.Email,
				"error", err,
			)
			status.Failed++
			continue
		}
		status.Sent++
	}

	s.emit(ctx, audit.Event{
		Action:     audit.ActionElectionCreated,
		ElectionID: e.ID.String(),
		ActorID:    creatorID,
		Metadata: map[string]string{
			"nominees": strconv.Itoa(len(e.Nominees)),
			"voters":   strconv.Itoa(len(e.Voters)),
		},
	})

	return &CreateResult{Election: e, EmailStatus: status}, nil
}

func (s *Service) persistWithRetry(ctx context.Context, e *election.Election) error {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		err := s.store.Create(ctx, e)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, store.ErrVotingURLTaken):
			if err := e.RegenerateSlug(); err != nil {
				return dErrors.New(dErrors.CodeInternal, "failed to generate voting URL")
			}
		case errors.Is(err, store.ErrVoterIDTaken):
			if err := e.RegenerateVoterCredentials(); err != nil {
				return dErrors.New(dErrors.CodeInternal, "failed to generate voter credentials")
			}
		default:
			s.logger.ErrorContext(ctx, "election create failed", "error", err)
			return dErrors.New(dErrors.CodeInternal, "failed to create election")
		}
	}
	return dErrors.New(dErrors.CodeInternal, "failed to generate unique voting URL, please try again")
}

// ListByCreator returns the organizer's elections newest-first. Expired
// elections are swept to completed first so stored statuses read correctly in
// management views; a sweep failure only logs.
func (s *Service) ListByCreator(ctx context.Context, creatorID string) ([]*election.Election, error) {
	if count, err := s.store.SweepExpired(ctx, s.clock()); err != nil {
		s.logger.WarnContext(ctx, "pre-list sweep failed", "error", err)
	} else if count > 0 {
		s.metrics.SweepTransitions.Add(float64(count))
	}
	elections, err := s.store.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInternal, "failed to fetch elections")
	}
	return elections, nil
}

// PublicView resolves an election by its voting slug for the public voting
// page. No credential data leaves this path; the handler shapes the response.
func (s *Service) PublicView(ctx context.Context, votingURL string) (*election.Election, error) {
	e, err := s.store.FindByVotingURL(ctx, votingURL)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "election not found or invalid voting URL")
		}
		return nil, dErrors.New(dErrors.CodeInternal, "failed to fetch election")
	}
	return e, nil
}

// Results returns the aggregate plus its tally, creator-only. A wrong
// creator gets the same not-found as a missing election.
func (s *Service) Results(ctx context.Context, electionID uuid.UUID, creatorID string) (*election.Election, election.TallyResult, error) {
	e, err := s.ownedElection(ctx, electionID, creatorID)
	if err != nil {
		return nil, election.TallyResult{}, err
	}
	return e, election.Tally(e), nil
}

// SendResults mails the final tally to the whole roster. The election must
// have ended: manually closed, swept to completed, or past its end date.
func (s *Service) SendResults(ctx context.Context, electionID uuid.UUID, creatorID string) (int, error) {
	e, err := s.ownedElection(ctx, electionID, creatorID)
	if err != nil {
		return 0, err
	}
	if !e.HasEnded(s.clock()) {
		return 0, dErrors.New(dErrors.CodeInvalidState, "election must be ended to send results")
	}

	sent, err := s.sender.SendResults(ctx, e, election.Tally(e))
	if err != nil {
		s.logger.ErrorContext(ctx, "results dispatch failed",
			"election_id", e.ID.String(),
			"error", err,
		)
		return sent, dErrors.New(dErrors.CodeInternal, "failed to send election results")
	}

	s.emit(ctx, audit.Event{
		Action:     audit.ActionResultsSent,
		ElectionID: e.ID.String(),
		ActorID:    creatorID,
		Metadata:   map[string]string{"recipients": strconv.Itoa(sent)},
	})
	return sent, nil
}

// Delete removes an election, creator-only.
func (s *Service) Delete(ctx context.Context, electionID uuid.UUID, creatorID string) (*election.Election, error) {
	e, err := s.ownedElection(ctx, electionID, creatorID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, electionID, creatorID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "election not found or access denied")
		}
		return nil, dErrors.New(dErrors.CodeInternal, "failed to delete election")
	}
	s.metrics.ElectionsDeleted.Inc()
	s.emit(ctx, audit.Event{
		Action:     audit.ActionElectionDeleted,
		ElectionID: e.ID.String(),
		ActorID:    creatorID,
	})
	return e, nil
}

func (s *Service) ownedElection(ctx context.Context, electionID uuid.UUID, creatorID string) (*election.Election, error) {
	e, err := s.store.FindByID(ctx, electionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "election not found or access denied")
		}
		return nil, dErrors.New(dErrors.CodeInternal, "failed to fetch election")
	}
	if e.CreatorID != creatorID {
		// Same response as missing so ownership probing learns nothing.
		return nil, dErrors.New(dErrors.CodeNotFound, "election not found or access denied")
	}
	return e, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(event.Action), "error", err)
	}
}

// Now exposes the service clock for handlers that shape time-derived fields.
func (s *Service) Now() time.Time {
	return s.clock()
}
