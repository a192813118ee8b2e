// Package voting implements the vote-casting and credential-verification
// state machine. Verify and cast are independently authenticated: nothing is
// trusted across the two calls, because the election window or the voter's
// state may have changed in between.
package voting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ballotbox/internal/audit"
	"ballotbox/internal/election"
	"ballotbox/internal/election/store"
	"ballotbox/internal/mailer"
	"ballotbox/internal/platform/metrics"
	dErrors "ballotbox/pkg/domainerrors"
	"ballotbox/pkg/platform/sentinel"
)

// VerifyRequest authenticates one voter against one election.
type VerifyRequest struct {
	VotingURL string
	VoterID   string
	VoterKey  string
}

// CastRequest is a ballot. VotingURL may be empty, in which case the election
// is resolved from the credentials alone (voter IDs are globally unique).
type CastRequest struct {
	VotingURL string
	VoterID   string
	VoterKey  string
	NomineeID uuid.UUID
	Client    ClientInfo
}

// ClientInfo is optional context for the audit trail. Never secrets.
type ClientInfo struct {
	Browser string
	OS      string
}

// VoterSummary is what a successful verification reveals. Never the key.
type VoterSummary struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	HasVoted bool   `json:"hasVoted"`
}

// VoteReceipt confirms an accepted ballot.
type VoteReceipt struct {
	Nominee string    `json:"nominee"`
	VotedAt time.Time `json:"votedAt"`
}

type Service struct {
	store   store.Store
	sender  mailer.Sender
	auditor audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	clock   func() time.Time
	tracer  trace.Tracer
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
		tracer:  otel.Tracer("ballotbox/internal/voting"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Verify checks the full precondition chain and returns the voter's summary.
// Read-only: no state changes, no emails. The chain runs in a fixed order so
// rejections are stable: election exists, window open, credentials match,
// not yet voted.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VoterSummary, error) {
	ctx, span := s.tracer.Start(ctx, "voting.verify")
	defer span.End()

	e, err := s.store.FindByVotingURL(ctx, req.VotingURL)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.reject("not_found", dErrors.New(dErrors.CodeNotFound, "election not found"))
		}
		return nil, dErrors.New(dErrors.CodeInternal, "failed to fetch election")
	}
	span.SetAttributes(attribute.String("election.id", e.ID.String()))

	voter, err := s.eligibleVoter(e, req.VoterID, req.VoterKey)
	if err != nil {
		return nil, err
	}

	return &VoterSummary{
		Name:     voter.Name,
		Email:    voter.Email,
		HasVoted: voter.HasVoted,
	}, nil
}

// Cast re-runs the whole verification chain, validates the nominee, and
// commits the vote as one conditional update at the store. The confirmation
// email and audit event afterwards are best-effort: their failure never rolls
// back or surfaces.
func (s *Service) Cast(ctx context.Context, req CastRequest) (*VoteReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "voting.cast")
	defer span.End()

	e, err := s.resolveElection(ctx, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("election.id", e.ID.String()))

	voter, err := s.eligibleVoter(e, req.VoterID, req.VoterKey)
	if err != nil {
		return nil, err
	}

	nominee, ok := e.FindNominee(req.NomineeID)
	if !ok {
		return nil, s.reject("invalid_nominee", dErrors.New(dErrors.CodeBadRequest, "invalid nominee selected"))
	}

	votedAt := s.clock()
	if err := s.store.RecordVote(ctx, e.ID, voter.ID, nominee.ID, votedAt); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			// Lost the race against a concurrent cast with the same
			// credentials; exactly one of them committed.
			return nil, s.reject("already_voted", dErrors.New(dErrors.CodeAlreadyVoted, "you have already voted in this election"))
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeInternal, "failed to cast vote, please try again")
		default:
			s.logger.ErrorContext(ctx, "vote commit failed",
				"election_id", e.ID.String(),
				"error", err,
			)
			return nil, dErrors.New(dErrors.CodeInternal, "failed to cast vote, please try again")
		}
	}
	s.metrics.VotesCast.Inc()

	s.confirmVote(ctx, e, *voter, nominee.Name, votedAt)
	s.emit(ctx, audit.Event{
		Action:     audit.ActionVoteCast,
		ElectionID: e.ID.String(),
		Metadata:   castMetadata(voter.VoterID, req.Client),
	})

	return &VoteReceipt{Nominee: nominee.Name, VotedAt: votedAt}, nil
}

// resolveElection honors both cast-vote variants. When the lookup key is
// absent the credentials must do all the work, and any failure on that path
// is unauthorized rather than not-found so a credential pair never confirms
// which election it belongs to.
func (s *Service) resolveElection(ctx context.Context, req CastRequest) (*election.Election, error) {
	if req.VotingURL != "" {
		e, err := s.store.FindByVotingURL(ctx, req.VotingURL)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, s.reject("not_found", dErrors.New(dErrors.CodeNotFound, "election not found"))
			}
			return nil, dErrors.New(dErrors.CodeInternal, "failed to fetch election")
		}
		return e, nil
	}

	e, err := s.store.FindByVoterCredentials(ctx, req.VoterID, req.VoterKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.reject("bad_credentials", errInvalidCredentials())
		}
		return nil, dErrors.New(dErrors.CodeInternal, "failed to fetch election")
	}
	return e, nil
}

// eligibleVoter applies the shared precondition chain: live time window
// first, then the credential conjunction, then the one-vote check. The clock
// is read at call time; the stored status is advisory except for the manual
// closed override.
func (s *Service) eligibleVoter(e *election.Election, voterID, voterKey string) (*election.Voter, error) {
	now := s.clock()
	switch e.CurrentStatus(now) {
	case election.CurrentStatusClosed:
		return nil, s.reject("closed", dErrors.New(dErrors.CodeInvalidState, "election is not available for voting"))
	case election.CurrentStatusNotStarted:
		return nil, s.reject("not_started", dErrors.New(dErrors.CodeInvalidState, "election has not started yet"))
	case election.CurrentStatusExpired:
		return nil, s.reject("ended", dErrors.New(dErrors.CodeInvalidState, "election has ended"))
	}

	voter, ok := e.FindVoter(voterID, voterKey)
	if !ok {
		return nil, s.reject("bad_credentials", errInvalidCredentials())
	}
	if voter.HasVoted {
		return nil, s.reject("already_voted", dErrors.New(dErrors.CodeAlreadyVoted, "you have already voted in this election"))
	}
	return voter, nil
}

func (s *Service) confirmVote(ctx context.Context, e *election.Election, voter election.Voter, nomineeName string, votedAt time.Time) {
	if err := s.sender.SendVoteConfirmation(ctx, e, voter, nomineeName, votedAt); err != nil {
		s.logger.WarnContext(ctx, "vote confirmation email failed",
			"election_id", e.ID.String(),
			"email", voter.Email,
			"error", err,
		)
	}
}

func (s *Service) reject(reason string, err error) error {
	s.metrics.VotesRejected.WithLabelValues(reason).Inc()
	return err
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(event.Action), "error", err)
	}
}

// errInvalidCredentials is deliberately generic: it never reveals which half
// of the pair was wrong, nor whether the pair belongs to another election.
func errInvalidCredentials() error {
	return dErrors.New(dErrors.CodeUnauthorized, "invalid voter ID or key")
}

func castMetadata(voterID string, client ClientInfo) map[string]string {
	md := map[string]string{"voter_id": voterID}
	if client.Browser != "" {
		md["browser"] = client.Browser
	}
	if client.OS != "" {
		md["os"] = client.OS
	}
	return md
}
