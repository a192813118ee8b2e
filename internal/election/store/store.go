// Package store persists election aggregates. Implementations must enforce
// global uniqueness of voting URLs and voter IDs and must commit a vote as an
// atomic conditional update: the voter's has_voted flag flips false to true
// and the nominee's count increments together, or neither happens.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ballotbox/internal/election"
	"ballotbox/pkg/platform/sentinel"
)

// Wrapped conflict errors let the creation flow tell a slug collision from a
// voter-ID collision and retry the right generator.
var (
	ErrVotingURLTaken = fmt.Errorf("voting url taken: %w", sentinel.ErrConflict)
	ErrVoterIDTaken   = fmt.Errorf("voter id taken: %w", sentinel.ErrConflict)
)

// Store is interface-driven so domain logic stays testable against the
// in-memory implementation while production runs on PostgreSQL.
type Store interface {
	Create(ctx context.Context, e *election.Election) error
	FindByID(ctx context.Context, id uuid.UUID) (*election.Election, error)
	FindByVotingURL(ctx context.Context, votingURL string) (*election.Election, error)
	// FindByVoterCredentials resolves an election from a credential pair
	// alone. Voter IDs are globally unique, so at most one election matches.
	FindByVoterCredentials(ctx context.Context, voterID, voterKey string) (*election.Election, error)
	ListByCreator(ctx context.Context, creatorID string) ([]*election.Election, error)
	Delete(ctx context.Context, id uuid.UUID, creatorID string) error
	// RecordVote applies the one mutating operation of the voting flow.
	// It must be conditional on the persisted has_voted being false and
	// return sentinel.ErrAlreadyUsed otherwise; under concurrent calls for
	// the same voter exactly one may succeed.
	RecordVote(ctx context.Context, electionID, voterID, nomineeID uuid.UUID, votedAt time.Time) error
	// SweepExpired flips pending/active elections past their end date to
	// completed and reports how many changed. Idempotent; closed elections
	// are never touched.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}
