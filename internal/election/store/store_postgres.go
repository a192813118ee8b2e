package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ballotbox/internal/election"
	"ballotbox/pkg/platform/sentinel"
)

// Schema is applied by Migrate. Uniqueness of voting URLs and voter IDs is
// enforced here, at the storage boundary, not implicitly by callers. The
// voter-ID index is global: one cast-vote path resolves elections by
// credentials alone.
const Schema = `
CREATE TABLE IF NOT EXISTS elections (
	id          UUID PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	creator_id  TEXT NOT NULL,
	status      TEXT NOT NULL,
	voting_url  TEXT NOT NULL,
	start_date  TIMESTAMPTZ NOT NULL,
	end_date    TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT elections_voting_url_key UNIQUE (voting_url)
);

CREATE TABLE IF NOT EXISTS election_nominees (
	id          UUID PRIMARY KEY,
	election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
	position    INT NOT NULL,
	name        TEXT NOT NULL,
	vote_count  INT NOT NULL DEFAULT 0 CHECK (vote_count >= 0)
);

CREATE TABLE IF NOT EXISTS election_voters (
	id          UUID PRIMARY KEY,
	election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	email       TEXT NOT NULL,
	voter_id    TEXT NOT NULL,
	voter_key   TEXT NOT NULL,
	has_voted   BOOLEAN NOT NULL DEFAULT FALSE,
	voted_at    TIMESTAMPTZ,
	CONSTRAINT election_voters_voter_id_key UNIQUE (voter_id)
);

CREATE INDEX IF NOT EXISTS idx_elections_creator ON elections(creator_id);
CREATE INDEX IF NOT EXISTS idx_elections_sweep ON elections(end_date) WHERE status IN ('pending', 'active');
CREATE INDEX IF NOT EXISTS idx_nominees_election ON election_nominees(election_id, position);
CREATE INDEX IF NOT EXISTS idx_voters_election ON election_voters(election_id);
`

// PostgresStore persists election aggregates in PostgreSQL. Vote commits ride
// a single transaction guarded by a conditional update on has_voted, so the
// at-most-one-vote invariant holds across server instances.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, e *election.Election) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO elections (id, title, description, creator_id, status, voting_url, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.Title, e.Description, e.CreatorID, e.Status, e.VotingURL, e.StartDate, e.EndDate, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return translateConflict(err)
	}

	for i, n := range e.Nominees {
		_, err = tx.Exec(ctx, `
			INSERT INTO election_nominees (id, election_id, position, name, vote_count)
			VALUES ($1, $2, $3, $4, $5)
		`, n.ID, e.ID, i, n.Name, n.VoteCount)
		if err != nil {
			return fmt.Errorf("insert nominee: %w", err)
		}
	}

	for _, v := range e.Voters {
		_, err = tx.Exec(ctx, `
			INSERT INTO election_voters (id, election_id, name, email, voter_id, voter_key, has_voted, voted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, v.ID, e.ID, v.Name, v.Email, v.VoterID, v.VoterKey, v.HasVoted, v.VotedAt)
		if err != nil {
			return translateConflict(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*election.Election, error) {
	return s.findOne(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) FindByVotingURL(ctx context.Context, votingURL string) (*election.Election, error) {
	return s.findOne(ctx, `WHERE voting_url = $1`, votingURL)
}

func (s *PostgresStore) FindByVoterCredentials(ctx context.Context, voterID, voterKey string) (*election.Election, error) {
	voterID = strings.ToUpper(strings.TrimSpace(voterID))
	voterKey = strings.ToUpper(strings.TrimSpace(voterKey))
	return s.findOne(ctx, `
		WHERE id = (
			SELECT election_id FROM election_voters
			WHERE voter_id = $1 AND voter_key = $2
		)`, voterID, voterKey)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (*election.Election, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, description, creator_id, status, voting_url, start_date, end_date, created_at, updated_at
		FROM elections `+where, args...)

	var e election.Election
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.CreatorID, &e.Status, &e.VotingURL,
		&e.StartDate, &e.EndDate, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find election: %w", err)
	}

	if err := s.loadChildren(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) loadChildren(ctx context.Context, e *election.Election) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, vote_count FROM election_nominees
		WHERE election_id = $1 ORDER BY position
	`, e.ID)
	if err != nil {
		return fmt.Errorf("load nominees: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n election.Nominee
		if err := rows.Scan(&n.ID, &n.Name, &n.VoteCount); err != nil {
			return fmt.Errorf("scan nominee: %w", err)
		}
		e.Nominees = append(e.Nominees, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate nominees: %w", err)
	}

	vrows, err := s.pool.Query(ctx, `
		SELECT id, name, email, voter_id, voter_key, has_voted, voted_at FROM election_voters
		WHERE election_id = $1 ORDER BY id
	`, e.ID)
	if err != nil {
		return fmt.Errorf("load voters: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var v election.Voter
		if err := vrows.Scan(&v.ID, &v.Name, &v.Email, &v.VoterID, &v.VoterKey, &v.HasVoted, &v.VotedAt); err != nil {
			return fmt.Errorf("scan voter: %w", err)
		}
		e.Voters = append(e.Voters, v)
	}
	if err := vrows.Err(); err != nil {
		return fmt.Errorf("iterate voters: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCreator(ctx context.Context, creatorID string) ([]*election.Election, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM elections WHERE creator_id = $1 ORDER BY created_at DESC
	`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list elections: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan election id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate elections: %w", err)
	}

	out := make([]*election.Election, 0, len(ids))
	for _, id := range ids {
		e, err := s.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID, creatorID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM elections WHERE id = $1 AND creator_id = $2
	`, id, creatorID)
	if err != nil {
		return fmt.Errorf("delete election: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordVote(ctx context.Context, electionID, voterID, nomineeID uuid.UUID, votedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin vote: %w", err)
	}
	defer tx.Rollback(ctx)

	// Conditional update on the current persisted flag. Concurrent casts for
	// the same voter serialize on this row; exactly one sees has_voted=false.
	tag, err := tx.Exec(ctx, `
		UPDATE election_voters SET has_voted = TRUE, voted_at = $1
		WHERE id = $2 AND election_id = $3 AND has_voted = FALSE
	`, votedAt, voterID, electionID)
	if err != nil {
		return fmt.Errorf("mark voted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM election_voters WHERE id = $1 AND election_id = $2)
		`, voterID, electionID).Scan(&exists); err != nil {
			return fmt.Errorf("check voter: %w", err)
		}
		if exists {
			return sentinel.ErrAlreadyUsed
		}
		return sentinel.ErrNotFound
	}

	tag, err = tx.Exec(ctx, `
		UPDATE election_nominees SET vote_count = vote_count + 1
		WHERE id = $1 AND election_id = $2
	`, nomineeID, electionID)
	if err != nil {
		return fmt.Errorf("count vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}

	_, err = tx.Exec(ctx, `UPDATE elections SET updated_at = $1 WHERE id = $2`, votedAt, electionID)
	if err != nil {
		return fmt.Errorf("touch election: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE elections SET status = $1, updated_at = $2
		WHERE end_date < $2 AND status IN ($3, $4)
	`, election.StatusCompleted, now, election.StatusPending, election.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func translateConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "elections_voting_url_key":
			return ErrVotingURLTaken
		case "election_voters_voter_id_key":
			return ErrVoterIDTaken
		}
		return sentinel.ErrConflict
	}
	return fmt.Errorf("insert election: %w", err)
}
