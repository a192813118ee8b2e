//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ballotbox/internal/election"
	"ballotbox/internal/election/store"
	"ballotbox/pkg/platform/sentinel"
	"ballotbox/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func (s *PostgresStoreSuite) newElection(creatorID string) *election.Election {
	e, err := election.New(election.CreateInput{
		Title:       "Test Election",
		Description: "A test",
		Nominees:    []string{"Alice", "Bob", "Eve"},
		Voters: []election.VoterInput{
			{Name: "Carol", Email: "carol@example.com"},
			{Name: "Dave", Email: "dave@example.com"},
		},
		StartDate: s.now.Add(time.Hour),
		EndDate:   s.now.Add(2 * time.Hour),
	}, creatorID, s.now)
	s.Require().NoError(err)
	return e
}

func (s *PostgresStoreSuite) TestCreateRoundTrip() {
	ctx := context.Background()
	e := s.newElection("creator-1")
	s.Require().NoError(s.store.Create(ctx, e))

	got, err := s.store.FindByID(ctx, e.ID)
	s.Require().NoError(err)

	s.Equal(e.Title, got.Title)
	s.Equal(e.CreatorID, got.CreatorID)
	s.Equal(e.VotingURL, got.VotingURL)
	s.Equal(election.StatusPending, got.Status)

	s.Require().Len(got.Nominees, 3)
	s.Equal("Alice", got.Nominees[0].Name, "nominee order survives persistence")
	s.Equal("Bob", got.Nominees[1].Name)
	s.Equal("Eve", got.Nominees[2].Name)

	s.Require().Len(got.Voters, 2)
	for _, v := range got.Voters {
		s.Len(v.VoterID, 8)
		s.Len(v.VoterKey, 12)
		s.False(v.HasVoted)
	}
}

func (s *PostgresStoreSuite) TestUniqueConstraints() {
	ctx := context.Background()
	e := s.newElection("creator-1")
	s.Require().NoError(s.store.Create(ctx, e))

	s.Run("voting URL collision", func() {
		other := s.newElection("creator-2")
		other.VotingURL = e.VotingURL
		s.ErrorIs(s.store.Create(ctx, other), store.ErrVotingURLTaken)
	})

	s.Run("voter ID collision across elections", func() {
		other := s.newElection("creator-2")
		other.Voters[0].VoterID = e.Voters[0].VoterID
		s.ErrorIs(s.store.Create(ctx, other), store.ErrVoterIDTaken)

		// The failed insert must not leave a partial aggregate behind.
		_, err := s.store.FindByID(ctx, other.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestFindByVoterCredentials() {
	ctx := context.Background()
	e := s.newElection("creator-1")
	s.Require().NoError(s.store.Create(ctx, e))
	v := e.Voters[0]

	got, err := s.store.FindByVoterCredentials(ctx, v.VoterID, v.VoterKey)
	s.Require().NoError(err)
	s.Equal(e.ID, got.ID)

	_, err = s.store.FindByVoterCredentials(ctx, v.VoterID, "WRONGKEY0000")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRecordVoteConcurrent() {
	ctx := context.Background()
	e := s.newElection("creator-1")
	s.Require().NoError(s.store.Create(ctx, e))

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount, rejectCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.RecordVote(ctx, e.ID, e.Voters[0].ID, e.Nominees[0].ID, s.now)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				rejectCount.Add(1)
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one cast commits")
	s.Equal(int32(goroutines-1), rejectCount.Load())

	got, err := s.store.FindByID(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(1, got.Nominees[0].VoteCount)
}

func (s *PostgresStoreSuite) TestDeleteCascades() {
	ctx := context.Background()
	e := s.newElection("creator-1")
	s.Require().NoError(s.store.Create(ctx, e))

	s.ErrorIs(s.store.Delete(ctx, e.ID, "creator-2"), sentinel.ErrNotFound)
	s.Require().NoError(s.store.Delete(ctx, e.ID, "creator-1"))

	_, err := s.store.FindByVoterCredentials(ctx, e.Voters[0].VoterID, e.Voters[0].VoterKey)
	s.ErrorIs(err, sentinel.ErrNotFound, "cascade frees the voter IDs")

	// Freed voter IDs can be reused by a new election.
	again := s.newElection("creator-1")
	again.Voters[0].VoterID = e.Voters[0].VoterID
	s.NoError(s.store.Create(ctx, again))
}

func (s *PostgresStoreSuite) TestSweepExpired() {
	ctx := context.Background()

	expired := s.newElection("creator-1")
	expired.EndDate = s.now.Add(-time.Minute)
	running := s.newElection("creator-1")

	s.Require().NoError(s.store.Create(ctx, expired))
	s.Require().NoError(s.store.Create(ctx, running))

	count, err := s.store.SweepExpired(ctx, s.now)
	s.Require().NoError(err)
	s.Equal(1, count)

	got, err := s.store.FindByID(ctx, expired.ID)
	s.Require().NoError(err)
	s.Equal(election.StatusCompleted, got.Status)

	got, err = s.store.FindByID(ctx, running.ID)
	s.Require().NoError(err)
	s.Equal(election.StatusPending, got.Status)

	count, err = s.store.SweepExpired(ctx, s.now)
	s.Require().NoError(err)
	s.Zero(count)
}
