package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ballotbox/internal/election"
	"ballotbox/pkg/platform/sentinel"
)

// InMemoryStore keeps aggregates in maps guarded by one mutex. It favors
// clarity over performance and exists for tests and local development; the
// mutex gives it the same serialization guarantees the PostgreSQL store gets
// from transactions.
type InMemoryStore struct {
	mu        sync.RWMutex
	elections map[uuid.UUID]*election.Election
	bySlug    map[string]uuid.UUID
	byVoterID map[string]uuid.UUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		elections: make(map[uuid.UUID]*election.Election),
		bySlug:    make(map[string]uuid.UUID),
		byVoterID: make(map[string]uuid.UUID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, e *election.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.bySlug[e.VotingURL]; taken {
		return ErrVotingURLTaken
	}
	for i := range e.Voters {
		if _, taken := s.byVoterID[e.Voters[i].VoterID]; taken {
			return ErrVoterIDTaken
		}
	}

	clone := cloneElection(e)
	s.elections[clone.ID] = clone
	s.bySlug[clone.VotingURL] = clone.ID
	for i := range clone.Voters {
		s.byVoterID[clone.Voters[i].VoterID] = clone.ID
	}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*election.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.elections[id]; ok {
		return cloneElection(e), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByVotingURL(_ context.Context, votingURL string) (*election.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.bySlug[votingURL]; ok {
		return cloneElection(s.elections[id]), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByVoterCredentials(_ context.Context, voterID, voterKey string) (*election.Election, error) {
	voterID = strings.ToUpper(strings.TrimSpace(voterID))
	voterKey = strings.ToUpper(strings.TrimSpace(voterKey))

	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byVoterID[voterID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	e := s.elections[id]
	for i := range e.Voters {
		if e.Voters[i].VoterID == voterID && e.Voters[i].VoterKey == voterKey {
			return cloneElection(e), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByCreator(_ context.Context, creatorID string) ([]*election.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*election.Election
	for _, e := range s.elections {
		if e.CreatorID == creatorID {
			out = append(out, cloneElection(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID, creatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elections[id]
	if !ok || e.CreatorID != creatorID {
		return sentinel.ErrNotFound
	}
	delete(s.elections, id)
	delete(s.bySlug, e.VotingURL)
	for i := range e.Voters {
		delete(s.byVoterID, e.Voters[i].VoterID)
	}
	return nil
}

func (s *InMemoryStore) RecordVote(_ context.Context, electionID, voterID, nomineeID uuid.UUID, votedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.elections[electionID]
	if !ok {
		return sentinel.ErrNotFound
	}

	var voter *election.Voter
	for i := range e.Voters {
		if e.Voters[i].ID == voterID {
			voter = &e.Voters[i]
			break
		}
	}
	if voter == nil {
		return sentinel.ErrNotFound
	}

	var nominee *election.Nominee
	for i := range e.Nominees {
		if e.Nominees[i].ID == nomineeID {
			nominee = &e.Nominees[i]
			break
		}
	}
	if nominee == nil {
		return sentinel.ErrNotFound
	}

	// Compare-and-set on the persisted flag; this is what makes concurrent
	// casts for one voter resolve to a single success.
	if voter.HasVoted {
		return sentinel.ErrAlreadyUsed
	}

	voter.HasVoted = true
	at := votedAt
	voter.VotedAt = &at
	nominee.VoteCount++
	e.UpdatedAt = votedAt
	return nil
}

func (s *InMemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.elections {
		if (e.Status == election.StatusPending || e.Status == election.StatusActive) && e.EndDate.Before(now) {
			e.Status = election.StatusCompleted
			e.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

// cloneElection deep-copies an aggregate so callers never share slices with
// stored state.
func cloneElection(e *election.Election) *election.Election {
	clone := *e
	clone.Nominees = append([]election.Nominee(nil), e.Nominees...)
	clone.Voters = append([]election.Voter(nil), e.Voters...)
	for i := range clone.Voters {
		if e.Voters[i].VotedAt != nil {
			at := *e.Voters[i].VotedAt
			clone.Voters[i].VotedAt = &at
		}
	}
	return &clone
}
