// Package election holds the election aggregate: the election itself plus its
// embedded nominees and voters, treated as one consistency unit. Stores
// persist whole aggregates; the voting state machine mutates exactly one
// voter and one nominee per accepted ballot.
package election

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "ballotbox/pkg/domainerrors"
)

// Status is the stored lifecycle state. It is advisory for display except for
// StatusClosed, a manual terminal override that always blocks voting.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusClosed    Status = "closed"
)

// CurrentStatus is the time-derived voting eligibility state. It is never
// persisted and is always recomputed from the live clock, so a stale stored
// Status can never open or close the voting window.
type CurrentStatus string

const (
	CurrentStatusClosed     CurrentStatus = "closed"
	CurrentStatusNotStarted CurrentStatus = "not-started"
	CurrentStatusExpired    CurrentStatus = "expired"
	CurrentStatusActive     CurrentStatus = "active"
)

// MinDuration is the shortest allowed voting window.
const MinDuration = 5 * time.Minute

// Nominee is an election candidate. Slice order is insertion order and is the
// display order everywhere.
type Nominee struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	VoteCount int       `json:"voteCount"`
}

// Voter is a credentialed participant. VoterKey is a secret and must never
// appear in any response after the initial credential email.
type Voter struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	VoterID  string     `json:"voterId"`
	VoterKey string     `json:"-"`
	HasVoted bool       `json:"hasVoted"`
	VotedAt  *time.Time `json:"votedAt,omitempty"`
}

// Election is the aggregate root.
type Election struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatorID   string    `json:"creatorId"`
	Nominees    []Nominee `json:"nominees"`
	Voters      []Voter   `json:"voters"`
	Status      Status    `json:"status"`
	VotingURL   string    `json:"votingUrl"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// VoterInput is the roster entry supplied at creation.
type VoterInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateInput is everything an organizer supplies to open an election.
type CreateInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Nominees    []string     `json:"nominees"`
	Voters      []VoterInput `json:"voters"`
	StartDate   time.Time    `json:"startDate"`
	EndDate     time.Time    `json:"endDate"`
}

// New validates input and assembles a fully formed aggregate: trimmed fields,
// normalized emails, fresh nominee and voter IDs, generated credentials, and a
// generated voting slug. Slug and voter-ID collision retries are the caller's
// concern; Regenerate helpers below support that.
func New(input CreateInput, creatorID string, now time.Time) (*Election, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "title and description are required")
	}
	if creatorID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "creator is required")
	}
	if len(input.Nominees) < 2 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least 2 nominees are required")
	}
	if len(input.Voters) < 1 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least 1 voter is required")
	}
	if err := validateWindow(input.StartDate, input.EndDate, now); err != nil {
		return nil, err
	}

	nominees := make([]Nominee, 0, len(input.Nominees))
	for _, name := range input.Nominees {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "nominee name must not be empty")
		}
		nominees = append(nominees, Nominee{ID: uuid.New(), Name: name})
	}

	voters := make([]Voter, 0, len(input.Voters))
	for _, v := range input.Voters {
		name := strings.TrimSpace(v.Name)
		email := strings.ToLower(strings.TrimSpace(v.Email))
		if name == "" || email == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "voter name and email are required")
		}
		creds, err := NewVoterCredentials()
		if err != nil {
			return nil, dErrors.New(dErrors.CodeInternal, "failed to generate voter credentials")
		}
		voters = append(voters, Voter{
			ID:       uuid.New(),
			Name:     name,
			Email:    email,
			VoterID:  creds.VoterID,
			VoterKey: creds.VoterKey,
		})
	}

	slug, err := NewVotingSlug()
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInternal, "failed to generate voting URL")
	}

	return &Election{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		CreatorID:   creatorID,
		Nominees:    nominees,
		Voters:      voters,
		Status:      StatusPending,
		VotingURL:   slug,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func validateWindow(start, end, now time.Time) error {
	if start.IsZero() || end.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "start date and end date are required")
	}
	if !end.After(start) {
		return dErrors.New(dErrors.CodeBadRequest, "end date must be after start date")
	}
	if !start.After(now) {
		return dErrors.New(dErrors.CodeBadRequest, "start date must be in the future")
	}
	if end.Sub(start) < MinDuration {
		return dErrors.New(dErrors.CodeBadRequest, "election must run for at least 5 minutes")
	}
	return nil
}

// RegenerateSlug replaces the voting slug after a uniqueness collision.
func (e *Election) RegenerateSlug() error {
	slug, err := NewVotingSlug()
	if err != nil {
		return err
	}
	e.VotingURL = slug
	return nil
}

// RegenerateVoterCredentials replaces every voter's credentials after a
// voter-ID uniqueness collision. Voter IDs are globally unique across
// elections, so any colliding roster is re-rolled wholesale.
func (e *Election) RegenerateVoterCredentials() error {
	for i := range e.Voters {
		creds, err := NewVoterCredentials()
		if err != nil {
			return err
		}
		e.Voters[i].VoterID = creds.VoterID
		e.Voters[i].VoterKey = creds.VoterKey
	}
	return nil
}

// CurrentStatus derives voting eligibility from the live clock. The manual
// closed override always wins; otherwise only the window matters, regardless
// of the stored Status.
func (e *Election) CurrentStatus(now time.Time) CurrentStatus {
	if e.Status == StatusClosed {
		return CurrentStatusClosed
	}
	if now.Before(e.StartDate) {
		return CurrentStatusNotStarted
	}
	if now.After(e.EndDate) {
		return CurrentStatusExpired
	}
	return CurrentStatusActive
}

// IsActiveForVoting reports whether a ballot may be accepted at now.
func (e *Election) IsActiveForVoting(now time.Time) bool {
	return e.CurrentStatus(now) == CurrentStatusActive
}

// HasEnded reports whether results may be distributed: manually closed, swept
// to completed, or simply past the end date.
func (e *Election) HasEnded(now time.Time) bool {
	return e.Status == StatusClosed || e.Status == StatusCompleted || now.After(e.EndDate)
}

// TimeUntilStart returns the remaining wait before voting opens, or zero once
// the window has opened.
func (e *Election) TimeUntilStart(now time.Time) time.Duration {
	if !now.Before(e.StartDate) {
		return 0
	}
	return e.StartDate.Sub(now)
}

// TimeUntilEnd returns the remaining voting time, or zero once the window has
// closed.
func (e *Election) TimeUntilEnd(now time.Time) time.Duration {
	if !now.Before(e.EndDate) {
		return 0
	}
	return e.EndDate.Sub(now)
}

// FindVoter matches credentials as a conjunction after upper-casing both
// halves. Callers must not reveal which half failed.
func (e *Election) FindVoter(voterID, voterKey string) (*Voter, bool) {
	voterID = strings.ToUpper(strings.TrimSpace(voterID))
	voterKey = strings.ToUpper(strings.TrimSpace(voterKey))
	for i := range e.Voters {
		if e.Voters[i].VoterID == voterID && e.Voters[i].VoterKey == voterKey {
			return &e.Voters[i], true
		}
	}
	return nil, false
}

// FindNominee looks a nominee up by ID, the only valid ballot selector.
func (e *Election) FindNominee(nomineeID uuid.UUID) (*Nominee, bool) {
	for i := range e.Nominees {
		if e.Nominees[i].ID == nomineeID {
			return &e.Nominees[i], true
		}
	}
	return nil, false
}

// VotedCount returns how many voters have cast a ballot.
func (e *Election) VotedCount() int {
	count := 0
	for i := range e.Voters {
		if e.Voters[i].HasVoted {
			count++
		}
	}
	return count
}
