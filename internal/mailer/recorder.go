package mailer

import (
	"context"
	"sync"
	"time"

	"ballotbox/internal/election"
)

// RecordedMessage is one captured send.
type RecordedMessage struct {
	Kind    string
	To      string
	Subject string
}

// RecorderSender captures messages instead of delivering them. Tests assert
// on it; it can also stand in when no SMTP relay exists.
type RecorderSender struct {
	mu       sync.Mutex
	messages []RecordedMessage
	// FailFor lists recipient emails whose sends should fail, for exercising
	// the best-effort paths.
	FailFor map[string]bool
}

func NewRecorderSender() *RecorderSender {
	return &RecorderSender{FailFor: make(map[string]bool)}
}

func (r *RecorderSender) SendVoterCredentials(_ context.Context, e *election.Election, voter election.Voter) error {
	return r.record("credentials", voter.Email, "Voting Credentials for: "+e.Title)
}

func (r *RecorderSender) SendVoteConfirmation(_ context.Context, e *election.Election, voter election.Voter, _ string, _ time.Time) error {
	return r.record("confirmation", voter.Email, "Vote Confirmation - "+e.Title)
}

func (r *RecorderSender) SendResults(_ context.Context, e *election.Election, _ election.TallyResult) (int, error) {
	sent := 0
	for _, voter := range e.Voters {
		if err := r.record("results", voter.Email, "Election Results: "+e.Title); err == nil {
			sent++
		}
	}
	return sent, nil
}

func (r *RecorderSender) record(kind, to, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailFor[to] {
		return errSimulatedFailure
	}
	r.messages = append(r.messages, RecordedMessage{Kind: kind, To: to, Subject: subject})
	return nil
}

// Messages returns a snapshot of everything recorded so far.
func (r *RecorderSender) Messages() []RecordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedMessage(nil), r.messages...)
}

type simulatedError string

func (e simulatedError) Error() string { return string(e) }

var errSimulatedFailure = simulatedError("simulated delivery failure")
