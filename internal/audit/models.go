// Package audit captures structured events for the actions that matter in an
// election system: creation, deletion, accepted ballots, result dispatch.
// Publishing is always best-effort from the caller's point of view; a broker
// outage must never block a vote.
package audit

import "time"

// Action identifies what happened.
type Action string

const (
	ActionElectionCreated Action = "election_created"
	ActionElectionDeleted Action = "election_deleted"
	ActionVoteCast        Action = "vote_cast"
	ActionResultsSent     Action = "results_sent"
)

// Event is emitted from domain logic. Keep it transport-agnostic so sinks can
// fan out. Metadata holds small contextual fields (client platform, counts);
// it must never hold voter keys.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Action     Action            `json:"action"`
	ElectionID string            `json:"electionId"`
	ActorID    string            `json:"actorId,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
