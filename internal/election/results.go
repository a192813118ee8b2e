package election

import "math"

// NomineeResult is one row of a tally.
type NomineeResult struct {
	Nominee
	Percentage float64 `json:"percentage"`
}

// TallyResult is the derived, read-only view of an election's outcome.
// Winners is a tie-set: every nominee sharing the max vote count, and empty
// when no votes were cast.
type TallyResult struct {
	Nominees     []NomineeResult `json:"nominees"`
	TotalVotes   int             `json:"totalVotes"`
	TotalVoters  int             `json:"totalVoters"`
	VotedCount   int             `json:"votedCount"`
	PendingCount int             `json:"pendingCount"`
	Turnout      float64         `json:"turnoutPercentage"`
	Winners      []Nominee       `json:"winners"`
}

// Tally computes the full results view. Percentages are rounded to two
// decimals and are 0.00 whenever the denominator is zero.
func Tally(e *Election) TallyResult {
	totalVotes := 0
	for i := range e.Nominees {
		totalVotes += e.Nominees[i].VoteCount
	}

	nominees := make([]NomineeResult, 0, len(e.Nominees))
	for _, n := range e.Nominees {
		pct := 0.0
		if totalVotes > 0 {
			pct = round2(float64(n.VoteCount) / float64(totalVotes) * 100)
		}
		nominees = append(nominees, NomineeResult{Nominee: n, Percentage: pct})
	}

	votedCount := e.VotedCount()
	turnout := 0.0
	if len(e.Voters) > 0 {
		turnout = round2(float64(votedCount) / float64(len(e.Voters)) * 100)
	}

	var winners []Nominee
	if totalVotes > 0 {
		maxVotes := 0
		for _, n := range e.Nominees {
			if n.VoteCount > maxVotes {
				maxVotes = n.VoteCount
			}
		}
		for _, n := range e.Nominees {
			if n.VoteCount == maxVotes {
				winners = append(winners, n)
			}
		}
	}

	return TallyResult{
		Nominees:     nominees,
		TotalVotes:   totalVotes,
		TotalVoters:  len(e.Voters),
		VotedCount:   votedCount,
		PendingCount: len(e.Voters) - votedCount,
		Turnout:      turnout,
		Winners:      winners,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
