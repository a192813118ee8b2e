package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"ballotbox/internal/lockout"
	"ballotbox/internal/voting"
	dErrors "ballotbox/pkg/domainerrors"
)

type votingHandler struct {
	voting  *voting.Service
	lockout *lockout.Service
	logger  *slog.Logger
}

func newVotingHandler(votingSvc *voting.Service, lockoutSvc *lockout.Service, logger *slog.Logger) *votingHandler {
	return &votingHandler{voting: votingSvc, lockout: lockoutSvc, logger: logger}
}

type verifyVoterRequest struct {
	VotingURL string `json:"votingUrl"`
	VoterID   string `json:"voterId"`
	VoterKey  string `json:"voterKey"`
}

func (h *votingHandler) handleVerifyVoter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyVoterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.VotingURL == "" || req.VoterID == "" || req.VoterKey == "" {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "voting URL, voter ID, and voter key are required"))
		return
	}

	if err := h.checkLockout(ctx, req.VoterID); err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.voting.Verify(ctx, voting.VerifyRequest{
		VotingURL: req.VotingURL,
		VoterID:   req.VoterID,
		VoterKey:  req.VoterKey,
	})
	if err != nil {
		h.noteOutcome(ctx, req.VoterID, err)
		writeError(w, err)
		return
	}
	h.noteOutcome(ctx, req.VoterID, nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "credentials verified successfully",
		"voter":   summary,
	})
}

type castVoteRequest struct {
	// VotingURL is optional; without it the election is resolved from the
	// credentials alone.
	VotingURL string `json:"votingUrl"`
	VoterID   string `json:"voterId"`
	VoterKey  string `json:"voterKey"`
	NomineeID string `json:"nomineeId"`
}

func (h *votingHandler) handleCastVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.VoterID == "" || req.VoterKey == "" || req.NomineeID == "" {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "voter ID, voter key, and nominee selection are required"))
		return
	}
	nomineeID, err := uuid.Parse(req.NomineeID)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid nominee selected"))
		return
	}

	if err := h.checkLockout(ctx, req.VoterID); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := h.voting.Cast(ctx, voting.CastRequest{
		VotingURL: req.VotingURL,
		VoterID:   req.VoterID,
		VoterKey:  req.VoterKey,
		NomineeID: nomineeID,
		Client:    clientInfo(r),
	})
	if err != nil {
		h.noteOutcome(ctx, req.VoterID, err)
		writeError(w, err)
		return
	}
	h.noteOutcome(ctx, req.VoterID, nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "vote cast successfully",
		"nominee": receipt.Nominee,
		"votedAt": receipt.VotedAt,
	})
}

func (h *votingHandler) checkLockout(ctx context.Context, voterID string) error {
	if h.lockout == nil {
		return nil
	}
	return h.lockout.Check(ctx, voterID)
}

// noteOutcome feeds the lockout counters: credential failures count against
// the voter ID, a success clears it. Other rejections (window, already
// voted) are not guessing attempts.
func (h *votingHandler) noteOutcome(ctx context.Context, voterID string, err error) {
	if h.lockout == nil {
		return
	}
	switch {
	case err == nil:
		h.lockout.Reset(ctx, voterID)
	case dErrors.Is(err, dErrors.CodeUnauthorized):
		h.lockout.RecordFailure(ctx, voterID)
	}
}

func clientInfo(r *http.Request) voting.ClientInfo {
	raw := r.UserAgent()
	if raw == "" {
		return voting.ClientInfo{}
	}
	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	return voting.ClientInfo{Browser: browser, OS: ua.OS()}
}
