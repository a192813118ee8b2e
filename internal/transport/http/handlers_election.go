package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ballotbox/internal/election"
	electionservice "ballotbox/internal/election/service"
	"ballotbox/internal/platform/middleware"
	dErrors "ballotbox/pkg/domainerrors"
)

type electionHandler struct {
	elections   *electionservice.Service
	logger      *slog.Logger
	frontendURL string
}

func newElectionHandler(elections *electionservice.Service, logger *slog.Logger, frontendURL string) *electionHandler {
	return &electionHandler{elections: elections, logger: logger, frontendURL: frontendURL}
}

func (h *electionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creatorID := middleware.GetUserID(ctx)

	var input election.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.elections.Create(ctx, input, creatorID)
	if err != nil {
		writeError(w, err)
		return
	}

	e := result.Election
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "election created successfully",
		"emailStatus": result.EmailStatus,
		"election": map[string]any{
			"id": e.ID,
			"title": e.Title,
			"description": e.Description,
			"votingUrl": h.votingLink(e),
			"nominees": len(e.Nominees),
			"voters": len(e.Voters),
			"status": e.Status,
			"currentStatus": e.CurrentStatus(h.elections.Now()),
			"startDate": e.StartDate,
			"endDate": e.EndDate,
			"createdAt": e.CreatedAt,
		},
	})
}

type publicNominee struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// handlePublicView serves the public voting page data: metadata and
// time-derived status, never voter records or keys.
func (h *electionHandler) handlePublicView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	votingURL := chi.URLParam(r, "votingURL")

	e, err := h.elections.PublicView(ctx, votingURL)
	if err != nil {
		writeError(w, err)
		return
	}

	nominees := make([]publicNominee, 0, len(e.Nominees))
	for _, n := range e.Nominees {
		nominees = append(nominees, publicNominee{ID: n.ID, Name: n.Name})
	}

	now := h.elections.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"election": map[string]any{
			"id": e.ID,
			"title": e.Title,
			"description": e.Description,
			"nominees": nominees,
			"votingUrl": e.VotingURL,
			"status": e.Status,
			"currentStatus": e.CurrentStatus(now),
			"startDate": e.StartDate,
			"endDate": e.EndDate,
			"timeUntilStart": millisOrNull(e.TimeUntilStart(now)),
			"timeUntilEnd": millisOrNull(e.TimeUntilEnd(now)),
			"isActiveForVoting": e.IsActiveForVoting(now),
			"totalVoters": len(e.Voters),
			"votedCount": e.VotedCount(),
		},
	})
}

func (h *electionHandler) handleMyElections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creatorID := middleware.GetUserID(ctx)

	elections, err := h.elections.ListByCreator(ctx, creatorID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := h.elections.Now()
	summaries := make([]map[string]any, 0, len(elections))
	for _, e := range elections {
		summaries = append(summaries, map[string]any{
			"id": e.ID,
			"title": e.Title,
			"description": e.Description,
			"status": e.Status,
			"currentStatus": e.CurrentStatus(now),
			"votingUrl": h.votingLink(e),
			"votersCount": len(e.Voters),
			"votedCount": e.VotedCount(),
			"nomineeCount": len(e.Nominees),
			"startDate": e.StartDate,
			"endDate": e.EndDate,
			"createdAt": e.CreatedAt,
			"updatedAt": e.UpdatedAt,
			"timeUntilStart": millisOrNull(e.TimeUntilStart(now)),
			"timeUntilEnd": millisOrNull(e.TimeUntilEnd(now)),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"elections": summaries,
		"total": len(summaries),
	})
}

func (h *electionHandler) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creatorID := middleware.GetUserID(ctx)
	electionID, err := parseElectionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	e, tally, err := h.elections.Results(ctx, electionID, creatorID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := h.elections.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"election": map[string]any{
			"id": e.ID,
			"title": e.Title,
			"description": e.Description,
			"status": e.Status,
			"currentStatus": e.CurrentStatus(now),
			"startDate": e.StartDate,
			"endDate": e.EndDate,
			"createdAt": e.CreatedAt,
			"nominees": tally.Nominees,
			"winners": tally.Winners,
			"totalVotes": tally.TotalVotes,
			"totalVoters": tally.TotalVoters,
			"votedCount": tally.VotedCount,
			"pendingCount": tally.PendingCount,
			"turnoutPercentage": tally.Turnout,
			"timeUntilStart": millisOrNull(e.TimeUntilStart(now)),
			"timeUntilEnd": millisOrNull(e.TimeUntilEnd(now)),
			"isActiveForVoting": e.IsActiveForVoting(now),
		},
	})
}

func (h *electionHandler) handleSendResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creatorID := middleware.GetUserID(ctx)
	electionID, err := parseElectionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	sent, err := h.elections.SendResults(ctx, electionID, creatorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "election results sent successfully to all voters",
		"sentTo": sent,
	})
}

func (h *electionHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creatorID := middleware.GetUserID(ctx)
	electionID, err := parseElectionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	e, err := h.elections.Delete(ctx, electionID, creatorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "election deleted successfully",
		"deletedElection": map[string]any{
			"id": e.ID,
			"title": e.Title,
		},
	})
}

func (h *electionHandler) votingLink(e *election.Election) string {
	return strings.TrimRight(h.frontendURL, "/") + "/vote/" + e.VotingURL
}

func parseElectionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "electionID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeNotFound, "election not found or access denied")
	}
	return id, nil
}

// millisOrNull mirrors the frontend contract: remaining time in milliseconds,
// null once the boundary has passed.
func millisOrNull(d time.Duration) *int64 {
	if d <= 0 {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}
