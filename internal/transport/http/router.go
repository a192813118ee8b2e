package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	electionservice "ballotbox/internal/election/service"
	"ballotbox/internal/lockout"
	"ballotbox/internal/platform/metrics"
	"ballotbox/internal/platform/middleware"
	"ballotbox/internal/voting"
)

// Deps is everything the router needs wired in from main.
type Deps struct {
	Elections   *electionservice.Service
	Voting      *voting.Service
	Lockout     *lockout.Service
	JWT         middleware.JWTValidator
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	FrontendURL string
}

// NewRouter wires all endpoints. Management routes sit behind JWT auth; the
// voting routes are public, protected only by voter credentials and the
// failure lockout.
func NewRouter(deps Deps) http.Handler {
	eh := newElectionHandler(deps.Elections, deps.Logger, deps.FrontendURL)
	vh := newVotingHandler(deps.Voting, deps.Lockout, deps.Logger)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Latency(deps.Metrics))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/elections", func(r chi.Router) {
		// Public voting surface.
		r.Get("/vote/{votingURL}", eh.handlePublicView)
		r.With(middleware.ContentTypeJSON).Post("/verify-voter", vh.handleVerifyVoter)
		r.With(middleware.ContentTypeJSON).Post("/cast-vote", vh.handleCastVote)

		// Organizer management surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(deps.JWT, deps.Logger))
			r.With(middleware.ContentTypeJSON).Post("/create-election", eh.handleCreate)
			r.Get("/my-elections", eh.handleMyElections)
			r.Get("/results/{electionID}", eh.handleResults)
			r.Post("/send-results/{electionID}", eh.handleSendResults)
			r.Delete("/{electionID}", eh.handleDelete)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
