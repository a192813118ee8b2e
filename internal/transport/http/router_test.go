package httptransport

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballotbox/internal/audit"
	"ballotbox/internal/election"
	electionservice "ballotbox/internal/election/service"
	"ballotbox/internal/election/store"
	"ballotbox/internal/jwttoken"
	"ballotbox/internal/lockout"
	"ballotbox/internal/mailer"
	"ballotbox/internal/platform/metrics"
	"ballotbox/internal/voting"
	"ballotbox/pkg/testutil"
)

// harness wires the full router against in-memory infrastructure. The clock
// is shared between both services so tests can move time.
type harness struct {
	router http.Handler
	store  *store.InMemoryStore
	sender *mailer.RecorderSender
	jwt    *jwttoken.Service
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:  store.NewInMemoryStore(),
		sender: mailer.NewRecorderSender(),
		jwt:    jwttoken.NewService("test-signing-key", "ballotbox", "ballotbox"),
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	logger := slog.New(slog.DiscardHandler)
	m := metrics.NewWith(prometheus.NewRegistry())
	auditor := audit.NewRecorder()

	elections, err := electionservice.New(h.store, h.sender, auditor, m, logger, electionservice.WithClock(clock))
	require.NoError(t, err)
	votes, err := voting.New(h.store, h.sender, auditor, m, logger, voting.WithClock(clock))
	require.NoError(t, err)
	lockouts, err := lockout.New(lockout.NewInMemoryStore(), 3, time.Minute, logger)
	require.NoError(t, err)

	h.router = NewRouter(Deps{
		Elections:   elections,
		Voting:      votes,
		Lockout:     lockouts,
		JWT:         h.jwt,
		Logger:      logger,
		Metrics:     m,
		FrontendURL: "http://localhost:3000",
	})
	return h
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := h.jwt.GenerateAccessToken(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (h *harness) authed(t *testing.T, req *http.Request, userID string) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+h.token(t, userID))
	return req
}

func (h *harness) createBody() map[string]any {
	return map[string]any{
		"title":       "Board Election",
		"description": "Annual board election",
		"nominees":    []string{"Alice", "Bob"},
		"voters": []map[string]string{
			{"name": "Carol", "email": "carol@example.com"},
			{"name": "Dave", "email": "dave@example.com"},
		},
		"startDate": h.now.Add(time.Hour).Format(time.RFC3339),
		"endDate":   h.now.Add(2 * time.Hour).Format(time.RFC3339),
	}
}

// createElection drives the real endpoint and returns the stored aggregate,
// which carries the voter keys the response never exposes.
func (h *harness) createElection(t *testing.T, creatorID string) *election.Election {
	t.Helper()
	req := h.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/elections/create-election", h.createBody()), creatorID)
	rr := testutil.DoRequest(h.router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	list, err := h.store.ListByCreator(req.Context(), creatorID)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	return list[0]
}

func TestCreateElection(t *testing.T) {
	h := newHarness(t)

	t.Run("success returns 201 with summary and email status", func(t *testing.T) {
		req := h.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/elections/create-election", h.createBody()), "creator-1")
		rr := testutil.DoRequest(h.router, req)

		testutil.AssertStatus(t, rr, http.StatusCreated)
		testutil.AssertJSONContains(t, rr, "message", "election created successfully")

		body := *testutil.UnmarshalResponse[map[string]any](t, rr)
		emailStatus := body["emailStatus"].(map[string]any)
		assert.EqualValues(t, 2, emailStatus["sent"])
		assert.EqualValues(t, 0, emailStatus["failed"])

		e := body["election"].(map[string]any)
		assert.Equal(t, "pending", e["status"])
		assert.Equal(t, "not-started", e["currentStatus"])
		assert.Contains(t, e["votingUrl"], "http://localhost:3000/vote/")
		assert.NotContains(t, rr.Body.String(), "voterKey", "credentials never appear in responses")
	})

	t.Run("without a token is 401", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/elections/create-election", h.createBody())
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := h.authed(t, testutil.NewRequestWithBody(t, http.MethodPost, "/elections/create-election", "{nope"), "creator-1")
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("validation failure surfaces the message", func(t *testing.T) {
		body := h.createBody()
		body["nominees"] = []string{"Only One"}
		req := h.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/elections/create-election", body), "creator-1")
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
		testutil.AssertJSONContains(t, rr, "message", "at least 2 nominees are required")
	})
}

func TestMyElections(t *testing.T) {
	h := newHarness(t)
	h.createElection(t, "creator-1")
	h.createElection(t, "creator-2")

	req := h.authed(t, testutil.NewRequest(t, http.MethodGet, "/elections/my-elections"), "creator-1")
	rr := testutil.DoRequest(h.router, req)

	testutil.AssertStatusOK(t, rr)
	body := *testutil.UnmarshalResponse[map[string]any](t, rr)
	assert.EqualValues(t, 1, body["total"])
	elections := body["elections"].([]any)
	require.Len(t, elections, 1)

	first := elections[0].(map[string]any)
	assert.Equal(t, "Board Election", first["title"])
	assert.NotNil(t, first["timeUntilStart"], "window has not opened yet")
	assert.NotContains(t, rr.Body.String(), "voterKey")
}

func TestPublicView(t *testing.T) {
	h := newHarness(t)
	e := h.createElection(t, "creator-1")

	t.Run("found", func(t *testing.T) {
		rr := testutil.DoRequest(h.router, testutil.NewRequest(t, http.MethodGet, "/elections/vote/"+e.VotingURL))
		testutil.AssertStatusOK(t, rr)

		body := *testutil.UnmarshalResponse[map[string]any](t, rr)
		view := body["election"].(map[string]any)
		assert.Equal(t, "Board Election", view["title"])
		assert.Equal(t, false, view["isActiveForVoting"])
		assert.EqualValues(t, 2, view["totalVoters"])
		nominees := view["nominees"].([]any)
		assert.Len(t, nominees, 2)
		assert.NotContains(t, rr.Body.String(), "voterId", "public page reveals no voter records")
	})

	t.Run("unknown slug is 404", func(t *testing.T) {
		rr := testutil.DoRequest(h.router, testutil.NewRequest(t, http.MethodGet, "/elections/vote/nope"))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}

func TestVerifyVoter(t *testing.T) {
	h := newHarness(t)
	e := h.createElection(t, "creator-1")
	h.now = e.StartDate.Add(time.Minute)
	voter := e.Voters[0]

	t.Run("valid credentials", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/elections/verify-voter", map[string]string{
			"votingUrl": e.VotingURL,
			"voterId":   voter.VoterID,
			"voterKey":  voter.VoterKey,
		})
		rr := testutil.DoRequest(h.router, req)

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "message", "credentials verified successfully")
		body := *testutil.UnmarshalResponse[map[string]any](t, rr)
		v := body["voter"].(map[string]any)
		assert.Equal(t, "Carol", v["name"])
		assert.Equal(t, false, v["hasVoted"])
	})

	t.Run("missing fields", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/elections/verify-voter", map[string]string{
			"votingUrl": e.VotingURL,
		})
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("wrong key", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/elections/verify-voter", map[string]string{
			"votingUrl": e.VotingURL,
			"voterId":   voter.VoterID,
			"voterKey":  "000000000000",
		})
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
		testutil.AssertJSONContains(t, rr, "message", "invalid voter ID or key")
	})

	t.Run("repeated failures lock the voter ID out", func(t *testing.T) {
		locked := e.Voters[1]
		bad := func() *http.Request {
			return testutil.NewJSONRequest(t, http.MethodPost, "/elections/verify-voter", map[string]string{
				"votingUrl": e.VotingURL,
				"voterId":   locked.VoterID,
				"voterKey":  "000000000000",
			})
		}
		for i := 0; i < 3; i++ {
			rr := testutil.DoRequest(h.router, bad())
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		}

		rr := testutil.DoRequest(h.router, bad())
		testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "too_many_requests")

		// The lockout applies even with the right key.
		req := testutil.NewJSONRequest(t, http.MethodPost, "/elections/verify-voter", map[string]string{
			"votingUrl": e.VotingURL,
			"voterId":   locked.VoterID,
			"voterKey":  locked.VoterKey,
		})
		rr = testutil.DoRequest(h.router, req)
		testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
	})
}

func TestCastVote(t *testing.T) {
	h := newHarness(t)
	e := h.createElection(t, "creator-1")
	h.now = e.StartDate.Add(time.Minute)
	voter := e.Voters[0]

	t.Run("success", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/elections/cast-vote", map[string]string{
			"votingUrl": e.VotingURL,
			"voterId":   voter.VoterID,
			"voterKey":  voter.VoterKey,
			"nomineeId": e.Nominees[0].ID.String(),
		})
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/125.0")
		rr := testutil.DoRequest(h.router, req)

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "message", "vote cast successfully")
		testutil.AssertJSONContains(t, rr, "nominee", "Alice")
	})

	t.Run("second attempt reports already voted", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/elections/cast-vote", map[string]string{
			"votingUrl": e.VotingURL,
			"voterId":   voter.VoterID,
			"voterKey":  voter.VoterKey,
			"nomineeId": e.Nominees[1].ID.String(),
		})
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "already_voted")
	})

	t.Run("votingUrl is optional", func(t *testing.T) {
		second := e.Voters[1]
		req := testutil.NewJSONRequest(t, http.MethodPost, "/elections/cast-vote", map[string]string{
			"voterId":   second.VoterID,
			"voterKey":  second.VoterKey,
			"nomineeId": e.Nominees[1].ID.String(),
		})
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "nominee", "Bob")
	})

	t.Run("malformed nominee ID", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/elections/cast-vote", map[string]string{
			"votingUrl": e.VotingURL,
			"voterId":   voter.VoterID,
			"voterKey":  voter.VoterKey,
			"nomineeId": "not-a-uuid",
		})
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
		testutil.AssertJSONContains(t, rr, "message", "invalid nominee selected")
	})
}

func TestCastVoteOutsideWindow(t *testing.T) {
	h := newHarness(t)
	e := h.createElection(t, "creator-1")
	voter := e.Voters[0]

	req := testutil.NewJSONRequest(t, http.MethodPost, "/elections/cast-vote", map[string]string{
		"votingUrl": e.VotingURL,
		"voterId":   voter.VoterID,
		"voterKey":  voter.VoterKey,
		"nomineeId": e.Nominees[0].ID.String(),
	})
	rr := testutil.DoRequest(h.router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_state")
	testutil.AssertJSONContains(t, rr, "message", "election has not started yet")
}

func TestResults(t *testing.T) {
	h := newHarness(t)
	e := h.createElection(t, "creator-1")

	t.Run("owner sees the tally", func(t *testing.T) {
		req := h.authed(t, testutil.NewRequest(t, http.MethodGet, "/elections/results/"+e.ID.String()), "creator-1")
		rr := testutil.DoRequest(h.router, req)

		testutil.AssertStatusOK(t, rr)
		body := *testutil.UnmarshalResponse[map[string]any](t, rr)
		view := body["election"].(map[string]any)
		assert.EqualValues(t, 0, view["totalVotes"])
		assert.EqualValues(t, 2, view["totalVoters"])
		assert.EqualValues(t, 0, view["turnoutPercentage"])
		assert.Nil(t, view["winners"], "no winners before any votes")
	})

	t.Run("wrong creator is 404", func(t *testing.T) {
		req := h.authed(t, testutil.NewRequest(t, http.MethodGet, "/elections/results/"+e.ID.String()), "creator-2")
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("malformed ID is 404 not 400", func(t *testing.T) {
		req := h.authed(t, testutil.NewRequest(t, http.MethodGet, "/elections/results/not-a-uuid"), "creator-1")
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}

func TestSendResults(t *testing.T) {
	h := newHarness(t)
	e := h.createElection(t, "creator-1")

	t.Run("rejected while running", func(t *testing.T) {
		h.now = e.StartDate.Add(time.Minute)
		req := h.authed(t, testutil.NewRequest(t, http.MethodPost, "/elections/send-results/"+e.ID.String()), "creator-1")
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_state")
	})

	t.Run("allowed after the end", func(t *testing.T) {
		h.now = e.EndDate.Add(time.Minute)
		req := h.authed(t, testutil.NewRequest(t, http.MethodPost, "/elections/send-results/"+e.ID.String()), "creator-1")
		rr := testutil.DoRequest(h.router, req)

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "message", "election results sent successfully to all voters")
		body := *testutil.UnmarshalResponse[map[string]any](t, rr)
		assert.EqualValues(t, 2, body["sentTo"])
	})
}

func TestDeleteElection(t *testing.T) {
	h := newHarness(t)
	e := h.createElection(t, "creator-1")

	t.Run("wrong creator is 404", func(t *testing.T) {
		req := h.authed(t, testutil.NewRequest(t, http.MethodDelete, "/elections/"+e.ID.String()), "creator-2")
		rr := testutil.DoRequest(h.router, req)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("owner delete", func(t *testing.T) {
		req := h.authed(t, testutil.NewRequest(t, http.MethodDelete, "/elections/"+e.ID.String()), "creator-1")
		rr := testutil.DoRequest(h.router, req)

		testutil.AssertStatusOK(t, rr)
		body := *testutil.UnmarshalResponse[map[string]any](t, rr)
		deleted := body["deletedElection"].(map[string]any)
		assert.Equal(t, "Board Election", deleted["title"])

		rr = testutil.DoRequest(h.router, testutil.NewRequest(t, http.MethodGet, "/elections/vote/"+e.VotingURL))
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rr := testutil.DoRequest(h.router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	rr := testutil.DoRequest(h.router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	assert.Equal(t, http.StatusOK, rr.Code)
}
