// Package mailer is the notification sender: voter credentials at creation,
// vote confirmations after an accepted ballot, and bulk results when the
// organizer triggers distribution. Every send is best-effort from the
// caller's perspective; delivery failure never rolls back domain state.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ballotbox/internal/election"
	"ballotbox/internal/platform/config"
	"ballotbox/internal/platform/metrics"
)

// Sender is what the election and voting services depend on.
type Sender interface {
	SendVoterCredentials(ctx context.Context, e *election.Election, voter election.Voter) error
	SendVoteConfirmation(ctx context.Context, e *election.Election, voter election.Voter, nomineeName string, votedAt time.Time) error
	// SendResults mails the final tally to every voter and returns how many
	// messages were delivered.
	SendResults(ctx context.Context, e *election.Election, tally election.TallyResult) (int, error)
}

// bulkSendConcurrency bounds parallel SMTP connections during results
// distribution.
const bulkSendConcurrency = 4

// SMTPSender delivers over plain SMTP. Configuration is injected at
// construction; the mailer never reads process environment itself.
type SMTPSender struct {
	cfg         config.SMTPConfig
	frontendURL string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewSMTPSender(cfg config.SMTPConfig, frontendURL string, logger *slog.Logger, m *metrics.Metrics) *SMTPSender {
	return &SMTPSender{cfg: cfg, frontendURL: frontendURL, logger: logger, metrics: m}
}

func (s *SMTPSender) SendVoterCredentials(ctx context.Context, e *election.Election, voter election.Voter) error {
	body, err := renderCredentials(credentialsData{
		ElectionTitle: e.Title,
		Description:   e.Description,
		VoterName:     voter.Name,
		VoterID:       voter.VoterID,
		VoterKey:      voter.VoterKey,
		VotingLink:    s.votingLink(e),
		StartDate:     formatDate(e.StartDate),
		EndDate:       formatDate(e.EndDate),
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, voter.Email, "Voting Credentials for: "+e.Title, body)
}

func (s *SMTPSender) SendVoteConfirmation(ctx context.Context, e *election.Election, voter election.Voter, nomineeName string, votedAt time.Time) error {
	body, err := renderConfirmation(confirmationData{
		ElectionTitle: e.Title,
		VoterName:     voter.Name,
		VoterID:       voter.VoterID,
		NomineeName:   nomineeName,
		VotedAt:       formatDate(votedAt),
		EndDate:       formatDate(e.EndDate),
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, voter.Email, "Vote Confirmation - "+e.Title, body)
}

func (s *SMTPSender) SendResults(ctx context.Context, e *election.Election, tally election.TallyResult) (int, error) {
	data := resultsData{
		ElectionTitle: e.Title,
		WinnerText:    winnerText(tally),
		Rows:          resultRows(tally),
		TotalVotes:    tally.TotalVotes,
		TotalVoters:   tally.TotalVoters,
		Turnout:       fmt.Sprintf("%.2f", tally.Turnout),
		StartDate:     formatDate(e.StartDate),
		EndDate:       formatDate(e.EndDate),
	}

	var sent atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkSendConcurrency)
	for _, voter := range e.Voters {
		g.Go(func() error {
			data := data
			data.VoterName = voter.Name
			body, err := renderResults(data)
			if err != nil {
				return err
			}
			if err := s.deliver(gctx, voter.Email, "Election Results: "+e.Title, body); err != nil {
				// Count failures but keep mailing the rest of the roster.
				s.logger.WarnContext(gctx, "results email failed",
					"election_id", e.ID.String(),
					"email", voter.Email,
					"error", err,
				)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(sent.Load()), err
	}
	return int(sent.Load()), nil
}

func (s *SMTPSender) votingLink(e *election.Election) string {
	return strings.TrimRight(s.frontendURL, "/") + "/vote/" + e.VotingURL
}

// deliver speaks SMTP directly. When no host is configured the message is
// logged instead so local development works without a relay.
func (s *SMTPSender) deliver(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.Host == "" {
		s.logger.InfoContext(ctx, "smtp not configured, logging email instead",
			"to", to,
			"subject", subject,
		)
		s.metrics.EmailsSent.Inc()
		return nil
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: Ballotbox <%s>\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, from, []string{to}, msg.Bytes()); err != nil {
		s.metrics.EmailsFailed.Inc()
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	s.metrics.EmailsSent.Inc()
	return nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format("January 2, 2006 15:04 MST")
}

func winnerText(tally election.TallyResult) string {
	switch {
	case len(tally.Winners) == 0:
		return "No votes were cast in this election"
	case len(tally.Winners) == 1:
		w := tally.Winners[0]
		plural := "s"
		if w.VoteCount == 1 {
			plural = ""
		}
		return fmt.Sprintf("Winner: %s with %d vote%s", w.Name, w.VoteCount, plural)
	default:
		names := make([]string, 0, len(tally.Winners))
		for _, w := range tally.Winners {
			names = append(names, fmt.Sprintf("%s (%d votes)", w.Name, w.VoteCount))
		}
		return "Tie between: " + strings.Join(names, ", ")
	}
}

func resultRows(tally election.TallyResult) []resultRow {
	rows := make([]resultRow, 0, len(tally.Nominees))
	for _, n := range tally.Nominees {
		rows = append(rows, resultRow{
			Name:       n.Name,
			Votes:      n.VoteCount,
			Percentage: fmt.Sprintf("%.2f", n.Percentage),
		})
	}
	return rows
}
