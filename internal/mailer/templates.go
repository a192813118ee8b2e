package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

type credentialsData struct {
	ElectionTitle string
	Description   string
	VoterName     string
	VoterID       string
	VoterKey      string
	VotingLink    string
	StartDate     string
	EndDate       string
}

type confirmationData struct {
	ElectionTitle string
	VoterName     string
	VoterID       string
	NomineeName   string
	VotedAt       string
	EndDate       string
}

type resultRow struct {
	Name       string
	Votes      int
	Percentage string
}

type resultsData struct {
	ElectionTitle string
	VoterName     string
	WinnerText    string
	Rows          []resultRow
	TotalVotes    int
	TotalVoters   int
	Turnout       string
	StartDate     string
	EndDate       string
}

var credentialsTmpl = template.Must(template.New("credentials").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6;">
  <h1>Ballotbox</h1>
  <h2>Election: {{.ElectionTitle}}</h2>
  <p>Dear {{.VoterName}},</p>
  <p>You have been registered as a voter for the election <strong>{{.ElectionTitle}}</strong>.</p>
  <h3>Election Schedule</h3>
  <p><strong>Start:</strong> {{.StartDate}}<br>
     <strong>End:</strong> {{.EndDate}}</p>
  <p>You can only vote during this time period.</p>
  <h3>Your Voting Credentials</h3>
  <p><strong>Voter ID:</strong> <code>{{.VoterID}}</code><br>
     <strong>Voter Key:</strong> <code>{{.VoterKey}}</code></p>
  <p><strong>Voting URL:</strong> <a href="{{.VotingLink}}">{{.VotingLink}}</a></p>
  <h3>Instructions</h3>
  <ul>
    <li>Keep your credentials safe and confidential.</li>
    <li>You can only vote once during the election period.</li>
    <li>Enter your Voter ID and Voter Key exactly as provided.</li>
  </ul>
  <h3>Election Description</h3>
  <p>{{.Description}}</p>
  <p>Thank you for participating.</p>
</body>
</html>`))

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6;">
  <h1>Vote Confirmation</h1>
  <h2>{{.ElectionTitle}}</h2>
  <p>Dear {{.VoterName}},</p>
  <p>Your vote has been successfully recorded.</p>
  <p><strong>Candidate voted for:</strong> {{.NomineeName}}<br>
     <strong>Date &amp; time:</strong> {{.VotedAt}}<br>
     <strong>Voter ID:</strong> {{.VoterID}}</p>
  <p>This email confirms that your vote has been securely recorded.
     Your vote cannot be changed once submitted.</p>
  <p>Election end time: {{.EndDate}}</p>
</body>
</html>`))

var resultsTmpl = template.Must(template.New("results").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6;">
  <h1>Election Results</h1>
  <h2>{{.ElectionTitle}}</h2>
  <p>Dear {{.VoterName}},</p>
  <p>The election <strong>{{.ElectionTitle}}</strong> has concluded. Here are the final results:</p>
  <p><strong>{{.WinnerText}}</strong></p>
  <table border="1" cellpadding="8" cellspacing="0">
    <tr><th>Candidate</th><th>Votes</th><th>Percentage</th></tr>
    {{range .Rows}}<tr><td>{{.Name}}</td><td>{{.Votes}}</td><td>{{.Percentage}}%</td></tr>
    {{end}}
  </table>
  <p>Total votes cast: {{.TotalVotes}} out of {{.TotalVoters}} eligible voters<br>
     Voter turnout: {{.Turnout}}%<br>
     Election period: {{.StartDate}} &ndash; {{.EndDate}}</p>
  <p>Thank you for participating.</p>
</body>
</html>`))

func renderCredentials(data credentialsData) (string, error) {
	return render(credentialsTmpl, data)
}

func renderConfirmation(data confirmationData) (string, error) {
	return render(confirmationTmpl, data)
}

func renderResults(data resultsData) (string, error) {
	return render(resultsTmpl, data)
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
