// internal/app/system/mailer/summary.go
package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/dalemusser/boardhub/internal/domain/voting"
)

// VoteLine is one cast ballot in a summary.
type VoteLine struct {
	Name    string
	Choice  string
	Comment string
	CastAt  time.Time
}

// SummaryData holds data for the voting summary templates.
type SummaryData struct {
	SiteName  string
	ItemType  string // "Resolution" or "Minutes"
	ItemTitle string
	ItemURL   string

	Passed      bool
	StatusLabel string // e.g. "Approved", "Failed"
	ReasonLabel string // e.g. "All eligible voters have voted"
	CompletedAt time.Time

	Outcome           voting.Outcome
	MinimumQuorum     float64
	ApprovalThreshold float64
	RequiresMajority  bool

	// Votes must already be in chronological order.
	Votes     []VoteLine
	NonVoters []string

	RecipientName   string
	RecipientVoted  bool
	RecipientChoice string
}

var funcs = map[string]any{
	"pct": func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
	"ts":  func(t time.Time) string { return t.UTC().Format("Jan 2, 2006 15:04 UTC") },
	"yesno": func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	},
}

var (
	summaryHTML = htmltemplate.Must(htmltemplate.New("summary.html").Funcs(funcs).Parse(summaryHTMLTemplate))
	summaryText = texttemplate.Must(texttemplate.New("summary.txt").Funcs(funcs).Parse(summaryTextTemplate))
)

// BuildSummaryEmail renders the voting summary for one recipient. To is set
// by the caller.
func BuildSummaryEmail(data SummaryData) (Email, error) {
	verdict := "did not pass"
	if data.Passed {
		verdict = "passed"
	}

	var text, html bytes.Buffer
	if err := summaryText.Execute(&text, data); err != nil {
		return Email{}, fmt.Errorf("render text summary: %w", err)
	}
	if err := summaryHTML.Execute(&html, data); err != nil {
		return Email{}, fmt.Errorf("render html summary: %w", err)
	}

	return Email{
		ToName:   data.RecipientName,
		Subject:  fmt.Sprintf("[%s] %s %s: %s", data.SiteName, data.ItemType, verdict, strings.TrimSpace(data.ItemTitle)),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}

const summaryTextTemplate = `Hello {{.RecipientName}},

Voting has concluded on the {{.ItemType}} "{{.ItemTitle}}".

Result: {{.StatusLabel}}
Reason: {{.ReasonLabel}}
Completed: {{ts .CompletedAt}}
{{if .RecipientVoted}}
You voted: {{.RecipientChoice}}
{{else}}
You did not vote on this item.
{{end}}
Statistics
  Votes cast:          {{.Outcome.VotesCast}} of {{.Outcome.TotalEligible}} eligible
  Approve / Reject / Abstain: {{.Outcome.Approve}} / {{.Outcome.Reject}} / {{.Outcome.Abstain}}
  Participation:       {{pct .Outcome.ParticipationRate}} (quorum {{pct .MinimumQuorum}}, met: {{yesno .Outcome.QuorumMet}})
  Approval:            {{pct .Outcome.ApprovalPercentage}} (threshold {{pct .ApprovalThreshold}}{{if .RequiresMajority}}, majority required{{end}})
  Unanimous:           {{yesno .Outcome.IsUnanimous}}

Votes
{{range .Votes}}  - {{.Name}}: {{.Choice}} ({{ts .CastAt}})
    {{if .Comment}}{{.Comment}}{{else}}No comment provided{{end}}
{{else}}  No votes were cast.
{{end}}
Did not vote
{{range .NonVoters}}  - {{.}}
{{else}}  Everyone voted.
{{end}}{{if .ItemURL}}
View the item: {{.ItemURL}}
{{end}}`

const summaryHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Voting Summary</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 600px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 32px 32px 24px; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 22px; font-weight: 600; color: #1f2937;">{{.SiteName}}</h1>
              <p style="margin: 8px 0 0; font-size: 14px; color: #6b7280;">{{.ItemType}}: {{.ItemTitle}}</p>
            </td>
          </tr>
          <tr>
            <td style="padding: 24px 32px;">
              <p style="margin: 0 0 16px; font-size: 16px; color: #374151;">Hello {{.RecipientName}},</p>
              <p style="margin: 0 0 8px; font-size: 20px; font-weight: 700; color: {{if .Passed}}#047857{{else}}#b91c1c{{end}};">{{.StatusLabel}}</p>
              <p style="margin: 0 0 16px; font-size: 14px; color: #6b7280;">{{.ReasonLabel}} &middot; {{ts .CompletedAt}}</p>
              {{if .RecipientVoted}}
              <p style="margin: 0 0 24px; font-size: 14px; color: #374151;">You voted: <strong>{{.RecipientChoice}}</strong></p>
              {{else}}
              <p style="margin: 0 0 24px; font-size: 14px; color: #b45309;">You did not vote on this item.</p>
              {{end}}

              <h2 style="margin: 0 0 8px; font-size: 16px; color: #1f2937;">Statistics</h2>
              <table role="presentation" cellspacing="0" cellpadding="4" style="font-size: 14px; color: #374151; margin-bottom: 24px;">
                <tr><td>Votes cast</td><td>{{.Outcome.VotesCast}} of {{.Outcome.TotalEligible}}</td></tr>
                <tr><td>Approve / Reject / Abstain</td><td>{{.Outcome.Approve}} / {{.Outcome.Reject}} / {{.Outcome.Abstain}}</td></tr>
                <tr><td>Participation</td><td>{{pct .Outcome.ParticipationRate}} (quorum {{pct .MinimumQuorum}}, met: {{yesno .Outcome.QuorumMet}})</td></tr>
                <tr><td>Approval</td><td>{{pct .Outcome.ApprovalPercentage}} (threshold {{pct .ApprovalThreshold}}{{if .RequiresMajority}}, majority required{{end}})</td></tr>
                <tr><td>Unanimous</td><td>{{yesno .Outcome.IsUnanimous}}</td></tr>
              </table>

              <h2 style="margin: 0 0 8px; font-size: 16px; color: #1f2937;">Votes</h2>
              {{range .Votes}}
              <div style="border-left: 3px solid #e5e7eb; padding: 4px 12px; margin-bottom: 12px;">
                <p style="margin: 0; font-size: 14px; color: #1f2937;"><strong>{{.Name}}</strong>: {{.Choice}} <span style="color: #9ca3af;">{{ts .CastAt}}</span></p>
                <p style="margin: 4px 0 0; font-size: 13px; color: #6b7280;">{{if .Comment}}{{.Comment}}{{else}}No comment provided{{end}}</p>
              </div>
              {{else}}
              <p style="margin: 0 0 12px; font-size: 14px; color: #6b7280;">No votes were cast.</p>
              {{end}}

              <h2 style="margin: 16px 0 8px; font-size: 16px; color: #1f2937;">Did not vote</h2>
              {{if .NonVoters}}
              <ul style="margin: 0; padding-left: 20px; font-size: 14px; color: #374151;">
                {{range .NonVoters}}<li>{{.}}</li>{{end}}
              </ul>
              {{else}}
              <p style="margin: 0; font-size: 14px; color: #6b7280;">Everyone voted.</p>
              {{end}}

              {{if .ItemURL}}
              <p style="margin: 24px 0 0;"><a href="{{.ItemURL}}" style="color: #4f46e5;">View the item</a></p>
              {{end}}
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
