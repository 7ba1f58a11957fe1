package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/wolfman30/project-intake/internal/intake"
)

// templateView is the data every notification template renders against.
type templateView struct {
	RecipientName string
	TeamName      string
	intake.Payload
}

func (v templateView) Field(name string) string { return v.Fields[name] }

type bodyTemplates struct {
	text string
	html string
}

var notificationTemplates = map[string]bodyTemplates{
	intake.TemplateClientConfirmation: {
		text: `Hi {{.RecipientName}},

Thank you for your project request for {{.ServiceLabel}}. We have received the details below and our team will review them shortly.

Timeline: {{.Field "timeline"}}
Budget: {{.Field "budget"}}
{{- if .EstimatedCost}}
Estimated cost: {{.EstimatedCost}}
{{- end}}

Your message:
{{.Field "message"}}

Reference: {{.SubmissionID}}

{{.TeamName}}`,
		html: `<div style="font-family: sans-serif; max-width: 600px;">
<h2>Thanks, {{.RecipientName}}!</h2>
<p>We received your <strong>{{.ServiceLabel}}</strong> project request and will review it shortly.</p>
<ul>
<li>Timeline: {{.Field "timeline"}}</li>
<li>Budget: {{.Field "budget"}}</li>
{{- if .EstimatedCost}}<li>Estimated cost: {{.EstimatedCost}}</li>{{end}}
</ul>
<p style="white-space: pre-wrap;">{{.Field "message"}}</p>
<p style="color: #6b7280;">Reference: {{.SubmissionID}}</p>
</div>`,
	},
	intake.TemplateTeamAlert: {
		text: `New project request ({{.ServiceLabel}})

Name: {{.Field "name"}}
Email: {{.Field "email"}}
Phone: {{.Field "phone"}}
Company: {{.Field "company"}}
Industry: {{.Field "industry"}}
Preferred contact: {{.Field "contactMethod"}}
Timeline: {{.Field "timeline"}}
Budget: {{.Field "budget"}}
Estimated cost: {{.EstimatedCost}}

{{.Field "message"}}
{{if .Attachments}}
Attachments:
{{- range .Attachments}}
- {{.Name}} ({{.Type}}, {{.Size}} bytes)
{{- end}}
{{end}}
Submission: {{.SubmissionID}} at {{.SubmittedAt.Format "2006-01-02 15:04 MST"}}`,
	},
	intake.TemplateFollowUp: {
		text: `Hi {{.RecipientName}},

A few days ago you sent us a {{.ServiceLabel}} project request. We wanted to check in: is there anything you would like to add, or a good time for a call?

Reference: {{.SubmissionID}}

{{.TeamName}}`,
	},
}

// Render produces the text and optional HTML body for a template.
func Render(name string, view templateView) (text, html string, err error) {
	tmpl, ok := notificationTemplates[name]
	if !ok {
		return "", "", fmt.Errorf("notify: unknown template %q", name)
	}

	t, err := template.New(name).Option("missingkey=error").Parse(tmpl.text)
	if err != nil {
		return "", "", fmt.Errorf("notify: parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("notify: execute %s: %w", name, err)
	}
	text = buf.String()

	if tmpl.html == "" {
		return text, "", nil
	}
	h, err := htmltemplate.New(name).Option("missingkey=error").Parse(tmpl.html)
	if err != nil {
		return "", "", fmt.Errorf("notify: parse html %s: %w", name, err)
	}
	buf.Reset()
	if err := h.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("notify: execute html %s: %w", name, err)
	}
	return text, buf.String(), nil
}
