package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/project-intake/internal/intake"
)

func samplePayload() intake.Payload {
	return intake.Payload{
		SubmissionID:    "sub-123",
		SessionID:       "sess-1",
		SubmittedAt:     time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC),
		SelectedService: "web-development",
		ServiceLabel:    "Web Development",
		Fields: map[string]string{
			"name":     "Jane Doe",
			"email":    "jane@example.com",
			"message":  "I need a modern website for my business.",
			"timeline": "1-3-months",
			"budget":   "4m-8m",
		},
		Attachments: []intake.RecordAttachment{{Name: "brief.pdf", Size: 2048, Type: "application/pdf"}},
	}
}

func TestRender_ClientConfirmation(t *testing.T) {
	text, html, err := Render(intake.TemplateClientConfirmation, templateView{
		RecipientName: "Jane Doe",
		TeamName:      "Project Team",
		Payload:       samplePayload(),
	})
	require.NoError(t, err)
	assert.Contains(t, text, "Hi Jane Doe")
	assert.Contains(t, text, "Web Development")
	assert.Contains(t, text, "Reference: sub-123")
	assert.NotContains(t, text, "Estimated cost")
	assert.Contains(t, html, "<strong>Web Development</strong>")
}

func TestRender_TeamAlertListsAttachments(t *testing.T) {
	text, html, err := Render(intake.TemplateTeamAlert, templateView{Payload: samplePayload()})
	require.NoError(t, err)
	assert.Empty(t, html)
	assert.Contains(t, text, "Email: jane@example.com")
	assert.Contains(t, text, "- brief.pdf (application/pdf, 2048 bytes)")
	assert.Contains(t, text, "2026-03-02 15:04 UTC")
}

func TestRender_HTMLEscapesInput(t *testing.T) {
	p := samplePayload()
	p.Fields["message"] = "<script>alert(1)</script> and more text"
	_, html, err := Render(intake.TemplateClientConfirmation, templateView{RecipientName: "Jane", Payload: p})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, _, err := Render("nope", templateView{})
	assert.Error(t, err)
}
