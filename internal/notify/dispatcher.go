package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/project-intake/internal/intake"
	"github.com/wolfman30/project-intake/pkg/logging"
)

// ErrNoRecipient is returned when a dispatch has no destination address.
var ErrNoRecipient = errors.New("notify: recipient is required")

// FollowUpScheduler stores follow-ups for later delivery.
type FollowUpScheduler interface {
	Enqueue(ctx context.Context, f FollowUp) error
}

// Dispatcher renders intake notifications and hands them to an
// EmailSender, or to the follow-up queue when scheduled.
type Dispatcher struct {
	email     EmailSender
	followUps FollowUpScheduler
	teamName  string
	logger    *logging.Logger
}

// NewDispatcher creates a dispatcher. followUps may be nil, in which case
// Schedule always fails.
func NewDispatcher(email EmailSender, followUps FollowUpScheduler, teamName string, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if teamName == "" {
		teamName = "Project Team"
	}
	return &Dispatcher{email: email, followUps: followUps, teamName: teamName, logger: logger}
}

// Send renders and delivers d immediately.
func (d *Dispatcher) Send(ctx context.Context, dispatch intake.Dispatch) error {
	if strings.TrimSpace(dispatch.Recipient) == "" {
		return ErrNoRecipient
	}
	if d.email == nil {
		return fmt.Errorf("notify: email sender not configured")
	}
	text, html, err := Render(dispatch.Template, templateView{
		RecipientName: dispatch.RecipientName,
		TeamName:      d.teamName,
		Payload:       dispatch.Data,
	})
	if err != nil {
		return err
	}
	return d.email.Send(ctx, EmailMessage{
		To:      dispatch.Recipient,
		ToName:  dispatch.RecipientName,
		Subject: dispatch.Subject,
		Body:    text,
		HTML:    html,
	})
}

// Schedule queues d for delivery at the given time.
func (d *Dispatcher) Schedule(ctx context.Context, dispatch intake.Dispatch, at time.Time) error {
	if strings.TrimSpace(dispatch.Recipient) == "" {
		return ErrNoRecipient
	}
	if d.followUps == nil {
		return fmt.Errorf("notify: follow-up queue not configured")
	}
	f := FollowUp{
		ID:       dispatch.Data.SubmissionID,
		Dispatch: dispatch,
		DueAt:    at.UTC(),
	}
	if err := d.followUps.Enqueue(ctx, f); err != nil {
		return err
	}
	d.logger.Info("follow-up scheduled", "submission_id", f.ID, "due_at", f.DueAt.Format(time.RFC3339))
	return nil
}

var _ intake.Dispatcher = (*Dispatcher)(nil)
