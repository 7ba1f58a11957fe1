package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/project-intake/internal/observability/metrics"
	"github.com/wolfman30/project-intake/pkg/logging"
)

var submitTracer = otel.Tracer("intake.internal.submission")

// Notification templates understood by the dispatcher.
const (
	TemplateClientConfirmation = "client_confirmation"
	TemplateTeamAlert          = "team_alert"
	TemplateFollowUp           = "follow_up"
)

// DefaultFollowUpDelay is how long after submission the follow-up goes out.
const DefaultFollowUpDelay = 72 * time.Hour

const (
	baseSuccessMessage = "Thank you! Your project request has been submitted successfully."
	teamNotifiedClause = " Our team has been notified and will review your request shortly."
	followUpClause     = " We'll follow up with you in 3 days."
)

// Payload is the outbound submission handed to the notification service.
// It never carries file content.
type Payload struct {
	SubmissionID    string             `json:"submission_id"`
	SessionID       string             `json:"session_id"`
	SubmittedAt     time.Time          `json:"submitted_at"`
	Fields          map[string]string  `json:"fields"`
	SelectedService string             `json:"selected_service"`
	ServiceLabel    string             `json:"service_label"`
	EstimatedCost   string             `json:"estimated_cost"`
	Attachments     []RecordAttachment `json:"attachments"`
}

// Get returns the value of a form field.
func (p Payload) Get(f Field) string { return p.Fields[string(f)] }

// Dispatch is one request to the notification service.
type Dispatch struct {
	Recipient     string  `json:"recipient"`
	RecipientName string  `json:"recipient_name"`
	Subject       string  `json:"subject"`
	Template      string  `json:"template"`
	Data          Payload `json:"data"`
}

// Dispatcher is the external notification service. Send delivers now;
// Schedule arranges delivery at a later time. Neither is retried.
type Dispatcher interface {
	Send(ctx context.Context, d Dispatch) error
	Schedule(ctx context.Context, d Dispatch, at time.Time) error
}

// Recorder receives every completed submission after dispatch, for
// storage or downstream handoff. Failures never change the result.
type Recorder interface {
	Record(ctx context.Context, p Payload, r SubmissionResult) error
}

// SubmissionResult is the outcome of one submission attempt. It is built
// once and never modified.
type SubmissionResult struct {
	SubmissionID           string          `json:"submission_id"`
	ClientNotificationSent bool            `json:"client_notification_sent"`
	TeamNotificationSent   bool            `json:"team_notification_sent"`
	FollowUpScheduled      bool            `json:"follow_up_scheduled"`
	UserMessage            string          `json:"user_message"`
	State                  SubmissionState `json:"state"`
	SubmittedAt            time.Time       `json:"submitted_at"`
	FollowUpAt             time.Time       `json:"follow_up_at"`
}

// Degraded reports whether any side effect failed.
func (r SubmissionResult) Degraded() bool {
	return !r.ClientNotificationSent || !r.TeamNotificationSent || !r.FollowUpScheduled
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Dispatcher    Dispatcher
	TeamRecipient string
	TeamName      string
	FollowUpDelay time.Duration
	Recorders     []Recorder
	Metrics       *metrics.IntakeMetrics
	Logger        *logging.Logger
}

// Coordinator runs final validation, dispatches notifications, schedules
// the follow-up and reduces the outcomes into a SubmissionResult.
type Coordinator struct {
	cfg CoordinatorConfig
	now func() time.Time
}

// NewCoordinator builds a coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.FollowUpDelay <= 0 {
		cfg.FollowUpDelay = DefaultFollowUpDelay
	}
	if cfg.TeamName == "" {
		cfg.TeamName = "Project Team"
	}
	return &Coordinator{cfg: cfg, now: time.Now}
}

// Submit validates the final step of s and, when valid, performs the
// submission. A *ValidationError leaves the session Idle with the step's
// fields touched. Once validation passes Submit always returns a result
// with a non-empty UserMessage; dispatch failures only degrade it.
func (c *Coordinator) Submit(ctx context.Context, s *Session) (*SubmissionResult, error) {
	payload, err := c.begin(s)
	if err != nil {
		return nil, err
	}

	ctx, span := submitTracer.Start(ctx, "intake.submit", trace.WithAttributes(
		attribute.String("intake.session_id", s.ID()),
		attribute.String("intake.submission_id", payload.SubmissionID),
		attribute.String("intake.service", payload.SelectedService),
	))
	defer span.End()

	result := SubmissionResult{
		SubmissionID: payload.SubmissionID,
		SubmittedAt:  payload.SubmittedAt,
		FollowUpAt:   payload.SubmittedAt.Add(c.cfg.FollowUpDelay),
	}

	var g errgroup.Group
	g.Go(func() error {
		result.ClientNotificationSent = c.send(ctx, "client", c.clientDispatch(payload))
		return nil
	})
	g.Go(func() error {
		result.TeamNotificationSent = c.send(ctx, "team", c.teamDispatch(payload))
		return nil
	})
	_ = g.Wait()

	result.FollowUpScheduled = c.schedule(ctx, c.followUpDispatch(payload), result.FollowUpAt)
	result.UserMessage = composeMessage(result, payload.Get(FieldEmail))
	result.State = StateSucceeded
	if result.Degraded() {
		result.State = StateDegradedSucceeded
		span.SetStatus(codes.Error, "degraded submission")
	}
	span.SetAttributes(
		attribute.Bool("intake.client_notified", result.ClientNotificationSent),
		attribute.Bool("intake.team_notified", result.TeamNotificationSent),
		attribute.Bool("intake.follow_up_scheduled", result.FollowUpScheduled),
	)

	s.finish(result)
	if err := s.discardSaved(ctx); err != nil {
		c.cfg.Logger.Debug("saved draft not cleared", "session_id", s.ID(), "error", err)
	}

	for _, rec := range c.cfg.Recorders {
		if err := rec.Record(ctx, payload, result); err != nil {
			span.RecordError(err)
			c.cfg.Logger.Error("submission record failed", "submission_id", payload.SubmissionID, "error", err)
		}
	}

	c.cfg.Metrics.ObserveSubmission(string(result.State))

	level := c.cfg.Logger.Info
	if result.Degraded() {
		level = c.cfg.Logger.Warn
	}
	level("intake submission completed",
		"session_id", s.ID(),
		"submission_id", result.SubmissionID,
		"state", string(result.State),
		"client_notification_sent", result.ClientNotificationSent,
		"team_notification_sent", result.TeamNotificationSent,
		"follow_up_scheduled", result.FollowUpScheduled,
	)

	return &result, nil
}

// begin moves the session through Validating into Submitting and returns
// the payload built from its draft.
func (c *Coordinator) begin(s *Session) (Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateValidating || s.state == StateSubmitting {
		return Payload{}, ErrSubmissionInProgress
	}
	s.state = StateValidating
	s.result = nil

	step := s.draft.CurrentStep
	if step != LastStep {
		s.state = StateIdle
		return Payload{}, ErrNotFinalStep
	}
	if !ValidateStep(step, s.draft, s.cfg.Catalog) {
		s.touchStepLocked(step)
		s.state = StateIdle
		c.cfg.Metrics.ObserveSubmission("invalid")
		return Payload{}, &ValidationError{Step: step, Fields: stepErrors(step, s.draft, s.cfg.Catalog)}
	}

	rec := NewRecord(s.draft, c.now())
	p := Payload{
		SubmissionID:    uuid.NewString(),
		SessionID:       s.id,
		SubmittedAt:     rec.Timestamp,
		Fields:          rec.Form,
		SelectedService: rec.SelectedService,
		ServiceLabel:    s.cfg.Catalog.ServiceLabel(rec.SelectedService),
		EstimatedCost:   s.draft.Field(FieldEstimatedCost),
		Attachments:     rec.Attachments,
	}
	s.state = StateSubmitting
	return p, nil
}

func (c *Coordinator) clientDispatch(p Payload) Dispatch {
	return Dispatch{
		Recipient:     strings.TrimSpace(p.Get(FieldEmail)),
		RecipientName: strings.TrimSpace(p.Get(FieldName)),
		Subject:       "We received your project request",
		Template:      TemplateClientConfirmation,
		Data:          p,
	}
}

func (c *Coordinator) teamDispatch(p Payload) Dispatch {
	return Dispatch{
		Recipient:     c.cfg.TeamRecipient,
		RecipientName: c.cfg.TeamName,
		Subject:       fmt.Sprintf("New project request: %s - %s", p.ServiceLabel, strings.TrimSpace(p.Get(FieldName))),
		Template:      TemplateTeamAlert,
		Data:          p,
	}
}

func (c *Coordinator) followUpDispatch(p Payload) Dispatch {
	return Dispatch{
		Recipient:     strings.TrimSpace(p.Get(FieldEmail)),
		RecipientName: strings.TrimSpace(p.Get(FieldName)),
		Subject:       "Following up on your project request",
		Template:      TemplateFollowUp,
		Data:          p,
	}
}

// send performs one dispatch and folds any error or panic into false.
func (c *Coordinator) send(ctx context.Context, kind string, d Dispatch) (sent bool) {
	ctx, span := submitTracer.Start(ctx, "intake.dispatch."+kind)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			c.cfg.Logger.Error("dispatch panicked", "kind", kind, "panic", fmt.Sprint(r))
			span.SetStatus(codes.Error, "panic")
			sent = false
		}
		c.cfg.Metrics.ObserveDispatch(kind, sent)
	}()

	if c.cfg.Dispatcher == nil {
		return false
	}
	if err := c.cfg.Dispatcher.Send(ctx, d); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.cfg.Logger.Error("dispatch failed", "kind", kind, "template", d.Template, "error", err)
		return false
	}
	return true
}

func (c *Coordinator) schedule(ctx context.Context, d Dispatch, at time.Time) (scheduled bool) {
	ctx, span := submitTracer.Start(ctx, "intake.dispatch.follow_up")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			c.cfg.Logger.Error("follow-up scheduling panicked", "panic", fmt.Sprint(r))
			span.SetStatus(codes.Error, "panic")
			scheduled = false
		}
		c.cfg.Metrics.ObserveDispatch("follow_up", scheduled)
	}()

	if c.cfg.Dispatcher == nil {
		return false
	}
	if err := c.cfg.Dispatcher.Schedule(ctx, d, at); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.cfg.Logger.Error("follow-up scheduling failed", "error", err)
		return false
	}
	return true
}

func composeMessage(r SubmissionResult, email string) string {
	var b strings.Builder
	b.WriteString(baseSuccessMessage)
	if r.ClientNotificationSent {
		fmt.Fprintf(&b, " A confirmation email has been sent to %s.", strings.TrimSpace(email))
	}
	if r.TeamNotificationSent {
		b.WriteString(teamNotifiedClause)
	}
	if r.FollowUpScheduled {
		b.WriteString(followUpClause)
	}
	return b.String()
}

// finish stores the result on the session and empties its draft. The
// saved record is discarded afterwards so a later autosave finds nothing
// worth persisting.
func (s *Session) finish(r SubmissionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = r.State
	s.result = &r
	s.resetLocked()
}

// Result returns the last submission result, if any.
func (s *Session) Result() (SubmissionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return SubmissionResult{}, false
	}
	return *s.result, true
}
