// Package submissions records completed intake submissions and hands them
// off to downstream consumers.
package submissions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/project-intake/internal/intake"
)

// ErrSubmissionNotFound is returned when no submission has the given id.
var ErrSubmissionNotFound = errors.New("submission not found")

// Submission is a stored submission with its dispatch outcome.
type Submission struct {
	ID                     string                    `json:"id"`
	SessionID              string                    `json:"session_id"`
	Service                string                    `json:"service"`
	Name                   string                    `json:"name"`
	Email                  string                    `json:"email"`
	Fields                 map[string]string         `json:"fields"`
	Attachments            []intake.RecordAttachment `json:"attachments"`
	ClientNotificationSent bool                      `json:"client_notification_sent"`
	TeamNotificationSent   bool                      `json:"team_notification_sent"`
	FollowUpScheduled      bool                      `json:"follow_up_scheduled"`
	State                  string                    `json:"state"`
	SubmittedAt            time.Time                 `json:"submitted_at"`
	FollowUpAt             *time.Time                `json:"follow_up_at,omitempty"`
}

// FromPayload builds a Submission from a coordinator payload and result.
func FromPayload(p intake.Payload, r intake.SubmissionResult) Submission {
	s := Submission{
		ID:                     p.SubmissionID,
		SessionID:              p.SessionID,
		Service:                p.SelectedService,
		Name:                   p.Get(intake.FieldName),
		Email:                  p.Get(intake.FieldEmail),
		Fields:                 p.Fields,
		Attachments:            p.Attachments,
		ClientNotificationSent: r.ClientNotificationSent,
		TeamNotificationSent:   r.TeamNotificationSent,
		FollowUpScheduled:      r.FollowUpScheduled,
		State:                  string(r.State),
		SubmittedAt:            p.SubmittedAt,
	}
	if r.FollowUpScheduled && !r.FollowUpAt.IsZero() {
		at := r.FollowUpAt
		s.FollowUpAt = &at
	}
	return s
}

// Repository stores submissions.
type Repository interface {
	Create(ctx context.Context, s Submission) error
	GetByID(ctx context.Context, id string) (*Submission, error)
	ListRecent(ctx context.Context, limit int) ([]Submission, error)
}

// Recorder adapts a Repository to the coordinator's recorder hook.
type Recorder struct {
	repo Repository
}

// NewRecorder wraps repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record stores the submission.
func (r *Recorder) Record(ctx context.Context, p intake.Payload, res intake.SubmissionResult) error {
	return r.repo.Create(ctx, FromPayload(p, res))
}

var _ intake.Recorder = (*Recorder)(nil)

// InMemoryRepository keeps submissions in process memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Submission
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]Submission)}
}

func (r *InMemoryRepository) Create(ctx context.Context, s Submission) error {
	r.mu.Lock()
	r.items[s.ID] = s
	r.mu.Unlock()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	return &s, nil
}

// ListRecent returns up to limit submissions, newest first.
func (r *InMemoryRepository) ListRecent(ctx context.Context, limit int) ([]Submission, error) {
	r.mu.RLock()
	out := make([]Submission, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
