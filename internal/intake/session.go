package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/project-intake/internal/observability/metrics"
	"github.com/wolfman30/project-intake/pkg/logging"
)

// RestoredNotice is shown briefly after a saved draft is restored.
const RestoredNotice = "Progress restored!"

// SubmissionState tracks the submission coordinator for a session.
type SubmissionState string

const (
	StateIdle              SubmissionState = "idle"
	StateValidating        SubmissionState = "validating"
	StateSubmitting        SubmissionState = "submitting"
	StateSucceeded         SubmissionState = "succeeded"
	StateDegradedSucceeded SubmissionState = "degraded_succeeded"
)

// SessionConfig carries the collaborators shared by every session.
type SessionConfig struct {
	Catalog         *Catalog
	Persistence     *Persistence
	Uploader        Uploader
	AutosaveDelay   time.Duration
	SuggestionGrace time.Duration
	NoticeTTL       time.Duration
	Metrics         *metrics.IntakeMetrics
	Logger          *logging.Logger
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Catalog == nil {
		c.Catalog = DefaultCatalog()
	}
	if c.Uploader == nil {
		c.Uploader = NewSimulatedUploader(200*time.Millisecond, 30)
	}
	if c.AutosaveDelay <= 0 {
		c.AutosaveDelay = 3 * time.Second
	}
	if c.SuggestionGrace <= 0 {
		c.SuggestionGrace = 150 * time.Millisecond
	}
	if c.NoticeTTL <= 0 {
		c.NoticeTTL = 3 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	return c
}

// ProgressEvent reports upload progress of one attachment.
type ProgressEvent struct {
	AttachmentID string  `json:"attachment_id"`
	Name         string  `json:"name"`
	Progress     float64 `json:"progress"`
	Done         bool    `json:"done"`
	Removed      bool    `json:"removed,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Session is one wizard run. It owns its Draft exclusively; every
// subsystem works on it through the session's methods.
type Session struct {
	id        string
	clientKey string
	cfg       SessionConfig
	logger    *logging.Logger
	now       func() time.Time
	autosave  *Autosaver

	// saveMu serializes store writes with clears. saveGen (guarded by mu)
	// is bumped by every clear so a write that started earlier is dropped.
	saveMu sync.Mutex

	mu          sync.Mutex
	draft       *Draft
	uploads     map[string]context.CancelFunc
	focus       Field
	suggestions []string
	blurTimer   *time.Timer
	blurGen     int
	notice      string
	noticeUntil time.Time
	state       SubmissionState
	result      *SubmissionResult
	subs        map[int]chan ProgressEvent
	nextSub     int
	closed      bool
	saveGen     uint64
}

// NewSession creates a session whose draft is persisted under clientKey.
func NewSession(id, clientKey string, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	if id == "" {
		id = uuid.NewString()
	}
	if clientKey == "" {
		clientKey = id
	}
	s := &Session{
		id:        id,
		clientKey: clientKey,
		cfg:       cfg,
		logger:    cfg.Logger,
		now:       time.Now,
		draft:     NewDraft(),
		uploads:   map[string]context.CancelFunc{},
		state:     StateIdle,
		subs:      map[int]chan ProgressEvent{},
	}
	s.recomputeErrorsLocked()
	s.autosave = NewAutosaver(cfg.AutosaveDelay, s.autosaveNow)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ClientKey returns the key the draft is persisted under.
func (s *Session) ClientKey() string { return s.clientKey }

// Catalog returns the option catalog the session validates against.
func (s *Session) Catalog() *Catalog { return s.cfg.Catalog }

func (s *Session) recomputeErrorsLocked() {
	for _, f := range AllFields {
		s.draft.Errors[f] = fieldMessage(f, s.draft, s.cfg.Catalog)
	}
	if strings.TrimSpace(s.draft.SelectedService) == "" {
		s.draft.Errors[ServiceKey] = "Please select a service"
	} else {
		s.draft.Errors[ServiceKey] = ""
	}
}

// SetField records a new value for f, revalidates and restarts autosave.
func (s *Session) SetField(f Field, value string) error {
	if !f.Known() {
		return ErrUnknownField
	}
	s.mu.Lock()
	s.draft.Fields[f] = value
	s.recomputeErrorsLocked()
	if s.focus == f {
		s.suggestions = s.cfg.Catalog.Suggest(f, value)
	}
	s.mu.Unlock()

	s.autosave.Schedule()
	return nil
}

// SelectService chooses a catalog service for step 0.
func (s *Session) SelectService(id string) error {
	if !s.cfg.Catalog.HasService(id) {
		return ErrUnknownService
	}
	s.mu.Lock()
	s.draft.SelectedService = id
	s.recomputeErrorsLocked()
	s.mu.Unlock()

	s.autosave.Schedule()
	return nil
}

// Focus marks f as the field being edited and computes its suggestions.
func (s *Session) Focus(f Field) error {
	if !f.Known() {
		return ErrUnknownField
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopBlurTimerLocked()
	s.focus = f
	s.suggestions = s.cfg.Catalog.Suggest(f, s.draft.Field(f))
	return nil
}

// Blur marks f touched so its error becomes visible, and dismisses its
// suggestions after the grace delay so a pointer selection can land first.
func (s *Session) Blur(f Field) error {
	if !f.Known() {
		return ErrUnknownField
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Touched[f] = true
	if s.focus != f {
		return nil
	}
	s.stopBlurTimerLocked()
	gen := s.blurGen
	s.blurTimer = time.AfterFunc(s.cfg.SuggestionGrace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.blurGen == gen && s.focus == f {
			s.dismissSuggestionsLocked()
		}
	})
	return nil
}

// SelectSuggestion fills f with value and dismisses the list immediately.
func (s *Session) SelectSuggestion(f Field, value string) error {
	if err := s.SetField(f, value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopBlurTimerLocked()
	s.dismissSuggestionsLocked()
	return nil
}

func (s *Session) stopBlurTimerLocked() {
	s.blurGen++
	if s.blurTimer != nil {
		s.blurTimer.Stop()
		s.blurTimer = nil
	}
}

func (s *Session) dismissSuggestionsLocked() {
	s.focus = ""
	s.suggestions = nil
	s.blurTimer = nil
}

// Suggestions returns the visible suggestion list and the focused field.
func (s *Session) Suggestions() (Field, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focus == "" || len(s.suggestions) == 0 {
		return "", nil
	}
	return s.focus, append([]string(nil), s.suggestions...)
}

// CanAdvance reports whether the current step is valid.
func (s *Session) CanAdvance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ValidateStep(s.draft.CurrentStep, s.draft, s.cfg.Catalog)
}

// Next moves to the following step when the current one is valid.
// Otherwise the step's fields are marked touched, the step is unchanged
// and a *ValidationError is returned.
func (s *Session) Next() (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.draft.CurrentStep
	if !ValidateStep(cur, s.draft, s.cfg.Catalog) {
		s.touchStepLocked(cur)
		return cur, &ValidationError{Step: cur, Fields: stepErrors(cur, s.draft, s.cfg.Catalog)}
	}
	if cur < LastStep {
		s.draft.CurrentStep = cur + 1
	}
	return s.draft.CurrentStep, nil
}

// Back moves to the previous step. It never fails.
func (s *Session) Back() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft.CurrentStep > FirstStep {
		s.draft.CurrentStep--
	}
	return s.draft.CurrentStep
}

func (s *Session) touchStepLocked(step Step) {
	if step == StepService {
		s.draft.Touched[ServiceKey] = true
	}
	for _, f := range StepFields(step) {
		s.draft.Touched[f] = true
	}
}

// AddAttachments runs every file through the acceptance policy. Accepted
// files are appended in order and start uploading; each rejected file
// yields exactly one policy error.
func (s *Session) AddAttachments(files []FileInfo) ([]Attachment, []*AttachmentPolicyError) {
	var (
		accepted []Attachment
		rejected []*AttachmentPolicyError
	)
	for _, f := range files {
		if err := CheckAttachment(f); err != nil {
			var pe *AttachmentPolicyError
			if errors.As(err, &pe) {
				rejected = append(rejected, pe)
				s.cfg.Metrics.ObserveAttachment(pe.Reason)
			}
			continue
		}
		att := Attachment{
			ID:           uuid.NewString(),
			Name:         f.Name,
			SizeBytes:    f.SizeBytes,
			MIMEType:     normalizeMIME(f.MIMEType),
			LastModified: f.LastModified,
			AddedAt:      s.now().UTC(),
		}
		s.mu.Lock()
		s.draft.Attachments = append(s.draft.Attachments, att)
		s.startUploadLocked(att, f)
		s.mu.Unlock()
		s.cfg.Metrics.ObserveAttachment("accepted")
		accepted = append(accepted, att)
	}
	if len(accepted) > 0 {
		s.autosave.Schedule()
	}
	return accepted, rejected
}

func (s *Session) startUploadLocked(att Attachment, f FileInfo) {
	ctx, cancel := context.WithCancel(context.Background())
	s.uploads[att.ID] = cancel
	go func() {
		defer cancel()
		err := s.cfg.Uploader.Upload(ctx, s.id, att, f.Content, func(pct float64) {
			s.setProgress(att.ID, pct)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("attachment upload failed", "session_id", s.id, "attachment_id", att.ID, "error", err)
			s.publish(ProgressEvent{AttachmentID: att.ID, Name: att.Name, Error: err.Error()})
		}
		s.mu.Lock()
		delete(s.uploads, att.ID)
		s.mu.Unlock()
	}()
}

func (s *Session) setProgress(id string, pct float64) {
	if pct > 100 {
		pct = 100
	}
	s.mu.Lock()
	i := s.draft.attachmentIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	a := &s.draft.Attachments[i]
	if pct > a.Progress {
		a.Progress = pct
	}
	evt := ProgressEvent{AttachmentID: a.ID, Name: a.Name, Progress: a.Progress, Done: a.Complete()}
	s.mu.Unlock()
	s.publish(evt)
}

// RemoveAttachment deletes the attachment and stops its upload.
func (s *Session) RemoveAttachment(id string) error {
	s.mu.Lock()
	i := s.draft.attachmentIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrAttachmentNotFound
	}
	a := s.draft.Attachments[i]
	s.draft.Attachments = append(s.draft.Attachments[:i], s.draft.Attachments[i+1:]...)
	if cancel, ok := s.uploads[id]; ok {
		cancel()
		delete(s.uploads, id)
	}
	s.mu.Unlock()

	s.publish(ProgressEvent{AttachmentID: a.ID, Name: a.Name, Progress: a.Progress, Removed: true})
	s.autosave.Schedule()
	return nil
}

// Subscribe streams progress events until the returned cancel func is
// called or the session closes. Slow subscribers miss events.
func (s *Session) Subscribe() (<-chan ProgressEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan ProgressEvent, 32)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) publish(evt ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *Session) autosaveNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.SaveDraft(ctx); err != nil && !errors.Is(err, ErrPersistenceUnavailable) {
		s.logger.Warn("autosave failed", "session_id", s.id, "error", err)
	}
}

// SaveDraft persists the draft now. It reports false without error when
// the draft has no content worth saving or the saved record was cleared
// while the write was pending. Store failures are logged and returned
// wrapped in ErrPersistenceUnavailable.
func (s *Session) SaveDraft(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if !s.draft.worthPersisting() {
		s.mu.Unlock()
		return false, nil
	}
	snapshot := s.draft.clone()
	gen := s.saveGen
	s.mu.Unlock()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if !s.sameSaveGen(gen) {
		return false, nil
	}

	at, err := s.cfg.Persistence.Save(ctx, s.clientKey, &snapshot)
	if err != nil {
		s.logger.Debug("draft not persisted", "session_id", s.id, "error", err)
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveGen != gen {
		// A clear is waiting on saveMu and deletes this record next.
		return false, nil
	}
	s.draft.LastPersistedAt = &at
	return true, nil
}

func (s *Session) sameSaveGen(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveGen == gen
}

// Restore loads a saved draft, if any, overwriting fields, step and
// service. It returns true when a record was applied. Store failures are
// logged and the session proceeds empty.
func (s *Session) Restore(ctx context.Context) bool {
	rec, err := s.cfg.Persistence.Restore(ctx, s.clientKey)
	if err != nil {
		s.logger.Debug("draft restore skipped", "session_id", s.id, "error", err)
		return false
	}
	if rec == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range AllFields {
		if v, ok := rec.Form[string(f)]; ok {
			s.draft.Fields[f] = v
		}
	}
	if rec.SelectedService == "" || s.cfg.Catalog.HasService(rec.SelectedService) {
		s.draft.SelectedService = rec.SelectedService
	}
	s.draft.CurrentStep = furthestReachable(Step(max(rec.CurrentStep, 0)), s.draft, s.cfg.Catalog)
	ts := rec.Timestamp
	s.draft.LastPersistedAt = &ts
	s.recomputeErrorsLocked()
	s.notice = RestoredNotice
	s.noticeUntil = s.now().Add(s.cfg.NoticeTTL)
	s.logger.Info("draft restored", "session_id", s.id, "step", s.draft.CurrentStep.String())
	return true
}

// ClearSaved removes the persisted record and forgets LastPersistedAt.
// Pending and in-flight autosaves cannot recreate the record.
func (s *Session) ClearSaved(ctx context.Context) error {
	err := s.discardSaved(ctx)
	if err != nil {
		s.logger.Debug("draft clear failed", "session_id", s.id, "error", err)
	}
	return err
}

// discardSaved invalidates every save started so far, waits for a write
// in progress and deletes the record.
func (s *Session) discardSaved(ctx context.Context) error {
	s.autosave.Cancel()
	s.mu.Lock()
	s.saveGen++
	s.mu.Unlock()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	err := s.cfg.Persistence.Clear(ctx, s.clientKey)
	s.mu.Lock()
	s.draft.LastPersistedAt = nil
	s.mu.Unlock()
	return err
}

// Snapshot returns a copy of the draft.
func (s *Session) Snapshot() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.clone()
}

// State returns the submission state.
func (s *Session) State() SubmissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close stops timers, cancels uploads and ends subscriptions.
func (s *Session) Close() {
	s.autosave.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopBlurTimerLocked()
	for id, cancel := range s.uploads {
		cancel()
		delete(s.uploads, id)
	}
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// resetLocked empties the draft after a successful submission.
func (s *Session) resetLocked() {
	for id, cancel := range s.uploads {
		cancel()
		delete(s.uploads, id)
	}
	s.draft = NewDraft()
	s.recomputeErrorsLocked()
	s.focus = ""
	s.suggestions = nil
}
