package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu          sync.Mutex
	sent        []Dispatch
	scheduled   []Dispatch
	scheduledAt []time.Time
	failFor     map[string]error
	panicFor    string
	scheduleErr error
}

func (f *fakeDispatcher) Send(_ context.Context, d Dispatch) error {
	if d.Template == f.panicFor {
		panic("mailer exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[d.Template]; err != nil {
		return err
	}
	f.sent = append(f.sent, d)
	return nil
}

func (f *fakeDispatcher) Schedule(_ context.Context, d Dispatch, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	f.scheduled = append(f.scheduled, d)
	f.scheduledAt = append(f.scheduledAt, at)
	return nil
}

type recordingRecorder struct {
	payloads []Payload
	results  []SubmissionResult
	err      error
}

func (r *recordingRecorder) Record(_ context.Context, p Payload, res SubmissionResult) error {
	r.payloads = append(r.payloads, p)
	r.results = append(r.results, res)
	return r.err
}

func noAutosave(c *SessionConfig) { c.AutosaveDelay = time.Hour }

func newTestCoordinator(d Dispatcher, recorders ...Recorder) *Coordinator {
	c := NewCoordinator(CoordinatorConfig{
		Dispatcher:    d,
		TeamRecipient: "team@example.com",
		TeamName:      "Studio Team",
		Recorders:     recorders,
		Logger:        testLogger(),
	})
	c.now = func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestSubmitAllSideEffectsSucceed(t *testing.T) {
	store := newMemStore()
	s := newTestSession(store, noAutosave)
	defer s.Close()
	require.NoError(t, fillToFinalStep(s))
	require.NoError(t, s.SetField(FieldEstimatedCost, "6000000"))
	_, err := s.SaveDraft(context.Background())
	require.NoError(t, err)

	d := &fakeDispatcher{}
	rec := &recordingRecorder{}
	res, err := newTestCoordinator(d, rec).Submit(context.Background(), s)
	require.NoError(t, err)

	assert.True(t, res.ClientNotificationSent)
	assert.True(t, res.TeamNotificationSent)
	assert.True(t, res.FollowUpScheduled)
	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, "Thank you! Your project request has been submitted successfully."+
		" A confirmation email has been sent to jane@example.com."+
		" Our team has been notified and will review your request shortly."+
		" We'll follow up with you in 3 days.", res.UserMessage)

	require.Len(t, d.sent, 2)
	recipients := map[string]string{}
	for _, sent := range d.sent {
		recipients[sent.Template] = sent.Recipient
		assert.Equal(t, "6000000", sent.Data.EstimatedCost)
		assert.Equal(t, "Web Development", sent.Data.ServiceLabel)
	}
	assert.Equal(t, "jane@example.com", recipients[TemplateClientConfirmation])
	assert.Equal(t, "team@example.com", recipients[TemplateTeamAlert])

	require.Len(t, d.scheduled, 1)
	assert.Equal(t, TemplateFollowUp, d.scheduled[0].Template)
	assert.Equal(t, res.SubmittedAt.Add(72*time.Hour), d.scheduledAt[0])

	assert.False(t, store.has("client-1"), "saved draft is cleared")
	require.Len(t, rec.results, 1)
	assert.Equal(t, res.SubmissionID, rec.payloads[0].SubmissionID)

	assert.Equal(t, StateSucceeded, s.State())
	assert.Equal(t, StepService, s.Snapshot().CurrentStep)
	assert.Empty(t, s.Snapshot().Field(FieldName))
	got, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, *res, got)
}

func TestSubmitTeamFailureDegrades(t *testing.T) {
	s := newTestSession(newMemStore(), noAutosave)
	defer s.Close()
	require.NoError(t, fillToFinalStep(s))

	d := &fakeDispatcher{failFor: map[string]error{TemplateTeamAlert: errors.New("smtp down")}}
	res, err := newTestCoordinator(d).Submit(context.Background(), s)
	require.NoError(t, err)

	assert.True(t, res.ClientNotificationSent)
	assert.False(t, res.TeamNotificationSent)
	assert.True(t, res.FollowUpScheduled, "follow-up is scheduled regardless")
	assert.Equal(t, StateDegradedSucceeded, res.State)
	assert.NotContains(t, res.UserMessage, "Our team has been notified")
	assert.Contains(t, res.UserMessage, "A confirmation email has been sent to jane@example.com.")
	assert.Contains(t, res.UserMessage, "We'll follow up with you in 3 days.")
}

func TestSubmitEverythingFailsStillSucceeds(t *testing.T) {
	s := newTestSession(newMemStore(), noAutosave)
	defer s.Close()
	require.NoError(t, fillToFinalStep(s))

	d := &fakeDispatcher{
		panicFor:    TemplateClientConfirmation,
		failFor:     map[string]error{TemplateTeamAlert: errors.New("rejected")},
		scheduleErr: errors.New("queue offline"),
	}
	res, err := newTestCoordinator(d).Submit(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, res.ClientNotificationSent)
	assert.False(t, res.TeamNotificationSent)
	assert.False(t, res.FollowUpScheduled)
	assert.Equal(t, "Thank you! Your project request has been submitted successfully.", res.UserMessage)
	assert.Equal(t, StateDegradedSucceeded, s.State())
}

func TestSubmitRecorderFailureIgnored(t *testing.T) {
	s := newTestSession(newMemStore(), noAutosave)
	defer s.Close()
	require.NoError(t, fillToFinalStep(s))

	rec := &recordingRecorder{err: errors.New("db down")}
	res, err := newTestCoordinator(&fakeDispatcher{}, rec).Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, res.State)
}

func TestSubmitInvalidFinalStep(t *testing.T) {
	s := newTestSession(newMemStore(), noAutosave)
	defer s.Close()
	require.NoError(t, fillToFinalStep(s))
	require.NoError(t, s.SetField(FieldBudget, ""))

	d := &fakeDispatcher{}
	res, err := newTestCoordinator(d).Submit(context.Background(), s)
	assert.Nil(t, res)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StepTimeline, verr.Step)
	assert.Equal(t, "Please select a budget range", verr.Fields[FieldBudget])

	assert.Equal(t, StateIdle, s.State())
	assert.True(t, s.Snapshot().Touched[FieldBudget])
	assert.Empty(t, d.sent)
	assert.Empty(t, d.scheduled)
}

func TestSubmitRequiresFinalStep(t *testing.T) {
	s := newTestSession(newMemStore(), noAutosave)
	defer s.Close()
	require.NoError(t, s.SelectService("web-development"))

	_, err := newTestCoordinator(&fakeDispatcher{}).Submit(context.Background(), s)
	assert.ErrorIs(t, err, ErrNotFinalStep)
	assert.Equal(t, StateIdle, s.State())
}

func TestSubmitWithoutDispatcher(t *testing.T) {
	s := newTestSession(newMemStore(), noAutosave)
	defer s.Close()
	require.NoError(t, fillToFinalStep(s))

	res, err := newTestCoordinator(nil).Submit(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Degraded())
	assert.NotEmpty(t, res.UserMessage)
}

func TestComposeMessage(t *testing.T) {
	msg := composeMessage(SubmissionResult{ClientNotificationSent: true}, "  a@b.co ")
	assert.Equal(t, "Thank you! Your project request has been submitted successfully. A confirmation email has been sent to a@b.co.", msg)

	msg = composeMessage(SubmissionResult{FollowUpScheduled: true}, "a@b.co")
	assert.Equal(t, "Thank you! Your project request has been submitted successfully. We'll follow up with you in 3 days.", msg)
}

func TestSubmitDiscardsInFlightAutosave(t *testing.T) {
	store := newGatedStore()
	s := newTestSession(store, noAutosave)
	defer s.Close()
	require.NoError(t, fillToFinalStep(s))

	saveDone := make(chan struct{})
	go func() {
		_, _ = s.SaveDraft(context.Background())
		close(saveDone)
	}()
	<-store.entered

	submitted := make(chan *SubmissionResult)
	go func() {
		res, _ := newTestCoordinator(&fakeDispatcher{}).Submit(context.Background(), s)
		submitted <- res
	}()
	require.Eventually(t, func() bool { return s.currentSaveGen() == 1 }, time.Second, time.Millisecond)

	close(store.release)
	<-saveDone
	res := <-submitted
	require.NotNil(t, res)

	assert.False(t, store.has("client-1"), "submitted draft must not be restorable")
	rec, err := s.cfg.Persistence.Restore(context.Background(), s.ClientKey())
	require.NoError(t, err)
	assert.Nil(t, rec)
}
