package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/project-intake/internal/intake"
	"github.com/wolfman30/project-intake/internal/observability/metrics"
	"github.com/wolfman30/project-intake/pkg/logging"
)

func newTestQueue(t *testing.T) *FollowUpQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFollowUpQueue(client, logging.New("error"))
}

type fakeDispatchSender struct {
	mu   sync.Mutex
	sent []intake.Dispatch
	err  error
}

func (f *fakeDispatchSender) Send(_ context.Context, d intake.Dispatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, d)
	return nil
}

func followUp(id string, due time.Time) FollowUp {
	return FollowUp{
		ID:    id,
		DueAt: due,
		Dispatch: intake.Dispatch{
			Recipient: id + "@example.com",
			Template:  intake.TemplateFollowUp,
		},
	}
}

func TestFollowUpQueue_ClaimDueOnlyReturnsDueItems(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.Enqueue(ctx, followUp("past", now.Add(-time.Hour))))
	require.NoError(t, q.Enqueue(ctx, followUp("future", now.Add(time.Hour))))

	due, err := q.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "past", due[0].ID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	again, err := q.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFollowUpWorker_ProcessDueSends(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, q.Enqueue(ctx, followUp("a", now.Add(-time.Minute))))
	require.NoError(t, q.Enqueue(ctx, followUp("b", now.Add(-2*time.Minute))))

	sender := &fakeDispatchSender{}
	m := metrics.NewIntakeMetrics(prometheus.NewRegistry())
	w := NewFollowUpWorker(q, sender, time.Minute, 10, m, nil)
	w.now = func() time.Time { return now }

	sent, err := w.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, sender.sent, 2)
}

func TestFollowUpWorker_RequeuesFailures(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, q.Enqueue(ctx, followUp("a", now.Add(-time.Minute))))

	w := NewFollowUpWorker(q, &fakeDispatchSender{err: errors.New("smtp down")}, time.Minute, 10, nil, nil)
	w.now = func() time.Time { return now }

	sent, err := w.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	due, err := q.ClaimDue(ctx, now.Add(followUpRetryDelay), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
}

func TestFollowUpWorker_GivesUpAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	f := followUp("a", now.Add(-time.Minute))
	f.Attempts = followUpMaxRetries - 1
	require.NoError(t, q.Enqueue(ctx, f))

	w := NewFollowUpWorker(q, &fakeDispatchSender{err: errors.New("smtp down")}, time.Minute, 10, nil, nil)
	w.now = func() time.Time { return now }

	_, err := w.ProcessDue(ctx)
	require.NoError(t, err)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFollowUpWorker_RunStopsOnCancel(t *testing.T) {
	q := newTestQueue(t)
	w := NewFollowUpWorker(q, &fakeDispatchSender{}, 10*time.Millisecond, 10, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestMemoryFollowUpQueue_ClaimDue(t *testing.T) {
	q := NewMemoryFollowUpQueue()
	ctx := context.Background()
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.Enqueue(ctx, followUp("later", now.Add(-time.Minute))))
	require.NoError(t, q.Enqueue(ctx, followUp("earlier", now.Add(-time.Hour))))
	require.NoError(t, q.Enqueue(ctx, followUp("future", now.Add(time.Hour))))

	due, err := q.ClaimDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "earlier", due[0].ID)
	assert.Equal(t, 2, q.Len())

	due, err = q.ClaimDue(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "later", due[0].ID)
	assert.Equal(t, 1, q.Len())
}

func TestFollowUpQueue_ClaimDueDropsUnreadableEntries(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.client.ZAdd(ctx, followUpQueueKey, redis.Z{
		Score:  float64(now.Add(-2 * time.Hour).Unix()),
		Member: "{not json",
	}).Err())
	require.NoError(t, q.Enqueue(ctx, followUp("ok", now.Add(-time.Hour))))

	claimed, err := q.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "ok", claimed[0].ID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
