package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/project-intake/internal/intake"
	"github.com/wolfman30/project-intake/internal/observability/metrics"
	"github.com/wolfman30/project-intake/pkg/logging"
)

const (
	followUpQueueKey   = "intake:followups"
	followUpMaxRetries = 3
	followUpRetryDelay = 15 * time.Minute
)

// FollowUp is a notification waiting for its due time.
type FollowUp struct {
	ID       string          `json:"id"`
	Dispatch intake.Dispatch `json:"dispatch"`
	DueAt    time.Time       `json:"due_at"`
	Attempts int             `json:"attempts"`
}

// FollowUpQueue keeps follow-ups in a Redis sorted set scored by due time.
type FollowUpQueue struct {
	client *redis.Client
	logger *logging.Logger
}

// NewFollowUpQueue creates a queue on client.
func NewFollowUpQueue(client *redis.Client, logger *logging.Logger) *FollowUpQueue {
	if logger == nil {
		logger = logging.Default()
	}
	return &FollowUpQueue{client: client, logger: logger}
}

// Enqueue adds f to the queue.
func (q *FollowUpQueue) Enqueue(ctx context.Context, f FollowUp) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("notify: marshal follow-up: %w", err)
	}
	if err := q.client.ZAdd(ctx, followUpQueueKey, redis.Z{
		Score:  float64(f.DueAt.Unix()),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("notify: enqueue follow-up: %w", err)
	}
	return nil
}

// ClaimDue removes and returns up to limit follow-ups due at or before now.
// A follow-up removed by another worker first is skipped. Members that do
// not decode are removed and logged so they cannot block the queue head.
func (q *FollowUpQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]FollowUp, error) {
	members, err := q.client.ZRangeByScore(ctx, followUpQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("notify: list due follow-ups: %w", err)
	}

	var claimed []FollowUp
	for _, m := range members {
		var f FollowUp
		decodeErr := json.Unmarshal([]byte(m), &f)

		removed, err := q.client.ZRem(ctx, followUpQueueKey, m).Result()
		if err != nil {
			return claimed, fmt.Errorf("notify: claim follow-up: %w", err)
		}
		if removed == 0 {
			continue
		}
		if decodeErr != nil {
			q.logger.Error("follow-up queue: dropping unreadable entry", "error", decodeErr, "member", truncate(m, 256))
			continue
		}
		claimed = append(claimed, f)
	}
	return claimed, nil
}

var (
	_ FollowUpStore = (*FollowUpQueue)(nil)
	_ FollowUpStore = (*MemoryFollowUpQueue)(nil)
)

// Len returns the number of queued follow-ups.
func (q *FollowUpQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, followUpQueueKey).Result()
}

// FollowUpStore is a due-time ordered queue of follow-ups.
type FollowUpStore interface {
	FollowUpScheduler
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]FollowUp, error)
}

// MemoryFollowUpQueue is a process-local FollowUpStore for development
// and single-instance deployments without Redis.
type MemoryFollowUpQueue struct {
	mu    sync.Mutex
	items []FollowUp
}

// NewMemoryFollowUpQueue creates an empty queue.
func NewMemoryFollowUpQueue() *MemoryFollowUpQueue {
	return &MemoryFollowUpQueue{}
}

// Enqueue adds f to the queue.
func (q *MemoryFollowUpQueue) Enqueue(_ context.Context, f FollowUp) error {
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()
	return nil
}

// ClaimDue removes and returns up to limit due follow-ups, earliest first.
func (q *MemoryFollowUpQueue) ClaimDue(_ context.Context, now time.Time, limit int) ([]FollowUp, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	sort.SliceStable(q.items, func(i, j int) bool { return q.items[i].DueAt.Before(q.items[j].DueAt) })

	var claimed []FollowUp
	kept := q.items[:0]
	for _, f := range q.items {
		if f.DueAt.After(now) || (limit > 0 && len(claimed) >= limit) {
			kept = append(kept, f)
			continue
		}
		claimed = append(claimed, f)
	}
	q.items = kept
	return claimed, nil
}

// Len returns the number of queued follow-ups.
func (q *MemoryFollowUpQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// DispatchSender delivers a dispatch now.
type DispatchSender interface {
	Send(ctx context.Context, d intake.Dispatch) error
}

// FollowUpWorker sends follow-ups once they are due.
type FollowUpWorker struct {
	queue     FollowUpStore
	sender    DispatchSender
	interval  time.Duration
	batchSize int
	metrics   *metrics.IntakeMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewFollowUpWorker creates a worker polling every interval.
func NewFollowUpWorker(queue FollowUpStore, sender DispatchSender, interval time.Duration, batchSize int, m *metrics.IntakeMetrics, logger *logging.Logger) *FollowUpWorker {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &FollowUpWorker{
		queue:     queue,
		sender:    sender,
		interval:  interval,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Run processes due follow-ups until ctx is cancelled.
func (w *FollowUpWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *FollowUpWorker) drain(ctx context.Context) {
	if _, err := w.ProcessDue(ctx); err != nil {
		w.logger.Error("follow-up worker: process due failed", "error", err)
	}
}

// ProcessDue sends every due follow-up and returns how many were sent.
// Failed sends are requeued with a delay until they exhaust their retries.
func (w *FollowUpWorker) ProcessDue(ctx context.Context) (int, error) {
	now := w.now().UTC()
	due, err := w.queue.ClaimDue(ctx, now, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("follow-up worker: claim: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	w.logger.Info("follow-up worker: processing due follow-ups", "count", len(due))

	sent := 0
	for _, f := range due {
		if err := w.sender.Send(ctx, f.Dispatch); err != nil {
			w.metrics.ObserveFollowUp(false)
			w.retry(ctx, f, now, err)
			continue
		}
		w.metrics.ObserveFollowUp(true)
		w.logger.Info("follow-up worker: follow-up sent", "id", f.ID, "to", f.Dispatch.Recipient)
		sent++
	}
	return sent, nil
}

func (w *FollowUpWorker) retry(ctx context.Context, f FollowUp, now time.Time, cause error) {
	f.Attempts++
	if f.Attempts >= followUpMaxRetries {
		w.logger.Error("follow-up worker: giving up", "id", f.ID, "attempts", f.Attempts, "error", cause)
		return
	}
	f.DueAt = now.Add(followUpRetryDelay)
	if err := w.queue.Enqueue(ctx, f); err != nil {
		w.logger.Error("follow-up worker: requeue failed", "id", f.ID, "error", err)
		return
	}
	w.logger.Warn("follow-up worker: send failed, requeued", "id", f.ID, "attempts", f.Attempts, "error", cause)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
