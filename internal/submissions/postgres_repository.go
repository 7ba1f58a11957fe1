package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores submissions in the relational database.
type PostgresRepository struct {
	pool querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("submissions: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	return &PostgresRepository{pool: q}
}

const submissionColumns = `id, session_id, service, name, email, fields, attachments,
		client_notification_sent, team_notification_sent, follow_up_scheduled,
		state, submitted_at, follow_up_at`

// Create inserts a submission. Re-recording the same id is a no-op.
func (r *PostgresRepository) Create(ctx context.Context, s Submission) error {
	fields, err := json.Marshal(s.Fields)
	if err != nil {
		return fmt.Errorf("submissions: marshal fields: %w", err)
	}
	attachments, err := json.Marshal(s.Attachments)
	if err != nil {
		return fmt.Errorf("submissions: marshal attachments: %w", err)
	}

	query := `
		INSERT INTO intake_submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query,
		s.ID,
		s.SessionID,
		s.Service,
		s.Name,
		s.Email,
		fields,
		attachments,
		s.ClientNotificationSent,
		s.TeamNotificationSent,
		s.FollowUpScheduled,
		s.State,
		s.SubmittedAt,
		s.FollowUpAt,
	); err != nil {
		return fmt.Errorf("submissions: insert failed: %w", err)
	}
	return nil
}

// GetByID loads one submission.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM intake_submissions WHERE id = $1`
	s, err := scanSubmission(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("submissions: get: %w", err)
	}
	return s, nil
}

// ListRecent returns up to limit submissions, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]Submission, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + submissionColumns + `
		FROM intake_submissions
		ORDER BY submitted_at DESC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("submissions: list: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("submissions: scan: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var (
		s           Submission
		fields      []byte
		attachments []byte
		followUpAt  *time.Time
	)
	if err := row.Scan(
		&s.ID,
		&s.SessionID,
		&s.Service,
		&s.Name,
		&s.Email,
		&fields,
		&attachments,
		&s.ClientNotificationSent,
		&s.TeamNotificationSent,
		&s.FollowUpScheduled,
		&s.State,
		&s.SubmittedAt,
		&followUpAt,
	); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &s.Fields); err != nil {
			return nil, fmt.Errorf("submissions: decode fields: %w", err)
		}
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &s.Attachments); err != nil {
			return nil, fmt.Errorf("submissions: decode attachments: %w", err)
		}
	}
	s.FollowUpAt = followUpAt
	return &s, nil
}
