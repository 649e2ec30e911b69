package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job statuses.  Transitions are compare-and-swap so concurrent workers and
// crashed retries cannot double-process or resurrect a finished job.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Job is one queued document-analysis task.
type Job struct {
	ID           string          `json:"job_id"`
	Status       string          `json:"status"`
	DocumentName string          `json:"document_name"`
	Content      string          `json:"-"`
	Extracted    json.RawMessage `json:"extracted,omitempty"`
	ErrorMessage string          `json:"error,omitempty"`
	SubmittedBy  string          `json:"submitted_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CreateJob enqueues a pending job for the extracted document text and
// returns its identifier.
func (s *Store) CreateJob(ctx context.Context, documentName, content, submittedBy string) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, document_name, content, submitted_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, JobPending, documentName, content, submittedBy, now, now)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// GetJob fetches a job by identifier.  Returns ErrNotFound when the job does
// not exist (or was pruned).
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, document_name, content, extracted_json, error_message, submitted_by, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

// ClaimNextJob atomically moves the oldest pending job to processing and
// returns it.  Returns (nil, nil) when no pending job exists.
func (s *Store) ClaimNextJob(ctx context.Context) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, status, document_name, content, extracted_json, error_message, submitted_by, created_at, updated_at
		FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1
	`, JobPending)
	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, JobProcessing, now, job.ID, JobPending)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if n == 0 {
		// Another worker won the race inside the window.
		tx.Rollback()
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit job claim: %w", err)
	}

	job.Status = JobProcessing
	job.UpdatedAt = now
	return job, nil
}

// CompleteJob moves a processing job to completed with its analysis result.
// The transition only fires from processing; a stale completion against a
// pruned or re-failed job reports ErrNotFound.
func (s *Store) CompleteJob(ctx context.Context, id string, extracted json.RawMessage) error {
	return s.finishJob(ctx, id, JobCompleted, string(extracted), "")
}

// FailJob moves a processing job to failed with an operator-readable message.
func (s *Store) FailJob(ctx context.Context, id, message string) error {
	return s.finishJob(ctx, id, JobFailed, "", message)
}

func (s *Store) finishJob(ctx context.Context, id, status, extracted, message string) error {
	var extractedArg any
	if extracted != "" {
		extractedArg = extracted
	}
	var messageArg any
	if message != "" {
		messageArg = message
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, extracted_json = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, extractedArg, messageArg, time.Now().UTC(), id, JobProcessing)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueStaleJobs returns processing jobs that have not been touched for
// staleAfter to pending, so work claimed by a crashed or killed worker is
// eventually retried.  Returns how many jobs were requeued.
func (s *Store) RequeueStaleJobs(ctx context.Context, staleAfter time.Duration) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?
	`, JobPending, now, JobProcessing, now.Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return n, nil
}

// PruneJobs deletes finished jobs older than retention and returns how many
// were removed.  Pending and processing jobs are never pruned.
func (s *Store) PruneJobs(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ?
	`, JobCompleted, JobFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return n, nil
}

func scanJob(sc scanner) (*Job, error) {
	job := &Job{}
	var extracted, message sql.NullString
	err := sc.Scan(&job.ID, &job.Status, &job.DocumentName, &job.Content,
		&extracted, &message, &job.SubmittedBy, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if extracted.Valid {
		job.Extracted = json.RawMessage(extracted.String)
	}
	if message.Valid {
		job.ErrorMessage = message.String
	}
	return job, nil
}
