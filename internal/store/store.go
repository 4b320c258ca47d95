// Package store implements the Job Store: the persistent mapping from
// job_id to Job record, plus the Active Config Registry's companion
// jobs_config table. Every query here is hand-written SQL over
// database/sql — no ORM, no generated code.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
)

// ErrAlreadyExists is returned by Create when the job id is already taken.
var ErrAlreadyExists = errors.New("store: job already exists")

// ErrNotFound is returned when no row matches the requested id.
var ErrNotFound = errors.New("store: job not found")

// ErrIllegalTransition is returned by Update when the compare-and-set on
// status fails: the record is either absent or not in the expected state.
var ErrIllegalTransition = errors.New("store: illegal status transition")

// Store is the Job Store, backed by Postgres.
type Store struct {
	db *sql.DB
}

// New constructs a Store over an already-migrated connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts job. It fails with ErrAlreadyExists if the id is taken —
// the job is never partially created.
func (s *Store) Create(ctx context.Context, job *models.Job) error {
	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("store: marshaling job input: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, input, stage, status, progress, output_ref, created_at, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.ID, job.Kind, input, job.Stage, job.Status, job.Progress, job.OutputRef, job.CreatedAt, job.Attempts)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("store: creating job %s: %w", job.ID, err)
	}
	return nil
}

// Update applies patch to the job at id, using a compare-and-set on
// fromStatus: the UPDATE only takes effect if the row's current status still
// equals fromStatus, giving FOR-UPDATE-then-conditional-update discipline
// without needing a row-level lock, since the WHERE clause itself is the
// compare-and-set. Callers pass fromStatus as the status they last
// observed.
func (s *Store) Update(ctx context.Context, id string, fromStatus models.JobStatus, patch models.Patch) error {
	sets := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Status != nil {
		sets = append(sets, "status = "+arg(*patch.Status))
		if (*patch.Status).Terminal() {
			sets = append(sets, "completed_at = "+arg(time.Now().UTC()))
		}
		if *patch.Status == models.JobStatusProcessing {
			sets = append(sets, "started_at = COALESCE(started_at, "+arg(time.Now().UTC())+")")
		}
	}
	if patch.Stage != nil {
		sets = append(sets, "stage = "+arg(*patch.Stage))
	}
	if patch.Progress != nil {
		sets = append(sets, "progress = "+arg(*patch.Progress))
	}
	if patch.OutputRef != nil {
		sets = append(sets, "output_ref = "+arg(*patch.OutputRef))
	}
	if patch.Error != nil {
		sets = append(sets, "error_kind = "+arg(patch.Error.Kind))
		sets = append(sets, "error_message = "+arg(patch.Error.Message))
		sets = append(sets, "error_retryable = "+arg(patch.Error.Retryable))
	}
	if len(sets) == 0 {
		return nil
	}

	idPos := arg(id)
	fromPos := arg(fromStatus)
	query := fmt.Sprintf(
		"UPDATE jobs SET %s WHERE id = %s AND status = %s",
		strings.Join(sets, ", "), idPos, fromPos,
	)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: updating job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: checking update result for job %s: %w", id, err)
	}
	if n == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// ErrNoJobsAvailable is returned by ClaimNext when the queue is empty.
var ErrNoJobsAvailable = errors.New("store: no jobs available")

// ClaimNext atomically claims the oldest pending job of kind, transitioning
// it to processing and returning it. It uses SELECT ... FOR UPDATE SKIP
// LOCKED so concurrent workers never double-claim the same row.
func (s *Store) ClaimNext(ctx context.Context, kind models.JobKind) (*models.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: starting claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, kind, input, stage, status, progress, output_ref,
		       error_kind, error_message, error_retryable,
		       created_at, started_at, completed_at, attempts
		FROM jobs
		WHERE kind = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, kind, models.JobStatusPending)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJobsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("store: querying next pending job: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = $1, started_at = $2 WHERE id = $3
	`, models.JobStatusProcessing, now, job.ID); err != nil {
		return nil, fmt.Errorf("store: claiming job %s: %w", job.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: committing claim of job %s: %w", job.ID, err)
	}

	job.Status = models.JobStatusProcessing
	job.StartedAt = &now
	return job, nil
}

// Get returns the job at id.
func (s *Store) Get(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, input, stage, status, progress, output_ref,
		       error_kind, error_message, error_retryable,
		       created_at, started_at, completed_at, attempts
		FROM jobs WHERE id = $1
	`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: getting job %s: %w", id, err)
	}
	return job, nil
}

// List returns jobs matching filter, newest first, bounded by filter.Limit
// (default 100).
func (s *Store) List(ctx context.Context, filter models.ListFilter) ([]*models.Job, error) {
	clauses := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Kind != "" {
		clauses = append(clauses, "kind = "+arg(filter.Kind))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		clauses = append(clauses, "created_at > "+arg(filter.CreatedAfter))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, kind, input, stage, status, progress, output_ref,
		       error_kind, error_message, error_retryable,
		       created_at, started_at, completed_at, attempts
		FROM jobs WHERE %s ORDER BY created_at DESC LIMIT $%d
	`, strings.Join(clauses, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: listing jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning job row: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanJob.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job           models.Job
		input         []byte
		errKind       sql.NullString
		errMessage    sql.NullString
		errRetryable  sql.NullBool
		startedAt     sql.NullTime
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&job.ID, &job.Kind, &input, &job.Stage, &job.Status, &job.Progress, &job.OutputRef,
		&errKind, &errMessage, &errRetryable,
		&job.CreatedAt, &startedAt, &completedAt, &job.Attempts,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(input, &job.Input); err != nil {
		return nil, fmt.Errorf("unmarshaling job input: %w", err)
	}
	if errKind.Valid {
		job.Error = &models.JobError{
			Kind:      models.ErrorKind(errKind.String),
			Message:   errMessage.String,
			Retryable: errRetryable.Bool,
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

// RecoverOrphans marks every job stuck in processing with a started_at
// older than threshold as failed — a pod crash mid-job leaves no worker
// around to ever write its terminal state, so jobs are not automatically
// re-queued; they are ground to a terminal failure instead. Uses a
// started_at-staleness check since this store has no heartbeat column.
func (s *Store) RecoverOrphans(ctx context.Context, threshold time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, completed_at = $2,
		    error_kind = $3, error_message = $4, error_retryable = false
		WHERE status = $5 AND started_at IS NOT NULL AND started_at < $6
	`, models.JobStatusFailed, time.Now().UTC(),
		models.ErrorKindTimeout, "orphaned: no worker reported a terminal outcome before the hard timeout ceiling",
		models.JobStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: recovering orphaned jobs: %w", err)
	}
	return res.RowsAffected()
}

// PurgeOlderThan deletes terminal jobs completed before cutoff, enforcing a
// retention window.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE completed_at IS NOT NULL AND completed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: purging old jobs: %w", err)
	}
	return res.RowsAffected()
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
