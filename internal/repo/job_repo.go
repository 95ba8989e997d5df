package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// JobRepo — репозиторий заданий этапов в PostgreSQL.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, run_id, stage, status, trace_id, error, finished_at, created_at`

// Create создаёт новое задание этапа.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, run_id, stage, status, trace_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.RunID,
		job.Stage,
		job.Status,
		nullString(job.TraceID),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetScheduled возвращает открытое задание этапа для run.
func (r *JobRepo) GetScheduled(ctx context.Context, runID uuid.UUID, stage domain.Stage) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE run_id = $1 AND stage = $2 AND status = 'SCHEDULED'
	`
	return scanJob(r.pool.QueryRow(ctx, query, runID, stage))
}

// Update обновляет статус задания.
func (r *JobRepo) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $2, error = $3, finished_at = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		nullString(job.Error),
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByRun возвращает все задания run в порядке создания.
func (r *JobRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE run_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListStale возвращает открытые задания, созданные раньше указанного момента.
func (r *JobRepo) ListStale(ctx context.Context, olderThan time.Time) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'SCHEDULED' AND created_at < $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// scanJob сканирует одну строку в Job.
func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var traceID, jobError *string

	err := row.Scan(
		&job.ID,
		&job.RunID,
		&job.Stage,
		&job.Status,
		&traceID,
		&jobError,
		&job.FinishedAt,
		&job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if traceID != nil {
		job.TraceID = *traceID
	}
	if jobError != nil {
		job.Error = *jobError
	}

	return &job, nil
}
