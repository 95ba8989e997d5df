package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RunRepo — репозиторий runs в PostgreSQL.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `id, repository_id, revision, status, config_context, job_configs,
       resolved_job_configs, labels, issues, reports, trace_id, error,
       started_at, finished_at, created_at`

// Create создаёт новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	cfgJSON, err := json.Marshal(run.JobConfigs)
	if err != nil {
		return fmt.Errorf("marshal job configs: %w", err)
	}
	labelsJSON, err := json.Marshal(run.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	query := `
		INSERT INTO runs (id, repository_id, revision, status, config_context,
		                  job_configs, labels, trace_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.RepositoryID,
		run.Revision,
		run.Status,
		nullString(run.ConfigContext),
		cfgJSON,
		labelsJSON,
		nullString(run.TraceID),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// Update обновляет изменяемую часть run: статус, накопленные замечания,
// результаты валидации конфигураций и отметки времени.
//
// Run в терминальном статусе не перезаписывается: отмена оператора или
// вердикт монитора не должны теряться из-за записи устаревшей копии.
// Такая попытка возвращает ErrInvalidState.
func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	var resolvedJSON []byte
	if run.ResolvedJobConfigs != nil {
		var err error
		resolvedJSON, err = json.Marshal(run.ResolvedJobConfigs)
		if err != nil {
			return fmt.Errorf("marshal resolved job configs: %w", err)
		}
	}
	issuesJSON, err := json.Marshal(run.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}
	labelsJSON, err := json.Marshal(run.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	query := `
		UPDATE runs
		SET status = $2, resolved_job_configs = $3, labels = $4, issues = $5,
		    reports = $6, error = $7, started_at = $8, finished_at = $9
		WHERE id = $1
		  AND status NOT IN ('FINISHED', 'FINISHED_WITH_ISSUES', 'FAILED', 'CANCELLED')
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		resolvedJSON,
		labelsJSON,
		issuesJSON,
		run.Reports,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Ноль строк: run отсутствует либо уже терминален.
		var status domain.RunStatus
		err := r.pool.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1`, run.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check run status: %w", err)
		}
		return fmt.Errorf("run is already %s: %w", status, ErrInvalidState)
	}
	return nil
}

// List возвращает список runs с фильтрацией.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::uuid IS NULL OR repository_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.RepositoryID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun сканирует одну строку в Run. Работает и с Row, и с Rows.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var configContext, traceID, runError *string
	var cfgJSON, resolvedJSON, labelsJSON, issuesJSON []byte

	err := row.Scan(
		&run.ID,
		&run.RepositoryID,
		&run.Revision,
		&run.Status,
		&configContext,
		&cfgJSON,
		&resolvedJSON,
		&labelsJSON,
		&issuesJSON,
		&run.Reports,
		&traceID,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if cfgJSON != nil {
		if err := json.Unmarshal(cfgJSON, &run.JobConfigs); err != nil {
			return nil, fmt.Errorf("unmarshal job configs: %w", err)
		}
	}
	if resolvedJSON != nil {
		run.ResolvedJobConfigs = &domain.JobConfigs{}
		if err := json.Unmarshal(resolvedJSON, run.ResolvedJobConfigs); err != nil {
			return nil, fmt.Errorf("unmarshal resolved job configs: %w", err)
		}
	}
	if labelsJSON != nil {
		if err := json.Unmarshal(labelsJSON, &run.Labels); err != nil {
			return nil, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	if issuesJSON != nil {
		if err := json.Unmarshal(issuesJSON, &run.Issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues: %w", err)
		}
	}

	if configContext != nil {
		run.ConfigContext = *configContext
	}
	if traceID != nil {
		run.TraceID = *traceID
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
