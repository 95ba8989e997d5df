package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/envconf"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Переменные окружения монитора.
const (
	envSchedule  = "CONVEYOR_MONITOR_SCHEDULE"
	envMaxJobAge = "CONVEYOR_MONITOR_MAX_JOB_AGE"
	envMaxRunAge = "CONVEYOR_MONITOR_MAX_RUN_AGE"
)

const (
	defaultSchedule  = "@every 1m"
	defaultMaxJobAge = 30 * time.Minute
	defaultMaxRunAge = 2 * time.Hour
)

// Monitor закрывает зависшие run по таймауту.
type Monitor struct {
	runs      repo.RunStore
	jobs      repo.JobStore
	schedule  string
	maxJobAge time.Duration
	maxRunAge time.Duration
	logger    *slog.Logger
}

// Config — конфигурация Monitor.
type Config struct {
	Runs repo.RunStore
	Jobs repo.JobStore

	// Schedule — расписание тиков в формате cron (поддерживаются
	// дескрипторы вида "@every 1m"). Пустая строка — значение из
	// CONVEYOR_MONITOR_SCHEDULE.
	Schedule string

	// MaxJobAge — максимальный возраст открытого задания. Ноль —
	// значение из CONVEYOR_MONITOR_MAX_JOB_AGE.
	MaxJobAge time.Duration

	// MaxRunAge — максимальный возраст активного run. Ноль — значение
	// из CONVEYOR_MONITOR_MAX_RUN_AGE.
	MaxRunAge time.Duration

	Logger *slog.Logger
}

// New создаёт Monitor. Не заданные в Config параметры читаются из
// переменных окружения.
func New(cfg Config) (*Monitor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = envconf.String(envSchedule, defaultSchedule)
	}

	maxJobAge := cfg.MaxJobAge
	if maxJobAge == 0 {
		v, err := envconf.Duration(envMaxJobAge, defaultMaxJobAge)
		if err != nil {
			return nil, err
		}
		maxJobAge = v
	}

	maxRunAge := cfg.MaxRunAge
	if maxRunAge == 0 {
		v, err := envconf.Duration(envMaxRunAge, defaultMaxRunAge)
		if err != nil {
			return nil, err
		}
		maxRunAge = v
	}

	return &Monitor{
		runs:      cfg.Runs,
		jobs:      cfg.Jobs,
		schedule:  schedule,
		maxJobAge: maxJobAge,
		maxRunAge: maxRunAge,
		logger:    logger,
	}, nil
}

// Run запускает тики по расписанию и блокируется до отмены контекста.
func (m *Monitor) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(m.schedule, func() {
		if err := m.Tick(ctx); err != nil {
			m.logger.Error("monitor tick failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", m.schedule, err)
	}

	c.Start()
	m.logger.Info("monitor started",
		"schedule", m.schedule,
		"max_job_age", m.maxJobAge,
		"max_run_age", m.maxRunAge,
	)

	<-ctx.Done()
	// Stop не прерывает выполняющийся тик, дожидаемся его завершения.
	<-c.Stop().Done()
	m.logger.Info("monitor stopped")
	return nil
}

// Tick выполняет один проход монитора.
//
// 1. Задания, открытые дольше MaxJobAge, закрываются как FAILED вместе
// со своими run.
// 2. Run, остающиеся ACTIVE дольше MaxRunAge, закрываются как FAILED.
// Сюда попадают run без открытого задания: запрос следующего этапа не
// дошёл до очереди либо run не удалось обновить после закрытия задания.
//
// Ошибка по одному run не прерывает обработку остальных.
func (m *Monitor) Tick(ctx context.Context) error {
	now := time.Now()

	staleJobs, err := m.failStaleJobs(ctx, now)
	if err != nil {
		return err
	}
	staleRuns, err := m.failStaleRuns(ctx, now)
	if err != nil {
		return err
	}

	if staleJobs+staleRuns > 0 {
		m.logger.Info("monitor tick completed",
			"stale_jobs", staleJobs,
			"stale_runs", staleRuns,
		)
	}
	return nil
}

func (m *Monitor) failStaleJobs(ctx context.Context, now time.Time) (int, error) {
	jobs, err := m.jobs.ListStale(ctx, now.Add(-m.maxJobAge))
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	var failed int
	for i := range jobs {
		job := &jobs[i]
		if err := m.failStaleJob(ctx, job, now); err != nil {
			m.logger.Error("failed to close stale job",
				"job_id", job.ID,
				"run_id", job.RunID,
				"stage", string(job.Stage),
				"error", err,
			)
			continue
		}
		failed++
	}
	return failed, nil
}

// failStaleJob закрывает задание и его run.
//
// Если run уже в терминальном статусе (например, отменён оператором),
// закрывается только задание.
func (m *Monitor) failStaleJob(ctx context.Context, job *domain.Job, now time.Time) error {
	age := now.Sub(job.CreatedAt).Round(time.Second)

	job.MarkFailed(fmt.Sprintf("no result after %s", age))
	if err := m.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	run, err := m.runs.GetByID(ctx, job.RunID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run.Status.IsTerminal() {
		return nil
	}

	run.MarkFailed(fmt.Sprintf("stage %s timed out after %s", job.Stage, age))
	if err := m.runs.Update(ctx, run); err != nil {
		// Run завершился между чтением и записью: закрыто только задание.
		if errors.Is(err, repo.ErrInvalidState) {
			return nil
		}
		return fmt.Errorf("update run: %w", err)
	}

	telemetry.StaleRunsFailed.Inc()
	telemetry.RunsFinished.WithLabelValues(string(run.Status)).Inc()
	m.logger.Warn("stale run failed",
		"run_id", run.ID,
		"stage", string(job.Stage),
		"job_age", age,
	)
	return nil
}

func (m *Monitor) failStaleRuns(ctx context.Context, now time.Time) (int, error) {
	runs, err := m.runs.List(ctx, repo.RunFilter{Status: domain.RunStatusActive})
	if err != nil {
		return 0, fmt.Errorf("list active runs: %w", err)
	}

	var failed int
	for i := range runs {
		run := &runs[i]
		if run.StartedAt == nil || now.Sub(*run.StartedAt) < m.maxRunAge {
			continue
		}
		age := now.Sub(*run.StartedAt).Round(time.Second)

		run.MarkFailed(fmt.Sprintf("no progress after %s", age))
		if err := m.runs.Update(ctx, run); err != nil {
			// Run завершился после выборки списка.
			if errors.Is(err, repo.ErrInvalidState) {
				continue
			}
			m.logger.Error("failed to close stale run", "run_id", run.ID, "error", err)
			continue
		}

		telemetry.StaleRunsFailed.Inc()
		telemetry.RunsFinished.WithLabelValues(string(run.Status)).Inc()
		m.logger.Warn("stale run failed", "run_id", run.ID, "run_age", age)
		failed++
	}
	return failed, nil
}
