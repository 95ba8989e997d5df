package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/messages"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/transport"
)

// startRun обрабатывает команду создания run: CREATED → ACTIVE плюс
// отправка первого запрошенного этапа. Run без этапов завершается сразу.
func (o *Orchestrator) startRun(ctx context.Context, runID uuid.UUID) error {
	unlock := o.locks.lock(runID)
	defer unlock()

	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			o.logger.Error("create-run command for unknown run dropped", "run_id", runID)
			return nil
		}
		return fmt.Errorf("get run: %w", err)
	}

	if run.Status != domain.RunStatusCreated {
		// Повторная доставка команды либо run отменён до старта.
		o.logger.Debug("create-run command ignored",
			"run_id", runID,
			"status", string(run.Status),
		)
		return nil
	}

	// Trace id назначается при создании run; страховка на случай пустого.
	if run.TraceID == "" {
		run.TraceID = uuid.New().String()
	}
	run.MarkActive()

	first, ok := run.JobConfigs.FirstStage()
	if !ok {
		run.MarkFinished()
		if err := o.runs.Update(ctx, run); err != nil {
			if errors.Is(err, repo.ErrInvalidState) {
				// Run отменён между чтением и записью.
				o.logger.Info("run cancelled before start", "run_id", runID)
				return nil
			}
			return fmt.Errorf("update run: %w", err)
		}
		telemetry.RunsStarted.Inc()
		telemetry.RunsFinished.WithLabelValues(string(run.Status)).Inc()
		o.logger.Info("run finished",
			"run_id", runID,
			"status", string(run.Status),
			"stages", 0,
		)
		return nil
	}

	if err := o.runs.Update(ctx, run); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			// Run отменён между чтением и записью: этапы не отправляются.
			o.logger.Info("run cancelled before start", "run_id", runID)
			return nil
		}
		return fmt.Errorf("update run: %w", err)
	}
	telemetry.RunsStarted.Inc()
	o.logger.Info("run started",
		"run_id", runID,
		"trace_id", run.TraceID,
		"revision", run.Revision,
		"stages", stageNames(run.JobConfigs.Stages()),
	)

	o.dispatch(ctx, run, first)
	return nil
}

// processResult обрабатывает результат этапа. Результаты завершённых run,
// результаты без открытого job и результаты с чужим trace id отбрасываются.
func (o *Orchestrator) processResult(ctx context.Context, stage domain.Stage, traceID string, result messages.JobResultPayload) error {
	unlock := o.locks.lock(result.RunID)
	defer unlock()

	log := o.logger.With(
		"run_id", result.RunID,
		"stage", string(stage),
		"trace_id", traceID,
	)

	run, err := o.runs.GetByID(ctx, result.RunID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			o.discard(ctx, log, stage, "unknown_run")
			return nil
		}
		return fmt.Errorf("get run: %w", err)
	}

	if run.Status.IsTerminal() {
		// Поздняя или повторная доставка, либо run отменён.
		o.discard(ctx, log, stage, "run_terminal")
		return nil
	}

	job, err := o.jobs.GetScheduled(ctx, result.RunID, stage)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Открытого job нет: результат уже обработан либо запрос
			// этого этапа не отправлялся.
			o.discard(ctx, log, stage, "no_open_job")
			return nil
		}
		return fmt.Errorf("get scheduled job: %w", err)
	}

	if job.TraceID != traceID {
		o.discard(ctx, log, stage, "trace_mismatch")
		return nil
	}

	if !result.Succeeded() {
		return o.failJob(ctx, run, job, result.Failure.Message, log)
	}
	return o.finishJob(ctx, run, job, result, log)
}

// failJob закрывает job с ошибкой и переводит run в FAILED. Дальнейшие
// этапы не отправляются; результаты пройденных этапов остаются на run.
func (o *Orchestrator) failJob(ctx context.Context, run *domain.Run, job *domain.Job, message string, log *slog.Logger) error {
	job.MarkFailed(message)
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	o.observeJob(job)

	// После закрытия job повторная доставка результата отбрасывается как
	// дубликат, поэтому дальнейшие сбои не возвращаются транспорту:
	// застрявший run закрывает монитор.
	run.MarkFailed(fmt.Sprintf("stage %s failed: %s", job.Stage, message))
	if err := o.runs.Update(ctx, run); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			// Run отменён, пока обрабатывался результат: вердикт
			// оператора сильнее вердикта этапа.
			o.discard(ctx, log, job.Stage, "run_terminal")
			return nil
		}
		log.Error("update failed run", "error", err)
		return nil
	}
	telemetry.RunsFinished.WithLabelValues(string(run.Status)).Inc()

	log.Warn("run failed",
		"error", message,
		"duration", run.Duration(),
	)
	return nil
}

// finishJob закрывает успешный job, переносит дельты результата на run и
// отправляет следующий запрошенный этап либо финализирует run.
func (o *Orchestrator) finishJob(ctx context.Context, run *domain.Run, job *domain.Job, result messages.JobResultPayload, log *slog.Logger) error {
	job.MarkFinished()
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	o.observeJob(job)

	// Как и в failJob, после этой точки сбои не возвращаются транспорту.
	mergeResult(run, job.Stage, result)

	next, ok := effectiveConfigs(run).NextStage(job.Stage)
	if !ok {
		run.MarkFinished()
		if err := o.runs.Update(ctx, run); err != nil {
			if errors.Is(err, repo.ErrInvalidState) {
				o.discard(ctx, log, job.Stage, "run_terminal")
				return nil
			}
			log.Error("update finished run", "error", err)
			return nil
		}
		telemetry.RunsFinished.WithLabelValues(string(run.Status)).Inc()

		log.Info("run finished",
			"status", string(run.Status),
			"issues", len(run.Issues),
			"reports", len(run.Reports),
			"duration", run.Duration(),
		)
		return nil
	}

	// Run сохраняется до отправки запроса: воркер следующего этапа читает
	// замечания и проверенные конфигурации из хранилища. Отказ хранилища
	// на терминальном run означает конкурентную отмену: следующий этап
	// не отправляется.
	if err := o.runs.Update(ctx, run); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			o.discard(ctx, log, job.Stage, "run_terminal")
			return nil
		}
		log.Error("update run after stage result", "error", err)
		return nil
	}

	log.Info("stage finished",
		"issues", len(result.Issues),
		"next", string(next),
	)
	o.dispatch(ctx, run, next)
	return nil
}

// dispatch открывает job этапа и отправляет воркеру запрос. Сбои не
// возвращаются вызывающему: run с открытым job без запроса, как и run
// вовсе без открытого job, закрывает монитор по таймауту.
func (o *Orchestrator) dispatch(ctx context.Context, run *domain.Run, stage domain.Stage) {
	log := o.logger.With(
		"run_id", run.ID,
		"stage", string(stage),
		"trace_id", run.TraceID,
	)

	route, ok := o.routes[stage]
	if !ok {
		log.Error("no transport route for stage")
		return
	}

	job := &domain.Job{
		ID:        uuid.New(),
		RunID:     run.ID,
		Stage:     stage,
		Status:    domain.JobStatusScheduled,
		TraceID:   run.TraceID,
		CreatedAt: time.Now(),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		log.Error("create job", "error", err)
		return
	}

	header := transport.Header{Token: route.Token, TraceID: run.TraceID}
	if err := route.Transport.Send(ctx, messages.NewJobRequest(stage, header, run.ID)); err != nil {
		log.Error("send job request", "error", err)
		return
	}

	telemetry.JobsDispatched.WithLabelValues(string(stage)).Inc()
	log.Info("job dispatched", "job_id", job.ID)
}

// discard отбрасывает результат этапа, логируя его с настроенным уровнем.
func (o *Orchestrator) discard(ctx context.Context, log *slog.Logger, stage domain.Stage, reason string) {
	telemetry.ResultsDiscarded.WithLabelValues(string(stage), reason).Inc()
	log.Log(ctx, o.lateLevel, "stage result discarded", "reason", reason)
}

// observeJob фиксирует метрики закрытого job.
func (o *Orchestrator) observeJob(job *domain.Job) {
	telemetry.JobsCompleted.WithLabelValues(string(job.Stage), string(job.Status)).Inc()
	telemetry.JobDuration.WithLabelValues(string(job.Stage)).Observe(time.Since(job.CreatedAt).Seconds())
}

// mergeResult переносит дельты результата этапа на run: замечания с
// отметкой этапа, проверенные конфигурации анализа и имена отчётов.
func mergeResult(run *domain.Run, stage domain.Stage, result messages.JobResultPayload) {
	for _, issue := range result.Issues {
		issue.Worker = stage
		run.Issues = append(run.Issues, issue)
	}
	if result.ResolvedJobConfigs != nil {
		run.ResolvedJobConfigs = result.ResolvedJobConfigs
	}
	run.Reports = append(run.Reports, result.Reports...)
}

// effectiveConfigs возвращает конфигурации, по которым выбирается
// следующий этап: проверенный набор анализа, если он уже есть.
func effectiveConfigs(run *domain.Run) domain.JobConfigs {
	if run.ResolvedJobConfigs != nil {
		return *run.ResolvedJobConfigs
	}
	return run.JobConfigs
}

func stageNames(stages []domain.Stage) []string {
	names := make([]string, len(stages))
	for i, stage := range stages {
		names[i] = string(stage)
	}
	return names
}
