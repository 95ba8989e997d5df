package monitor

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type monitorEnv struct {
	runs *repo.MemoryRunStore
	jobs *repo.MemoryJobStore
	mon  *Monitor
}

func newMonitorEnv(t *testing.T, maxJobAge, maxRunAge time.Duration) *monitorEnv {
	t.Helper()
	runs := repo.NewMemoryRunStore()
	jobs := repo.NewMemoryJobStore()
	mon, err := New(Config{
		Runs:      runs,
		Jobs:      jobs,
		Schedule:  "@every 1m",
		MaxJobAge: maxJobAge,
		MaxRunAge: maxRunAge,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &monitorEnv{runs: runs, jobs: jobs, mon: mon}
}

func (e *monitorEnv) addRun(t *testing.T, status domain.RunStatus, startedAgo time.Duration) *domain.Run {
	t.Helper()
	started := time.Now().Add(-startedAgo)
	run := &domain.Run{
		ID:           uuid.New(),
		RepositoryID: uuid.New(),
		Revision:     "main",
		Status:       status,
		TraceID:      uuid.New().String(),
		CreatedAt:    started,
		StartedAt:    &started,
	}
	if err := e.runs.Create(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	return run
}

func (e *monitorEnv) addJob(t *testing.T, runID uuid.UUID, stage domain.Stage, createdAgo time.Duration) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:        uuid.New(),
		RunID:     runID,
		Stage:     stage,
		Status:    domain.JobStatusScheduled,
		TraceID:   "trace",
		CreatedAt: time.Now().Add(-createdAgo),
	}
	if err := e.jobs.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestMonitor_FailsStaleJobAndRun(t *testing.T) {
	env := newMonitorEnv(t, 30*time.Minute, 2*time.Hour)
	run := env.addRun(t, domain.RunStatusActive, time.Hour)
	env.addJob(t, run.ID, domain.StageScanner, time.Hour)

	if err := env.mon.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	jobs, err := env.jobs.ListByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Status != domain.JobStatusFailed {
		t.Errorf("job status = %s, want FAILED", jobs[0].Status)
	}
	if jobs[0].Error == "" || jobs[0].FinishedAt == nil {
		t.Errorf("job not closed properly: %+v", jobs[0])
	}

	stored, err := env.runs.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.RunStatusFailed {
		t.Errorf("run status = %s, want FAILED", stored.Status)
	}
	if !strings.Contains(stored.Error, "stage scanner timed out") {
		t.Errorf("run error = %q", stored.Error)
	}
}

func TestMonitor_KeepsFreshJobs(t *testing.T) {
	env := newMonitorEnv(t, 30*time.Minute, 2*time.Hour)
	run := env.addRun(t, domain.RunStatusActive, time.Minute)
	env.addJob(t, run.ID, domain.StageAnalyzer, time.Minute)

	if err := env.mon.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := env.jobs.GetScheduled(context.Background(), run.ID, domain.StageAnalyzer); err != nil {
		t.Errorf("fresh job closed: %v", err)
	}
	stored, err := env.runs.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.RunStatusActive {
		t.Errorf("run status = %s, want ACTIVE", stored.Status)
	}
}

func TestMonitor_ClosesJobOfCancelledRunQuietly(t *testing.T) {
	env := newMonitorEnv(t, 30*time.Minute, 2*time.Hour)
	run := env.addRun(t, domain.RunStatusCancelled, time.Hour)
	env.addJob(t, run.ID, domain.StageAnalyzer, time.Hour)

	if err := env.mon.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	jobs, err := env.jobs.ListByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].Status != domain.JobStatusFailed {
		t.Errorf("job status = %s, want FAILED", jobs[0].Status)
	}

	stored, err := env.runs.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	// A terminal run keeps its status and diagnostic untouched.
	if stored.Status != domain.RunStatusCancelled {
		t.Errorf("run status = %s, want CANCELLED", stored.Status)
	}
	if stored.Error != "" {
		t.Errorf("run error = %q, want empty", stored.Error)
	}
}

func TestMonitor_FailsActiveRunWithoutOpenJob(t *testing.T) {
	env := newMonitorEnv(t, 30*time.Minute, 2*time.Hour)
	run := env.addRun(t, domain.RunStatusActive, 3*time.Hour)

	if err := env.mon.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	stored, err := env.runs.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.RunStatusFailed {
		t.Errorf("run status = %s, want FAILED", stored.Status)
	}
	if !strings.Contains(stored.Error, "no progress") {
		t.Errorf("run error = %q", stored.Error)
	}
}

func TestMonitor_KeepsYoungActiveRun(t *testing.T) {
	env := newMonitorEnv(t, 30*time.Minute, 2*time.Hour)
	run := env.addRun(t, domain.RunStatusActive, time.Hour)

	if err := env.mon.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	stored, err := env.runs.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.RunStatusActive {
		t.Errorf("run status = %s, want ACTIVE", stored.Status)
	}
}

func TestNew_EnvConfig(t *testing.T) {
	t.Setenv(envSchedule, "@every 30s")
	t.Setenv(envMaxJobAge, "10m")
	t.Setenv(envMaxRunAge, "1h")

	mon, err := New(Config{
		Runs:   repo.NewMemoryRunStore(),
		Jobs:   repo.NewMemoryJobStore(),
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if mon.schedule != "@every 30s" {
		t.Errorf("schedule = %q", mon.schedule)
	}
	if mon.maxJobAge != 10*time.Minute {
		t.Errorf("maxJobAge = %s", mon.maxJobAge)
	}
	if mon.maxRunAge != time.Hour {
		t.Errorf("maxRunAge = %s", mon.maxRunAge)
	}

	t.Setenv(envMaxJobAge, "soon")
	if _, err := New(Config{Logger: testLogger()}); err == nil {
		t.Error("expected error for malformed duration")
	}
}

func TestMonitor_RunExecutesTicks(t *testing.T) {
	env := newMonitorEnv(t, time.Minute, time.Hour)
	run := env.addRun(t, domain.RunStatusActive, 10*time.Minute)
	env.addJob(t, run.ID, domain.StageAnalyzer, 10*time.Minute)

	mon, err := New(Config{
		Runs:      env.runs,
		Jobs:      env.jobs,
		Schedule:  "@every 10ms",
		MaxJobAge: time.Minute,
		MaxRunAge: time.Hour,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		stored, err := env.runs.GetByID(context.Background(), run.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Status == domain.RunStatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("monitor did not fail the stale run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("monitor returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("monitor did not stop")
	}
}

func TestMonitor_RunRejectsBadSchedule(t *testing.T) {
	mon, err := New(Config{
		Runs:      repo.NewMemoryRunStore(),
		Jobs:      repo.NewMemoryJobStore(),
		Schedule:  "not a schedule",
		MaxJobAge: time.Minute,
		MaxRunAge: time.Hour,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mon.Run(context.Background()); err == nil {
		t.Error("expected error for malformed schedule")
	}
}
