package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/messages"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type orchEnv struct {
	runs   *repo.MemoryRunStore
	jobs   *repo.MemoryJobStore
	broker *transport.Broker
	orch   *Orchestrator
}

func newOrchEnv(t *testing.T) *orchEnv {
	t.Helper()
	logger := testLogger()
	broker := transport.NewBroker()

	routes := make(map[domain.Stage]StageRoute, len(domain.StageOrder))
	for _, stage := range domain.StageOrder {
		routes[stage] = StageRoute{
			Transport: broker.Transport(messages.StageEndpoint(stage), logger),
			Token:     "token-" + string(stage),
		}
	}

	runs := repo.NewMemoryRunStore()
	jobs := repo.NewMemoryJobStore()
	orch := New(Config{
		Runs:          runs,
		Jobs:          jobs,
		In:            broker.Transport(transport.EndpointOrchestrator, logger),
		Routes:        routes,
		LateResultLog: "debug",
		Logger:        logger,
	})
	return &orchEnv{runs: runs, jobs: jobs, broker: broker, orch: orch}
}

func (e *orchEnv) createRun(t *testing.T, configs domain.JobConfigs) *domain.Run {
	t.Helper()
	run := &domain.Run{
		ID:           uuid.New(),
		RepositoryID: uuid.New(),
		Revision:     "main",
		Status:       domain.RunStatusCreated,
		JobConfigs:   configs,
		TraceID:      uuid.New().String(),
		CreatedAt:    time.Now(),
	}
	if err := e.runs.Create(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	return run
}

// start delivers the create-run command synchronously.
func (e *orchEnv) start(t *testing.T, run *domain.Run) {
	t.Helper()
	command := messages.NewCreateRun(transport.Header{TraceID: run.TraceID}, run.ID)
	if err := e.orch.handleEnvelope(context.Background(), command); err != nil {
		t.Fatal(err)
	}
}

// deliver feeds a stage result to the orchestrator synchronously.
func (e *orchEnv) deliver(t *testing.T, stage domain.Stage, traceID string, payload messages.JobResultPayload) {
	t.Helper()
	envelope := messages.NewJobResult(stage, transport.Header{Token: "worker", TraceID: traceID}, payload)
	if err := e.orch.handleEnvelope(context.Background(), envelope); err != nil {
		t.Fatal(err)
	}
}

func (e *orchEnv) getRun(t *testing.T, runID uuid.UUID) *domain.Run {
	t.Helper()
	run, err := e.runs.GetByID(context.Background(), runID)
	if err != nil {
		t.Fatal(err)
	}
	return run
}

// collect drains n envelopes from an endpoint queue.
func (e *orchEnv) collect(t *testing.T, endpoint transport.Endpoint, n int) []*transport.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := make(chan *transport.Envelope, n)
	go func() {
		_ = e.broker.Transport(endpoint, testLogger()).Subscribe(ctx, func(_ context.Context, envelope *transport.Envelope) error {
			ch <- envelope
			return nil
		})
	}()

	out := make([]*transport.Envelope, 0, n)
	for len(out) < n {
		select {
		case envelope := <-ch:
			out = append(out, envelope)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %d messages on %s, got %d", n, endpoint, len(out))
		}
	}
	return out
}

// assertNoMessage fails if the endpoint queue holds a message.
func (e *orchEnv) assertNoMessage(t *testing.T, endpoint transport.Endpoint) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	got := make(chan *transport.Envelope, 1)
	go func() {
		_ = e.broker.Transport(endpoint, testLogger()).Subscribe(ctx, func(_ context.Context, envelope *transport.Envelope) error {
			got <- envelope
			return nil
		})
	}()

	select {
	case envelope := <-got:
		t.Fatalf("unexpected message on %s: %s", endpoint, envelope.Type)
	case <-ctx.Done():
	}
}

func findJob(t *testing.T, jobs []domain.Job, stage domain.Stage) *domain.Job {
	t.Helper()
	for i := range jobs {
		if jobs[i].Stage == stage {
			return &jobs[i]
		}
	}
	t.Fatalf("no job for stage %s", stage)
	return nil
}

func TestOrchestrator_StartRunDispatchesFirstStage(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{
		Analyzer: &domain.AnalyzerJobConfig{},
		Scanner:  &domain.ScannerJobConfig{},
	})
	env.start(t, run)

	stored := env.getRun(t, run.ID)
	if stored.Status != domain.RunStatusActive {
		t.Errorf("run status = %s, want ACTIVE", stored.Status)
	}
	if stored.StartedAt == nil {
		t.Error("StartedAt not set")
	}

	job, err := env.jobs.GetScheduled(context.Background(), run.ID, domain.StageAnalyzer)
	if err != nil {
		t.Fatalf("no scheduled analyzer job: %v", err)
	}
	if job.TraceID != stored.TraceID {
		t.Errorf("job trace id = %q, want run trace %q", job.TraceID, stored.TraceID)
	}

	// Only the first requested stage is dispatched.
	if _, err := env.jobs.GetScheduled(context.Background(), run.ID, domain.StageScanner); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("scanner job created prematurely, err = %v", err)
	}

	req := env.collect(t, messages.StageEndpoint(domain.StageAnalyzer), 1)[0]
	if req.Type != messages.RequestType(domain.StageAnalyzer) {
		t.Errorf("request type = %q", req.Type)
	}
	if req.Header.Token != "token-analyzer" {
		t.Errorf("request token = %q", req.Header.Token)
	}
	if req.Header.TraceID != stored.TraceID {
		t.Errorf("request trace id = %q", req.Header.TraceID)
	}
	payload, err := transport.ParsePayload[messages.JobRequestPayload](req)
	if err != nil {
		t.Fatal(err)
	}
	if payload.RunID != run.ID {
		t.Errorf("request run id = %s", payload.RunID)
	}
}

func TestOrchestrator_CreateRunIsIdempotent(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{Analyzer: &domain.AnalyzerJobConfig{}})
	env.start(t, run)
	env.start(t, run) // redelivered command

	jobs, err := env.jobs.ListByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	env.collect(t, messages.StageEndpoint(domain.StageAnalyzer), 1)
	env.assertNoMessage(t, messages.StageEndpoint(domain.StageAnalyzer))
}

func TestOrchestrator_RunWithoutStagesFinishesImmediately(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{})
	env.start(t, run)

	stored := env.getRun(t, run.ID)
	if stored.Status != domain.RunStatusFinished {
		t.Errorf("run status = %s, want FINISHED", stored.Status)
	}
	if stored.StartedAt == nil || stored.FinishedAt == nil {
		t.Error("timestamps not set")
	}
	jobs, err := env.jobs.ListByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs = %d, want none", len(jobs))
	}
}

func TestOrchestrator_AdvancesThroughRequestedStages(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{
		Analyzer: &domain.AnalyzerJobConfig{},
		Reporter: &domain.ReporterJobConfig{},
	})
	env.start(t, run)
	env.collect(t, messages.StageEndpoint(domain.StageAnalyzer), 1)

	resolved := &domain.JobConfigs{
		Analyzer: &domain.AnalyzerJobConfig{},
		Reporter: &domain.ReporterJobConfig{Formats: []string{"json"}},
	}
	env.deliver(t, domain.StageAnalyzer, run.TraceID, messages.JobResultPayload{
		RunID:              run.ID,
		Issues:             []domain.Issue{domain.NewIssue("npm", "lockfile missing", domain.SeverityHint)},
		ResolvedJobConfigs: resolved,
	})

	stored := env.getRun(t, run.ID)
	if stored.Status != domain.RunStatusActive {
		t.Errorf("run status = %s, want ACTIVE until the last stage", stored.Status)
	}
	if len(stored.Issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(stored.Issues))
	}
	if stored.Issues[0].Worker != domain.StageAnalyzer {
		t.Errorf("issue worker = %q, want analyzer", stored.Issues[0].Worker)
	}
	if stored.ResolvedJobConfigs == nil || stored.ResolvedJobConfigs.Reporter == nil {
		t.Fatal("resolved job configs not applied")
	}
	if got := stored.ResolvedJobConfigs.Reporter.Formats; len(got) != 1 || got[0] != "json" {
		t.Errorf("resolved reporter formats = %v", got)
	}

	jobs, err := env.jobs.ListByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if job := findJob(t, jobs, domain.StageAnalyzer); job.Status != domain.JobStatusFinished {
		t.Errorf("analyzer job status = %s", job.Status)
	}
	if job := findJob(t, jobs, domain.StageReporter); job.Status != domain.JobStatusScheduled {
		t.Errorf("reporter job status = %s", job.Status)
	}

	req := env.collect(t, messages.StageEndpoint(domain.StageReporter), 1)[0]
	if req.Header.TraceID != run.TraceID {
		t.Errorf("reporter request trace id = %q", req.Header.TraceID)
	}

	env.deliver(t, domain.StageReporter, run.TraceID, messages.JobResultPayload{
		RunID:   run.ID,
		Reports: []string{"run-summary.json"},
	})

	stored = env.getRun(t, run.ID)
	if stored.Status != domain.RunStatusFinished {
		t.Errorf("run status = %s, want FINISHED", stored.Status)
	}
	if len(stored.Reports) != 1 || stored.Reports[0] != "run-summary.json" {
		t.Errorf("reports = %v", stored.Reports)
	}
	if stored.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestOrchestrator_ResolvedConfigsGovernNextStage(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{
		Analyzer: &domain.AnalyzerJobConfig{},
		Advisor:  &domain.AdvisorJobConfig{},
		Reporter: &domain.ReporterJobConfig{},
	})
	env.start(t, run)
	env.collect(t, messages.StageEndpoint(domain.StageAnalyzer), 1)

	// Validation dropped the advisor stage from the resolved set.
	env.deliver(t, domain.StageAnalyzer, run.TraceID, messages.JobResultPayload{
		RunID: run.ID,
		ResolvedJobConfigs: &domain.JobConfigs{
			Analyzer: &domain.AnalyzerJobConfig{},
			Reporter: &domain.ReporterJobConfig{},
		},
	})

	if _, err := env.jobs.GetScheduled(context.Background(), run.ID, domain.StageAdvisor); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("advisor dispatched despite being dropped, err = %v", err)
	}
	if _, err := env.jobs.GetScheduled(context.Background(), run.ID, domain.StageReporter); err != nil {
		t.Errorf("reporter not dispatched: %v", err)
	}
	env.collect(t, messages.StageEndpoint(domain.StageReporter), 1)
	env.assertNoMessage(t, messages.StageEndpoint(domain.StageAdvisor))
}

func TestOrchestrator_BlockingIssuesFinishWithIssues(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{Scanner: &domain.ScannerJobConfig{}})
	env.start(t, run)

	env.deliver(t, domain.StageScanner, run.TraceID, messages.JobResultPayload{
		RunID:  run.ID,
		Issues: []domain.Issue{domain.NewIssue("scanner", "copyleft license found", domain.SeverityWarning)},
	})

	stored := env.getRun(t, run.ID)
	if stored.Status != domain.RunStatusFinishedWithIssues {
		t.Errorf("run status = %s, want FINISHED_WITH_ISSUES", stored.Status)
	}
}

func TestOrchestrator_FailureFailsRunWithoutFurtherDispatch(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{
		Analyzer:  &domain.AnalyzerJobConfig{},
		Evaluator: &domain.EvaluatorJobConfig{},
		Notifier:  &domain.NotifierJobConfig{},
	})
	env.start(t, run)
	env.collect(t, messages.StageEndpoint(domain.StageAnalyzer), 1)

	env.deliver(t, domain.StageAnalyzer, run.TraceID, messages.JobResultPayload{
		RunID:  run.ID,
		Issues: []domain.Issue{domain.NewIssue("npm", "deprecated package", domain.SeverityHint)},
	})
	env.collect(t, messages.StageEndpoint(domain.StageEvaluator), 1)

	env.deliver(t, domain.StageEvaluator, run.TraceID, messages.JobResultPayload{
		RunID:   run.ID,
		Failure: &messages.Failure{Message: "rule compilation failed: bad expression"},
	})

	stored := env.getRun(t, run.ID)
	if stored.Status != domain.RunStatusFailed {
		t.Errorf("run status = %s, want FAILED", stored.Status)
	}
	if stored.Error != "stage evaluator failed: rule compilation failed: bad expression" {
		t.Errorf("run error = %q", stored.Error)
	}
	// Results of earlier stages survive the failure.
	if len(stored.Issues) != 1 || stored.Issues[0].Worker != domain.StageAnalyzer {
		t.Errorf("issues = %+v", stored.Issues)
	}

	jobs, err := env.jobs.ListByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if job := findJob(t, jobs, domain.StageEvaluator); job.Status != domain.JobStatusFailed || job.Error == "" {
		t.Errorf("evaluator job = %+v", job)
	}
	if len(jobs) != 2 {
		t.Errorf("jobs = %d, want 2 (notifier never dispatched)", len(jobs))
	}
	env.assertNoMessage(t, messages.StageEndpoint(domain.StageNotifier))
}

func TestOrchestrator_CancelledRunDiscardsResult(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{Analyzer: &domain.AnalyzerJobConfig{}})
	env.start(t, run)
	env.collect(t, messages.StageEndpoint(domain.StageAnalyzer), 1)

	// Cancellation lands directly in the store, as the CLI does it.
	cancelled := env.getRun(t, run.ID)
	cancelled.MarkCancelled()
	if err := env.runs.Update(context.Background(), cancelled); err != nil {
		t.Fatal(err)
	}

	env.deliver(t, domain.StageAnalyzer, run.TraceID, messages.JobResultPayload{
		RunID:  run.ID,
		Issues: []domain.Issue{domain.NewIssue("npm", "late finding", domain.SeverityWarning)},
	})

	stored := env.getRun(t, run.ID)
	if stored.Status != domain.RunStatusCancelled {
		t.Errorf("run status = %s, want CANCELLED", stored.Status)
	}
	if len(stored.Issues) != 0 {
		t.Errorf("issues appended to a cancelled run: %+v", stored.Issues)
	}
	// The discarded result does not touch the open job.
	if _, err := env.jobs.GetScheduled(context.Background(), run.ID, domain.StageAnalyzer); err != nil {
		t.Errorf("analyzer job closed by a discarded result: %v", err)
	}
}

// cancelAfterRead cancels the run in the backing store right after a
// read, modeling an operator cancel landing between the orchestrator's
// read of the run and its write-back.
type cancelAfterRead struct {
	*repo.MemoryRunStore
	armed bool
}

func (s *cancelAfterRead) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, err := s.MemoryRunStore.GetByID(ctx, id)
	if err != nil || !s.armed {
		return run, err
	}
	s.armed = false

	cancelled, err := s.MemoryRunStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cancelled.MarkCancelled()
	if err := s.MemoryRunStore.Update(ctx, cancelled); err != nil {
		return nil, err
	}
	return run, nil
}

func TestOrchestrator_ConcurrentCancelNotOverwritten(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{
		Analyzer: &domain.AnalyzerJobConfig{},
		Reporter: &domain.ReporterJobConfig{},
	})
	env.start(t, run)
	env.collect(t, messages.StageEndpoint(domain.StageAnalyzer), 1)

	// From here the first orchestrator read is followed by a cancel
	// committed before the orchestrator writes its own copy back.
	env.orch.runs = &cancelAfterRead{MemoryRunStore: env.runs, armed: true}

	env.deliver(t, domain.StageAnalyzer, run.TraceID, messages.JobResultPayload{
		RunID:  run.ID,
		Issues: []domain.Issue{domain.NewIssue("npm", "lockfile missing", domain.SeverityHint)},
	})

	stored := env.getRun(t, run.ID)
	if stored.Status != domain.RunStatusCancelled {
		t.Errorf("cancel lost: run status is %s, want CANCELLED", stored.Status)
	}
	if len(stored.Issues) != 0 {
		t.Errorf("issues appended to a cancelled run: %+v", stored.Issues)
	}

	// The next stage is never dispatched for the cancelled run.
	if _, err := env.jobs.GetScheduled(context.Background(), run.ID, domain.StageReporter); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("reporter dispatched after cancellation, err = %v", err)
	}
	env.assertNoMessage(t, messages.StageEndpoint(domain.StageReporter))
}

func TestOrchestrator_DuplicateResultDiscarded(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{Analyzer: &domain.AnalyzerJobConfig{}})
	env.start(t, run)

	payload := messages.JobResultPayload{
		RunID:  run.ID,
		Issues: []domain.Issue{domain.NewIssue("npm", "lockfile missing", domain.SeverityHint)},
	}
	env.deliver(t, domain.StageAnalyzer, run.TraceID, payload)

	first := env.getRun(t, run.ID)
	if first.Status != domain.RunStatusFinished {
		t.Fatalf("run status = %s, want FINISHED", first.Status)
	}

	// Redelivered result must not change anything.
	env.deliver(t, domain.StageAnalyzer, run.TraceID, payload)

	second := env.getRun(t, run.ID)
	if second.Status != domain.RunStatusFinished {
		t.Errorf("run status = %s after duplicate", second.Status)
	}
	if len(second.Issues) != 1 {
		t.Errorf("issues = %d, want 1", len(second.Issues))
	}
	if !second.FinishedAt.Equal(*first.FinishedAt) {
		t.Error("FinishedAt changed by a duplicate result")
	}
}

func TestOrchestrator_TraceMismatchDiscarded(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{Analyzer: &domain.AnalyzerJobConfig{}})
	env.start(t, run)

	env.deliver(t, domain.StageAnalyzer, "forged-trace", messages.JobResultPayload{RunID: run.ID})

	if stored := env.getRun(t, run.ID); stored.Status != domain.RunStatusActive {
		t.Errorf("run status = %s, want ACTIVE", stored.Status)
	}
	if _, err := env.jobs.GetScheduled(context.Background(), run.ID, domain.StageAnalyzer); err != nil {
		t.Errorf("job closed by mismatched result: %v", err)
	}

	// The genuine result still lands.
	env.deliver(t, domain.StageAnalyzer, run.TraceID, messages.JobResultPayload{RunID: run.ID})
	if stored := env.getRun(t, run.ID); stored.Status != domain.RunStatusFinished {
		t.Errorf("run status = %s, want FINISHED", stored.Status)
	}
}

func TestOrchestrator_DropsGarbageMessages(t *testing.T) {
	env := newOrchEnv(t)
	ctx := context.Background()

	// Result for a run nobody created.
	ghost := messages.NewJobResult(domain.StageScanner, transport.Header{TraceID: "t"}, messages.JobResultPayload{RunID: uuid.New()})
	if err := env.orch.handleEnvelope(ctx, ghost); err != nil {
		t.Errorf("unknown run result: %v", err)
	}

	// Message type outside the protocol.
	alien := transport.NewEnvelope(transport.MessageType("deploy.result"), transport.Header{}, nil)
	if err := env.orch.handleEnvelope(ctx, alien); err != nil {
		t.Errorf("alien message type: %v", err)
	}

	// Create-run command with a broken payload.
	malformed := transport.NewEnvelope(messages.TypeCreateRun, transport.Header{}, "garbage")
	if err := env.orch.handleEnvelope(ctx, malformed); err != nil {
		t.Errorf("malformed command: %v", err)
	}

	// Stage request sent to the orchestrator queue by mistake.
	misrouted := messages.NewJobRequest(domain.StageScanner, transport.Header{}, uuid.New())
	if err := env.orch.handleEnvelope(ctx, misrouted); err != nil {
		t.Errorf("misrouted request: %v", err)
	}
}

func TestNew_LateResultLogLevels(t *testing.T) {
	if orch := New(Config{LateResultLog: "info", Logger: testLogger()}); orch.lateLevel != slog.LevelInfo {
		t.Errorf("lateLevel = %v, want info", orch.lateLevel)
	}
	if orch := New(Config{LateResultLog: "nonsense", Logger: testLogger()}); orch.lateLevel != slog.LevelWarn {
		t.Errorf("lateLevel = %v, want warn fallback", orch.lateLevel)
	}

	t.Setenv(envLateResultLog, "debug")
	if orch := New(Config{Logger: testLogger()}); orch.lateLevel != slog.LevelDebug {
		t.Errorf("lateLevel = %v, want debug from environment", orch.lateLevel)
	}
}

func TestRunLocks_SerializesSameRun(t *testing.T) {
	locks := newRunLocks()
	runID := uuid.New()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(runID)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if locks.size() != 0 {
		t.Errorf("locks leaked: %d", locks.size())
	}
}

func TestRunLocks_IndependentRunsDoNotBlock(t *testing.T) {
	locks := newRunLocks()

	unlockA := locks.lock(uuid.New())
	// Locking another run while holding the first must not deadlock.
	unlockB := locks.lock(uuid.New())
	unlockB()
	unlockA()

	if locks.size() != 0 {
		t.Errorf("locks leaked: %d", locks.size())
	}
}

// waitForTerminal polls the store until the run reaches a terminal status.
func waitForTerminal(t *testing.T, runs repo.RunStore, runID uuid.UUID) *domain.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := runs.GetByID(context.Background(), runID)
		if err != nil {
			t.Fatal(err)
		}
		if run.Status.IsTerminal() {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not reach a terminal status")
	return nil
}

func TestOrchestrator_AnalyzerReporterCausalOrder(t *testing.T) {
	env := newOrchEnv(t)
	run := env.createRun(t, domain.JobConfigs{
		Analyzer: &domain.AnalyzerJobConfig{},
		Reporter: &domain.ReporterJobConfig{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orchDone := make(chan error, 1)
	go func() { orchDone <- env.orch.Run(ctx) }()

	toOrchestrator := env.broker.Transport(transport.EndpointOrchestrator, testLogger())

	var mu sync.Mutex
	var events []string
	record := func(event string) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}

	// Fake stage workers: record the request, reply with success echoing
	// the trace id. The result event is recorded before Send so that the
	// recorded order respects the actual happens-before chain.
	startWorker := func(stage domain.Stage, delay time.Duration) {
		tr := env.broker.Transport(messages.StageEndpoint(stage), testLogger())
		go func() {
			_ = tr.Subscribe(ctx, func(ctx context.Context, envelope *transport.Envelope) error {
				record(string(stage) + ".request")
				if stage == domain.StageReporter {
					// The analyzer job must be closed before the
					// reporter request ever leaves the orchestrator.
					if _, err := env.jobs.GetScheduled(ctx, run.ID, domain.StageAnalyzer); !errors.Is(err, repo.ErrNotFound) {
						record("analyzer-still-open")
					}
				}
				time.Sleep(delay)

				request, err := transport.ParsePayload[messages.JobRequestPayload](envelope)
				if err != nil {
					return err
				}
				record(string(stage) + ".result")
				header := transport.Header{Token: "worker", TraceID: envelope.Header.TraceID}
				return toOrchestrator.Send(ctx, messages.NewJobResult(stage, header, messages.JobResultPayload{RunID: request.RunID}))
			})
		}()
	}
	startWorker(domain.StageAnalyzer, 50*time.Millisecond)
	startWorker(domain.StageReporter, 0)

	// A reporter result delivered ahead of the whole run simulates
	// out-of-order transport delivery; it must be discarded.
	forged := messages.NewJobResult(domain.StageReporter, transport.Header{TraceID: run.TraceID}, messages.JobResultPayload{RunID: run.ID})
	if err := toOrchestrator.Send(context.Background(), forged); err != nil {
		t.Fatal(err)
	}
	if err := toOrchestrator.Send(context.Background(), messages.NewCreateRun(transport.Header{TraceID: run.TraceID}, run.ID)); err != nil {
		t.Fatal(err)
	}

	stored := waitForTerminal(t, env.runs, run.ID)
	if stored.Status != domain.RunStatusFinished {
		t.Fatalf("run status = %s, want FINISHED", stored.Status)
	}

	jobs, err := env.jobs.ListByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	for _, job := range jobs {
		if job.Status != domain.JobStatusFinished {
			t.Errorf("%s job status = %s", job.Stage, job.Status)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	index := func(event string) int {
		for i, e := range events {
			if e == event {
				return i
			}
		}
		t.Fatalf("event %q not recorded, events: %v", event, events)
		return -1
	}
	if index("analyzer.result") > index("reporter.request") {
		t.Errorf("reporter dispatched before analyzer result was sent: %v", events)
	}
	for _, event := range events {
		if event == "analyzer-still-open" {
			t.Errorf("reporter request left before analyzer job was closed: %v", events)
		}
	}

	cancel()
	select {
	case err := <-orchDone:
		if err != nil {
			t.Errorf("orchestrator returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("orchestrator did not stop")
	}
}
