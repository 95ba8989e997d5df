package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики конвейера. Регистрируются в глобальном реестре Prometheus,
// отдаются через /metrics (promhttp) в каждом сервисе.
var (
	// RunsStarted — сколько run переведено в ACTIVE.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_runs_started_total",
		Help: "Number of runs moved to ACTIVE state.",
	})

	// RunsFinished — завершённые run по финальным статусам.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_runs_finished_total",
		Help: "Number of finished runs by terminal status.",
	}, []string{"status"})

	// JobsDispatched — отправленные запросы этапов.
	JobsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_jobs_dispatched_total",
		Help: "Number of stage job requests dispatched to workers.",
	}, []string{"stage"})

	// JobsCompleted — полученные результаты этапов по статусам.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_jobs_completed_total",
		Help: "Number of stage job results processed by the orchestrator.",
	}, []string{"stage", "status"})

	// JobDuration — длительность этапа от отправки запроса до результата.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conveyor_job_duration_seconds",
		Help:    "Stage duration from dispatch to result.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"stage"})

	// ResultsDiscarded — отброшенные результаты (поздние и дубликаты).
	ResultsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_results_discarded_total",
		Help: "Number of stage results discarded as late or duplicate.",
	}, []string{"stage", "reason"})

	// MessagesPublished — опубликованные сообщения по endpoint.
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_messages_published_total",
		Help: "Number of messages published per endpoint.",
	}, []string{"endpoint"})

	// MessagesReceived — принятые сообщения по endpoint и исходу обработки.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_messages_received_total",
		Help: "Number of messages received per endpoint by handling outcome.",
	}, []string{"endpoint", "outcome"})

	// SecretResolutions — обращения контекста воркера за секретами.
	SecretResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_secret_resolutions_total",
		Help: "Worker context secret lookups by cache outcome.",
	}, []string{"outcome"})

	// StaleRunsFailed — run, закрытые монитором по таймауту этапа.
	StaleRunsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_stale_runs_failed_total",
		Help: "Number of runs failed by the stale run monitor.",
	})
)
