package stages

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/reportstore"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Ошибки обработчиков этапов.
var (
	// ErrUnknownStage — для этапа нет обработчика.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrNotRequested — run не заявлял конфигурацию этапа. Оркестратор не
	// рассылает запросы незаявленных этапов, поэтому такой запрос — признак
	// рассинхронизации.
	ErrNotRequested = errors.New("stage not requested by the run")
)

// Config — общие зависимости обработчиков этапов.
type Config struct {
	// Secrets и Services нужны analyzer: разрешение окружения ищет
	// объявления по уровням иерархии run.
	Secrets  repo.SecretStore
	Services repo.ServiceStore

	// Reports — хранилище готовых отчётов. Nil — reportstore.NopWriter.
	Reports reportstore.Writer

	// Formats — таблица генераторов отчётов. Nil — BuiltinFormats().
	Formats []ReportFormat

	// Runners — подключаемые движки этапов. Nil-поля заменяются
	// заглушками.
	Runners Runners

	Logger *slog.Logger
}

// Runners — предметные движки этапов.
type Runners struct {
	DependencyResolver DependencyResolver
	Advisor            AdvisorRunner
	Scanner            ScanRunner
	Notifier           NotifierRunner
}

// ForStage возвращает обработчик указанного этапа.
func ForStage(stage domain.Stage, cfg Config) (worker.StageHandler, error) {
	switch stage {
	case domain.StageAnalyzer:
		return NewAnalyzer(AnalyzerConfig{
			Secrets:  cfg.Secrets,
			Services: cfg.Services,
			Runner:   cfg.Runners.DependencyResolver,
			Logger:   cfg.Logger,
		}), nil
	case domain.StageAdvisor:
		return NewAdvisor(AdvisorConfig{Runner: cfg.Runners.Advisor, Logger: cfg.Logger}), nil
	case domain.StageScanner:
		return NewScanner(ScannerConfig{Runner: cfg.Runners.Scanner, Logger: cfg.Logger}), nil
	case domain.StageEvaluator:
		return NewEvaluator(EvaluatorConfig{Logger: cfg.Logger})
	case domain.StageReporter:
		return NewReporter(ReporterConfig{
			Formats: cfg.Formats,
			Store:   cfg.Reports,
			Logger:  cfg.Logger,
		}), nil
	case domain.StageNotifier:
		return NewNotifier(NotifierConfig{Runner: cfg.Runners.Notifier, Logger: cfg.Logger}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
}

// configsFor возвращает конфигурации, по которым работает этап:
// проверенные analyzer-ом, а до него — заявленные при создании run.
func configsFor(run *domain.Run) domain.JobConfigs {
	if run.ResolvedJobConfigs != nil {
		return *run.ResolvedJobConfigs
	}
	return run.JobConfigs
}

var (
	_ worker.StageHandler = (*Analyzer)(nil)
	_ worker.StageHandler = (*Advisor)(nil)
	_ worker.StageHandler = (*Scanner)(nil)
	_ worker.StageHandler = (*Evaluator)(nil)
	_ worker.StageHandler = (*Reporter)(nil)
	_ worker.StageHandler = (*Notifier)(nil)
)
