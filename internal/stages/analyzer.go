package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/environment"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Analyzer — обработчик этапа analyzer: разрешает окружение анализа,
// генерирует файлы учётных данных и строит проверенный набор
// конфигураций этапов.
type Analyzer struct {
	secrets  repo.SecretStore
	services repo.ServiceStore
	runner   DependencyResolver
	logger   *slog.Logger
}

// AnalyzerConfig — зависимости обработчика analyzer.
type AnalyzerConfig struct {
	Secrets  repo.SecretStore
	Services repo.ServiceStore

	// Runner — движок разрешения зависимостей. Nil — заглушка.
	Runner DependencyResolver

	Logger *slog.Logger
}

// NewAnalyzer создаёт обработчик этапа analyzer.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.Runner == nil {
		cfg.Runner = NopDependencyResolver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Analyzer{
		secrets:  cfg.Secrets,
		services: cfg.Services,
		runner:   cfg.Runner,
		logger:   cfg.Logger,
	}
}

func (a *Analyzer) Stage() domain.Stage { return domain.StageAnalyzer }

// Execute разрешает окружение по файлу конфигурации репозитория,
// материализует файлы учётных данных во временном каталоге и передаёт
// управление движку анализа. Предупреждения нестрогого режима становятся
// замечаниями уровня HINT.
func (a *Analyzer) Execute(ctx context.Context, wc runctx.WorkerContext) (*worker.Result, error) {
	run := wc.Run()
	// Analyzer сам строит проверенный набор, поэтому работает по
	// заявленным конфигурациям.
	jobCfg := run.JobConfigs.Analyzer
	if jobCfg == nil {
		return nil, fmt.Errorf("%w: analyzer", ErrNotRequested)
	}

	envCfg, err := environment.Load(ctx, wc, jobCfg.EnvironmentConfigPath)
	if err != nil {
		return nil, err
	}

	resolver := environment.NewResolver(a.secrets, a.services, a.logger)
	env, err := resolver.Resolve(ctx, wc.Hierarchy(), envCfg)
	if err != nil {
		return nil, err
	}

	var issues []domain.Issue
	for _, warning := range env.Warnings {
		issues = append(issues, domain.NewIssue("environment", warning, domain.SeverityHint))
	}

	dir, err := wc.CreateTempDir()
	if err != nil {
		return nil, err
	}
	files, err := environment.GenerateAll(ctx, wc, env, dir)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("environment files generated",
		"run_id", run.ID.String(), "files", len(files))

	plugins, err := wc.ResolvePluginConfigSecrets(ctx, jobCfg.PluginConfigs)
	if err != nil {
		return nil, err
	}

	runnerIssues, err := a.runner.ResolveDependencies(ctx, AnalyzerRequest{
		Run:            run,
		Config:         *jobCfg,
		PluginConfigs:  plugins,
		Environment:    env,
		EnvironmentDir: dir,
	})
	if err != nil {
		return nil, err
	}
	issues = append(issues, runnerIssues...)

	resolved := resolveJobConfigs(run.JobConfigs)
	return &worker.Result{Issues: issues, ResolvedJobConfigs: &resolved}, nil
}

// resolveJobConfigs строит проверенный набор конфигураций этапов: копия
// заявленных с подставленными значениями по умолчанию. Копия отвязывает
// результат от run, с которым работает контекст.
func resolveJobConfigs(declared domain.JobConfigs) domain.JobConfigs {
	resolved := declared
	if declared.Analyzer != nil {
		c := *declared.Analyzer
		resolved.Analyzer = &c
	}
	if declared.Advisor != nil {
		c := *declared.Advisor
		resolved.Advisor = &c
	}
	if declared.Scanner != nil {
		c := *declared.Scanner
		resolved.Scanner = &c
	}
	if declared.Evaluator != nil {
		c := *declared.Evaluator
		resolved.Evaluator = &c
		if resolved.Evaluator.RuleSet == "" {
			resolved.Evaluator.RuleSet = DefaultRuleSetPath
		}
	}
	if declared.Reporter != nil {
		c := *declared.Reporter
		resolved.Reporter = &c
		if len(resolved.Reporter.Formats) == 0 {
			resolved.Reporter.Formats = []string{FormatJSON}
		}
	}
	if declared.Notifier != nil {
		c := *declared.Notifier
		resolved.Notifier = &c
	}
	return resolved
}
