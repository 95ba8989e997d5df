package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Advisor — обработчик этапа advisor: подставляет секреты в конфигурации
// провайдеров уязвимостей и передаёт управление движку.
type Advisor struct {
	runner AdvisorRunner
	logger *slog.Logger
}

// AdvisorConfig — зависимости обработчика advisor.
type AdvisorConfig struct {
	// Runner — движок запросов к провайдерам уязвимостей. Nil — заглушка.
	Runner AdvisorRunner

	Logger *slog.Logger
}

// NewAdvisor создаёт обработчик этапа advisor.
func NewAdvisor(cfg AdvisorConfig) *Advisor {
	if cfg.Runner == nil {
		cfg.Runner = NopAdvisorRunner{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Advisor{runner: cfg.Runner, logger: cfg.Logger}
}

func (a *Advisor) Stage() domain.Stage { return domain.StageAdvisor }

func (a *Advisor) Execute(ctx context.Context, wc runctx.WorkerContext) (*worker.Result, error) {
	run := wc.Run()
	jobCfg := configsFor(run).Advisor
	if jobCfg == nil {
		return nil, fmt.Errorf("%w: advisor", ErrNotRequested)
	}

	plugins, err := wc.ResolvePluginConfigSecrets(ctx, jobCfg.PluginConfigs)
	if err != nil {
		return nil, err
	}

	issues, err := a.runner.Advise(ctx, AdvisorRequest{
		Run:           run,
		Config:        *jobCfg,
		PluginConfigs: plugins,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("advisors finished",
		"run_id", run.ID.String(), "advisors", len(jobCfg.Advisors), "issues", len(issues))
	return &worker.Result{Issues: issues}, nil
}
