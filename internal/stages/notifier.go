package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Notifier — обработчик этапа notifier: подставляет секреты рассыльщика
// и отправляет уведомление о run.
//
// Сбой доставки не валит этап: он фиксируется замечанием уровня WARNING,
// чтобы run не приходилось перезапускать из-за недоставленного письма.
type Notifier struct {
	runner NotifierRunner
	logger *slog.Logger
}

// NotifierConfig — зависимости обработчика notifier.
type NotifierConfig struct {
	// Runner — движок доставки уведомлений. Nil — заглушка.
	Runner NotifierRunner

	Logger *slog.Logger
}

// NewNotifier создаёт обработчик этапа notifier.
func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.Runner == nil {
		cfg.Runner = NopNotifierRunner{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Notifier{runner: cfg.Runner, logger: cfg.Logger}
}

func (n *Notifier) Stage() domain.Stage { return domain.StageNotifier }

func (n *Notifier) Execute(ctx context.Context, wc runctx.WorkerContext) (*worker.Result, error) {
	run := wc.Run()
	jobCfg := configsFor(run).Notifier
	if jobCfg == nil {
		return nil, fmt.Errorf("%w: notifier", ErrNotRequested)
	}

	plugins, err := wc.ResolvePluginConfigSecrets(ctx, jobCfg.PluginConfigs)
	if err != nil {
		return n.failure(run, err), nil
	}

	err = n.runner.Notify(ctx, NotifierRequest{
		Run:           run,
		Config:        *jobCfg,
		PluginConfigs: plugins,
	})
	if err != nil {
		return n.failure(run, err), nil
	}

	n.logger.Debug("notification sent",
		"run_id", run.ID.String(), "recipients", len(jobCfg.Recipients))
	return &worker.Result{}, nil
}

// failure превращает сбой уведомления в замечание.
func (n *Notifier) failure(run *domain.Run, err error) *worker.Result {
	n.logger.Warn("notification failed", "run_id", run.ID.String(), "error", err.Error())
	return &worker.Result{Issues: []domain.Issue{domain.NewIssue("notifier",
		fmt.Sprintf("notification failed: %v", err), domain.SeverityWarning)}}
}
