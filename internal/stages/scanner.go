package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/configfile"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/worker"
)

// DefaultScannerConfigPath — путь файла настроек сканера в репозитории
// конфигурации.
const DefaultScannerConfigPath = "scanner.config.yml"

// Scanner — обработчик этапа scanner: готовит рабочий каталог и файл
// настроек и передаёт управление движку сканирования.
type Scanner struct {
	runner ScanRunner
	logger *slog.Logger
}

// ScannerConfig — зависимости обработчика scanner.
type ScannerConfig struct {
	// Runner — движок сканирования. Nil — заглушка.
	Runner ScanRunner

	Logger *slog.Logger
}

// NewScanner создаёт обработчик этапа scanner.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.Runner == nil {
		cfg.Runner = NopScanRunner{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scanner{runner: cfg.Runner, logger: cfg.Logger}
}

func (s *Scanner) Stage() domain.Stage { return domain.StageScanner }

func (s *Scanner) Execute(ctx context.Context, wc runctx.WorkerContext) (*worker.Result, error) {
	run := wc.Run()
	jobCfg := configsFor(run).Scanner
	if jobCfg == nil {
		return nil, fmt.Errorf("%w: scanner", ErrNotRequested)
	}

	dir, err := wc.CreateTempDir()
	if err != nil {
		return nil, err
	}

	// Файл настроек сканера опционален: его отсутствие не ошибка.
	configFile, err := wc.DownloadConfigurationFile(ctx, DefaultScannerConfigPath, dir, "")
	if err != nil {
		if !errors.Is(err, configfile.ErrNotFound) {
			return nil, err
		}
		configFile = ""
	}

	plugins, err := wc.ResolvePluginConfigSecrets(ctx, jobCfg.PluginConfigs)
	if err != nil {
		return nil, err
	}

	issues, err := s.runner.Scan(ctx, ScannerRequest{
		Run:           run,
		Config:        *jobCfg,
		PluginConfigs: plugins,
		ConfigFile:    configFile,
		WorkDir:       dir,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("scan finished", "run_id", run.ID.String(), "issues", len(issues))
	return &worker.Result{Issues: issues}, nil
}
