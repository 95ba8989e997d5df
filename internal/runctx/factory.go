package runctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/configfile"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/secrets"
)

// Ошибки контекста воркера.
var (
	// ErrRunNotFound — run с указанным идентификатором не существует.
	ErrRunNotFound = errors.New("run not found")

	// ErrClosed — операция на закрытом контексте.
	ErrClosed = errors.New("worker context closed")
)

// Factory создаёт контексты выполнения этапов.
type Factory struct {
	runs        repo.RunStore
	hierarchies repo.HierarchyStore
	secrets     secrets.Provider
	configs     configfile.Provider
	workDir     string
	logger      *slog.Logger
}

// FactoryConfig — зависимости фабрики контекстов.
type FactoryConfig struct {
	// Runs — хранилище run.
	Runs repo.RunStore

	// Hierarchies — хранилище иерархии repository → product → organization.
	Hierarchies repo.HierarchyStore

	// Secrets — внешнее хранилище значений секретов.
	Secrets secrets.Provider

	// Configs — провайдер конфигурационных файлов.
	Configs configfile.Provider

	// WorkDir — корень временных каталогов контекстов.
	// Пустая строка означает системный каталог временных файлов.
	WorkDir string

	// Logger — логгер.
	Logger *slog.Logger
}

// NewFactory создаёт фабрику контекстов.
func NewFactory(cfg FactoryConfig) *Factory {
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	return &Factory{
		runs:        cfg.Runs,
		hierarchies: cfg.Hierarchies,
		secrets:     cfg.Secrets,
		configs:     cfg.Configs,
		workDir:     workDir,
		logger:      cfg.Logger,
	}
}

// CreateContext загружает run и его иерархию и возвращает готовый контекст.
func (f *Factory) CreateContext(ctx context.Context, runID uuid.UUID) (*Context, error) {
	run, err := f.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	hierarchy, err := f.hierarchies.GetHierarchy(ctx, run.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("load hierarchy for run %s: %w", runID, err)
	}

	return &Context{
		run:         run,
		hierarchy:   hierarchy,
		secrets:     f.secrets,
		configs:     f.configs,
		workDir:     f.workDir,
		logger:      f.logger.With("run_id", runID.String()),
		secretCache: make(map[string]string),
		fileCache:   make(map[downloadKey]string),
	}, nil
}
