package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/reportstore"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Reporter — обработчик этапа reporter: генерирует отчёты запрошенных
// форматов, рендерит пользовательские шаблоны и сохраняет результат в
// хранилище отчётов.
type Reporter struct {
	formats map[string]ReportFormat
	store   reportstore.Writer
	logger  *slog.Logger
}

// ReporterConfig — зависимости обработчика reporter.
type ReporterConfig struct {
	// Formats — таблица генераторов отчётов. Nil — BuiltinFormats().
	Formats []ReportFormat

	// Store — хранилище готовых отчётов. Nil — reportstore.NopWriter.
	Store reportstore.Writer

	Logger *slog.Logger
}

// NewReporter создаёт обработчик этапа reporter.
func NewReporter(cfg ReporterConfig) *Reporter {
	formats := cfg.Formats
	if formats == nil {
		formats = BuiltinFormats()
	}
	store := cfg.Store
	if store == nil {
		store = reportstore.NopWriter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	table := make(map[string]ReportFormat, len(formats))
	for _, format := range formats {
		table[format.Name()] = format
	}
	return &Reporter{formats: table, store: store, logger: cfg.Logger}
}

func (r *Reporter) Stage() domain.Stage { return domain.StageReporter }

// Execute пишет отчёты во временный каталог и передаёт готовые файлы в
// хранилище. Неизвестный формат не прерывает этап: он фиксируется
// замечанием, остальные отчёты генерируются.
func (r *Reporter) Execute(ctx context.Context, wc runctx.WorkerContext) (*worker.Result, error) {
	run := wc.Run()
	jobCfg := configsFor(run).Reporter
	if jobCfg == nil {
		return nil, fmt.Errorf("%w: reporter", ErrNotRequested)
	}

	outDir, err := wc.CreateTempDir()
	if err != nil {
		return nil, err
	}

	req := ReportRequest{Run: run, Hierarchy: wc.Hierarchy()}

	formats := jobCfg.Formats
	if len(formats) == 0 {
		formats = []string{FormatJSON}
	}

	var (
		files  []string
		issues []domain.Issue
	)
	for _, name := range formats {
		format, ok := r.formats[name]
		if !ok {
			issues = append(issues, domain.NewIssue("reporter",
				fmt.Sprintf("unknown report format %q", name), domain.SeverityError))
			continue
		}
		path, err := format.Generate(ctx, req, outDir)
		if err != nil {
			return nil, fmt.Errorf("generate %s report: %w", name, err)
		}
		files = append(files, path)
	}

	templates, err := r.downloadTemplates(ctx, wc, jobCfg)
	if err != nil {
		return nil, err
	}
	for _, local := range templates {
		path, err := renderTemplate(req, local, outDir)
		if err != nil {
			return nil, err
		}
		files = append(files, path)
	}

	locations, err := r.persist(ctx, run.ID, files)
	if err != nil {
		return nil, err
	}

	r.logger.Info("reports stored", "run_id", run.ID.String(), "reports", len(locations))
	return &worker.Result{Issues: issues, Reports: locations}, nil
}

// downloadTemplates скачивает пользовательские шаблоны: перечисленные
// файлы и, отдельно, целиком каталог шаблонов. Пути сортируются, чтобы
// порядок отчётов был детерминированным.
func (r *Reporter) downloadTemplates(ctx context.Context, wc runctx.WorkerContext, cfg *domain.ReporterJobConfig) ([]string, error) {
	if len(cfg.CustomTemplates) == 0 && cfg.TemplateDir == "" {
		return nil, nil
	}

	dir, err := wc.CreateTempDir()
	if err != nil {
		return nil, err
	}

	var locals []string
	if len(cfg.CustomTemplates) > 0 {
		files, err := wc.DownloadConfigurationFiles(ctx, cfg.CustomTemplates, dir)
		if err != nil {
			return nil, err
		}
		for _, local := range files {
			locals = append(locals, local)
		}
	}
	if cfg.TemplateDir != "" {
		files, err := wc.DownloadConfigurationDirectory(ctx, cfg.TemplateDir, dir)
		if err != nil {
			return nil, err
		}
		for _, local := range files {
			locals = append(locals, local)
		}
	}

	sort.Strings(locals)
	return locals, nil
}

// persist сохраняет готовые файлы через Writer и возвращает их адреса.
func (r *Reporter) persist(ctx context.Context, runID uuid.UUID, files []string) ([]string, error) {
	var locations []string
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		location, err := r.store.Store(ctx, runID, filepath.Base(path), f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("store report %s: %w", filepath.Base(path), err)
		}
		locations = append(locations, location)
	}
	return locations, nil
}
