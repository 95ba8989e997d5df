package stages

import (
	"context"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/environment"
)

// AnalyzerRequest — вход движка разрешения зависимостей.
type AnalyzerRequest struct {
	// Run — run, для которого выполняется анализ.
	Run *domain.Run

	// Config — конфигурация этапа.
	Config domain.AnalyzerJobConfig

	// PluginConfigs — конфигурации плагинов с подставленными значениями
	// секретов.
	PluginConfigs map[string]domain.PluginConfig

	// Environment — разрешённое окружение анализа.
	Environment *environment.ResolvedEnvironment

	// EnvironmentDir — каталог с файлами окружения (.netrc,
	// .git-credentials, .env). Живёт до закрытия контекста воркера.
	EnvironmentDir string
}

// DependencyResolver — движок разрешения зависимостей. Вызывается после
// подготовки окружения; возвращает замечания о проблемах разрешения.
type DependencyResolver interface {
	ResolveDependencies(ctx context.Context, req AnalyzerRequest) ([]domain.Issue, error)
}

// AdvisorRequest — вход движка данных об уязвимостях.
type AdvisorRequest struct {
	Run    *domain.Run
	Config domain.AdvisorJobConfig

	// PluginConfigs — конфигурации провайдеров с подставленными
	// значениями секретов.
	PluginConfigs map[string]domain.PluginConfig
}

// AdvisorRunner — движок запросов к провайдерам данных об уязвимостях.
type AdvisorRunner interface {
	Advise(ctx context.Context, req AdvisorRequest) ([]domain.Issue, error)
}

// ScannerRequest — вход движка сканирования.
type ScannerRequest struct {
	Run    *domain.Run
	Config domain.ScannerJobConfig

	// PluginConfigs — конфигурации сканеров с подставленными значениями
	// секретов.
	PluginConfigs map[string]domain.PluginConfig

	// ConfigFile — локальный путь скачанного файла настроек сканера.
	// Пустая строка — файла в репозитории конфигурации нет.
	ConfigFile string

	// WorkDir — рабочий каталог этапа. Живёт до закрытия контекста.
	WorkDir string
}

// ScanRunner — движок сканирования исходников.
type ScanRunner interface {
	Scan(ctx context.Context, req ScannerRequest) ([]domain.Issue, error)
}

// NotifierRequest — вход движка доставки уведомлений.
type NotifierRequest struct {
	Run    *domain.Run
	Config domain.NotifierJobConfig

	// PluginConfigs — конфигурации рассыльщиков с подставленными
	// значениями секретов.
	PluginConfigs map[string]domain.PluginConfig
}

// NotifierRunner — движок доставки уведомлений.
type NotifierRunner interface {
	Notify(ctx context.Context, req NotifierRequest) error
}

// NopDependencyResolver — движок анализа по умолчанию: зависимостей не
// разрешает и замечаний не оставляет.
type NopDependencyResolver struct{}

func (NopDependencyResolver) ResolveDependencies(context.Context, AnalyzerRequest) ([]domain.Issue, error) {
	return nil, nil
}

// NopAdvisorRunner — движок advisor по умолчанию.
type NopAdvisorRunner struct{}

func (NopAdvisorRunner) Advise(context.Context, AdvisorRequest) ([]domain.Issue, error) {
	return nil, nil
}

// NopScanRunner — движок scanner по умолчанию.
type NopScanRunner struct{}

func (NopScanRunner) Scan(context.Context, ScannerRequest) ([]domain.Issue, error) {
	return nil, nil
}

// NopNotifierRunner — движок notifier по умолчанию.
type NopNotifierRunner struct{}

func (NopNotifierRunner) Notify(context.Context, NotifierRequest) error {
	return nil
}

var (
	_ DependencyResolver = NopDependencyResolver{}
	_ AdvisorRunner      = NopAdvisorRunner{}
	_ ScanRunner         = NopScanRunner{}
	_ NotifierRunner     = NopNotifierRunner{}
)
