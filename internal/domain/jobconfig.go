package domain

// PluginConfig — настройки одного плагина этапа.
//
// Options передаются плагину как есть. Secrets содержат ссылки на
// секреты (пути в хранилище секретов); воркер подставляет значения
// непосредственно перед вызовом плагина, в данных run значения секретов
// не появляются никогда.
type PluginConfig struct {
	Options map[string]string `json:"options,omitempty"`
	Secrets map[string]string `json:"secrets,omitempty"`
}

// AnalyzerJobConfig — конфигурация этапа analyzer.
type AnalyzerJobConfig struct {
	// AllowDynamicVersions — разрешить нестрогие версии зависимостей.
	AllowDynamicVersions bool `json:"allow_dynamic_versions,omitempty"`

	// EnabledPackageManagers — ограничение списка пакетных менеджеров.
	// Пустой список означает «все поддерживаемые».
	EnabledPackageManagers []string `json:"enabled_package_managers,omitempty"`

	// EnvironmentConfigPath — путь к файлу конфигурации окружения в
	// анализируемом репозитории. Пустая строка — путь по умолчанию.
	EnvironmentConfigPath string `json:"environment_config_path,omitempty"`

	PluginConfigs map[string]PluginConfig `json:"plugin_configs,omitempty"`
}

// AdvisorJobConfig — конфигурация этапа advisor.
type AdvisorJobConfig struct {
	// Advisors — список провайдеров данных об уязвимостях.
	Advisors []string `json:"advisors,omitempty"`

	PluginConfigs map[string]PluginConfig `json:"plugin_configs,omitempty"`
}

// ScannerJobConfig — конфигурация этапа scanner.
type ScannerJobConfig struct {
	// SkipExcluded — не сканировать исключённые из анализа пакеты.
	SkipExcluded bool `json:"skip_excluded,omitempty"`

	PluginConfigs map[string]PluginConfig `json:"plugin_configs,omitempty"`
}

// EvaluatorJobConfig — конфигурация этапа evaluator.
type EvaluatorJobConfig struct {
	// RuleSet — путь к файлу правил в репозитории конфигурации.
	RuleSet string `json:"rule_set,omitempty"`

	PluginConfigs map[string]PluginConfig `json:"plugin_configs,omitempty"`
}

// ReporterJobConfig — конфигурация этапа reporter.
type ReporterJobConfig struct {
	// Formats — форматы отчётов, которые нужно сгенерировать.
	Formats []string `json:"formats,omitempty"`

	// CustomTemplates — пути к файлам шаблонов в репозитории конфигурации.
	CustomTemplates []string `json:"custom_templates,omitempty"`

	// TemplateDir — каталог шаблонов в репозитории конфигурации,
	// скачивается целиком.
	TemplateDir string `json:"template_dir,omitempty"`

	PluginConfigs map[string]PluginConfig `json:"plugin_configs,omitempty"`
}

// NotifierJobConfig — конфигурация этапа notifier.
type NotifierJobConfig struct {
	// Recipients — адресаты уведомлений.
	Recipients []string `json:"recipients,omitempty"`

	PluginConfigs map[string]PluginConfig `json:"plugin_configs,omitempty"`
}

// JobConfigs — заявленные конфигурации этапов run.
//
// Nil-поле означает, что этап не запрошен и выполняться не будет.
type JobConfigs struct {
	Analyzer  *AnalyzerJobConfig  `json:"analyzer,omitempty"`
	Advisor   *AdvisorJobConfig   `json:"advisor,omitempty"`
	Scanner   *ScannerJobConfig   `json:"scanner,omitempty"`
	Evaluator *EvaluatorJobConfig `json:"evaluator,omitempty"`
	Reporter  *ReporterJobConfig  `json:"reporter,omitempty"`
	Notifier  *NotifierJobConfig  `json:"notifier,omitempty"`
}

// Has возвращает true, если этап запрошен в этом run.
func (c JobConfigs) Has(stage Stage) bool {
	switch stage {
	case StageAnalyzer:
		return c.Analyzer != nil
	case StageAdvisor:
		return c.Advisor != nil
	case StageScanner:
		return c.Scanner != nil
	case StageEvaluator:
		return c.Evaluator != nil
	case StageReporter:
		return c.Reporter != nil
	case StageNotifier:
		return c.Notifier != nil
	default:
		return false
	}
}

// Stages возвращает запрошенные этапы в порядке выполнения.
func (c JobConfigs) Stages() []Stage {
	var stages []Stage
	for _, stage := range StageOrder {
		if c.Has(stage) {
			stages = append(stages, stage)
		}
	}
	return stages
}

// FirstStage возвращает первый запрошенный этап конвейера.
// Второе значение false, если не запрошен ни один этап.
func (c JobConfigs) FirstStage() (Stage, bool) {
	for _, stage := range StageOrder {
		if c.Has(stage) {
			return stage, true
		}
	}
	return "", false
}

// NextStage возвращает следующий запрошенный этап после указанного.
// Второе значение false, если указанный этап был последним.
func (c JobConfigs) NextStage(after Stage) (Stage, bool) {
	seen := false
	for _, stage := range StageOrder {
		if seen && c.Has(stage) {
			return stage, true
		}
		if stage == after {
			seen = true
		}
	}
	return "", false
}
