package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — прогон анализа одной ревизии репозитория.
//
// Run создаётся когда:
// - Пользователь запускает анализ вручную (через CLI)
// - Внешний триггер (webhook, расписание) публикует запрос на запуск
//
// Каждый run запрашивает подмножество этапов конвейера и проходит их
// строго по одному в порядке StageOrder.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// RepositoryID — ссылка на анализируемый репозиторий.
	// Через него run привязан к иерархии organization → product → repository.
	RepositoryID uuid.UUID `json:"repository_id"`

	// Revision — анализируемая ревизия (ветка, тег или commit).
	Revision string `json:"revision"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// ConfigContext — контекст конфигурации: ветка или тег репозитория
	// конфигурации, из которого воркеры читают файлы для этого run.
	// Пустая строка означает контекст по умолчанию.
	ConfigContext string `json:"config_context,omitempty"`

	// JobConfigs — заявленные конфигурации этапов. Этап без конфигурации
	// не выполняется.
	JobConfigs JobConfigs `json:"job_configs"`

	// ResolvedJobConfigs — конфигурации этапов после валидации воркером
	// анализа. Nil, пока анализ не прошёл.
	ResolvedJobConfigs *JobConfigs `json:"resolved_job_configs,omitempty"`

	// Labels — произвольные метки запуска (передаются в отчёты и правила).
	Labels map[string]string `json:"labels,omitempty"`

	// Issues — замечания, накопленные этапами за время выполнения.
	Issues []Issue `json:"issues,omitempty"`

	// Reports — имена отчётов, сохранённых этапом reporter.
	Reports []string `json:"reports,omitempty"`

	// TraceID — сквозной идентификатор трассировки. Проставляется во все
	// сообщения, отправляемые по этому run.
	TraceID string `json:"trace_id,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал ACTIVE).
	// Nil, если run ещё не начался.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (в любом финальном статусе).
	// Nil, если run ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// HasBlockingIssues возвращает true, если среди замечаний есть хотя бы
// одно уровня warning или выше. Такие замечания переводят успешный run
// в FINISHED_WITH_ISSUES вместо FINISHED.
func (r *Run) HasBlockingIssues() bool {
	for _, issue := range r.Issues {
		if issue.Severity != SeverityHint {
			return true
		}
	}
	return false
}

// MarkActive переводит run в статус ACTIVE.
func (r *Run) MarkActive() {
	now := time.Now()
	r.Status = RunStatusActive
	r.StartedAt = &now
}

// MarkFinished переводит run в финальный успешный статус: FINISHED либо
// FINISHED_WITH_ISSUES, если этапы оставили блокирующие замечания.
func (r *Run) MarkFinished() {
	now := time.Now()
	if r.HasBlockingIssues() {
		r.Status = RunStatusFinishedWithIssues
	} else {
		r.Status = RunStatusFinished
	}
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}
