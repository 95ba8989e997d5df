package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	CREATED → ACTIVE → FINISHED
//	                 ↘ FINISHED_WITH_ISSUES
//	                 ↘ FAILED
//	         (или) → CANCELLED (из CREATED или ACTIVE)
type RunStatus string

const (
	// RunStatusCreated — run создан, но оркестратор ещё не начал его выполнять.
	RunStatusCreated RunStatus = "CREATED"

	// RunStatusActive — run в процессе выполнения: хотя бы один этап отправлен.
	RunStatusActive RunStatus = "ACTIVE"

	// RunStatusFinished — все запрошенные этапы завершились без замечаний.
	RunStatusFinished RunStatus = "FINISHED"

	// RunStatusFinishedWithIssues — все этапы завершились, но воркеры
	// зафиксировали замечания уровня warning или выше.
	RunStatusFinishedWithIssues RunStatus = "FINISHED_WITH_ISSUES"

	// RunStatusFailed — какой-то этап завершился с ошибкой.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён пользователем.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusFinished, RunStatusFinishedWithIssues, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStatus — статус задания этапа.
//
// Жизненный цикл:
//
//	SCHEDULED → FINISHED
//	          ↘ FAILED
//
// Задание создаётся оркестратором при отправке запроса воркеру и
// закрывается при получении результата. Повторная доставка сообщений
// брокером статус не меняет: обработчики идемпотентны.
type JobStatus string

const (
	// JobStatusScheduled — запрос этапа отправлен, результат ещё не получен.
	JobStatusScheduled JobStatus = "SCHEDULED"

	// JobStatusFinished — этап завершился успешно.
	JobStatusFinished JobStatus = "FINISHED"

	// JobStatusFailed — этап завершился с ошибкой.
	JobStatusFailed JobStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusFinished, JobStatusFailed:
		return true
	default:
		return false
	}
}
