package domain

import "time"

// Severity — уровень замечания.
type Severity string

const (
	// SeverityHint — информационное замечание, не влияет на итог run.
	SeverityHint Severity = "HINT"

	// SeverityWarning — предупреждение: run завершится как
	// FINISHED_WITH_ISSUES.
	SeverityWarning Severity = "WARNING"

	// SeverityError — ошибка, зафиксированная этапом без прерывания run.
	SeverityError Severity = "ERROR"
)

// Issue — замечание, зафиксированное этапом во время выполнения run.
//
// Замечания не прерывают конвейер: они накапливаются на run и влияют
// только на выбор финального статуса (FINISHED или FINISHED_WITH_ISSUES).
type Issue struct {
	// Timestamp — время возникновения замечания.
	Timestamp time.Time `json:"timestamp"`

	// Source — источник: имя плагина, правила или компонента этапа.
	Source string `json:"source"`

	// Message — человекочитаемое описание.
	Message string `json:"message"`

	// Severity — уровень замечания.
	Severity Severity `json:"severity"`

	// Worker — этап, зафиксировавший замечание.
	Worker Stage `json:"worker,omitempty"`
}

// NewIssue создаёт замечание с текущим временем.
func NewIssue(source, message string, severity Severity) Issue {
	return Issue{
		Timestamp: time.Now(),
		Source:    source,
		Message:   message,
		Severity:  severity,
	}
}
