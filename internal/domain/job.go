package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job — задание одного этапа в рамках run.
//
// Оркестратор создаёт job при отправке запроса воркеру и закрывает его
// при получении результата. По job оркестратор отличает первый результат
// этапа от дубликатов повторной доставки.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на run, к которому относится задание.
	RunID uuid.UUID `json:"run_id"`

	// Stage — этап конвейера, который выполняет задание.
	Stage Stage `json:"stage"`

	// Status — текущий статус задания.
	Status JobStatus `json:"status"`

	// TraceID — идентификатор трассировки, с которым отправлен запрос.
	TraceID string `json:"trace_id,omitempty"`

	// Error — текст ошибки, если задание завершилось с FAILED.
	Error string `json:"error,omitempty"`

	// FinishedAt — время получения результата. Nil, пока задание открыто.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время отправки запроса.
	CreatedAt time.Time `json:"created_at"`
}

// MarkFinished переводит job в статус FINISHED.
func (j *Job) MarkFinished() {
	now := time.Now()
	j.Status = JobStatusFinished
	j.FinishedAt = &now
}

// MarkFailed переводит job в статус FAILED с ошибкой.
func (j *Job) MarkFailed(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.FinishedAt = &now
	j.Error = err
}
