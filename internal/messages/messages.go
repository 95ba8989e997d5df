// Package messages описывает типизированные payload сообщений конвейера:
// команду создания run и пары запрос/результат каждого этапа. Ровно один
// вариант payload на тип сообщения.
package messages

import (
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/transport"
)

// TypeCreateRun — команда оркестратору начать выполнение созданного run.
const TypeCreateRun transport.MessageType = "orchestrator.create-run"

// Kind — разновидность сообщения этапа.
type Kind string

// Разновидности сообщений этапа.
const (
	KindRequest Kind = "request"
	KindResult  Kind = "result"
)

// RequestType возвращает тип сообщения-запроса этапа: "<stage>.request".
func RequestType(stage domain.Stage) transport.MessageType {
	return transport.MessageType(string(stage) + ".request")
}

// ResultType возвращает тип сообщения-результата этапа: "<stage>.result".
func ResultType(stage domain.Stage) transport.MessageType {
	return transport.MessageType(string(stage) + ".result")
}

// StageForType разбирает тип сообщения этапа обратно в (этап, разновидность).
// Для типов, не принадлежащих этапам (например, TypeCreateRun), ok=false.
func StageForType(msgType transport.MessageType) (domain.Stage, Kind, bool) {
	if name, found := strings.CutSuffix(string(msgType), ".request"); found {
		if stage, err := domain.ParseStage(name); err == nil {
			return stage, KindRequest, true
		}
	}
	if name, found := strings.CutSuffix(string(msgType), ".result"); found {
		if stage, err := domain.ParseStage(name); err == nil {
			return stage, KindResult, true
		}
	}
	return "", "", false
}

// StageEndpoint возвращает endpoint очереди этапа.
func StageEndpoint(stage domain.Stage) transport.Endpoint {
	return transport.Endpoint(string(stage))
}

// CreateRunPayload — payload команды создания run.
type CreateRunPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// JobRequestPayload — payload запроса этапа. Воркеру достаточно
// идентификатора run: всё остальное он получает из хранилищ.
type JobRequestPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// Failure — диагностика неуспешного этапа. Человекочитаемое сообщение,
// без стектрейсов.
type Failure struct {
	Message string `json:"message"`
}

// JobResultPayload — payload результата этапа.
//
// Failure == nil означает успех. Поля-дельты заполняются этапами,
// которым есть что вернуть: ResolvedJobConfigs — анализом, Reports —
// генерацией отчётов.
type JobResultPayload struct {
	// RunID — идентификатор run, к которому относится результат.
	RunID uuid.UUID `json:"run_id"`

	// Failure — диагностика, если этап не удался.
	Failure *Failure `json:"failure,omitempty"`

	// Issues — замечания, накопленные этапом.
	Issues []domain.Issue `json:"issues,omitempty"`

	// ResolvedJobConfigs — проверенные конфигурации этапов (дельта анализа).
	ResolvedJobConfigs *domain.JobConfigs `json:"resolved_job_configs,omitempty"`

	// Reports — имена сохранённых отчётов (дельта этапа reporter).
	Reports []string `json:"reports,omitempty"`
}

// Succeeded возвращает true, если этап завершился успешно.
func (p *JobResultPayload) Succeeded() bool {
	return p.Failure == nil
}

// NewCreateRun создаёт конверт команды создания run.
func NewCreateRun(header transport.Header, runID uuid.UUID) *transport.Envelope {
	return transport.NewEnvelope(TypeCreateRun, header, CreateRunPayload{RunID: runID})
}

// NewJobRequest создаёт конверт запроса этапа.
func NewJobRequest(stage domain.Stage, header transport.Header, runID uuid.UUID) *transport.Envelope {
	return transport.NewEnvelope(RequestType(stage), header, JobRequestPayload{RunID: runID})
}

// NewJobResult создаёт конверт результата этапа.
func NewJobResult(stage domain.Stage, header transport.Header, payload JobResultPayload) *transport.Envelope {
	return transport.NewEnvelope(ResultType(stage), header, payload)
}

// NewJobFailure создаёт конверт результата-неудачи с диагностикой.
func NewJobFailure(stage domain.Stage, header transport.Header, runID uuid.UUID, message string) *transport.Envelope {
	return NewJobResult(stage, header, JobResultPayload{
		RunID:   runID,
		Failure: &Failure{Message: message},
	})
}
