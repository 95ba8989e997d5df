package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType — тип сообщения. Различает варианты payload внутри конверта:
// ровно один вариант на пару (этап, request|result) плюс команды оркестратора.
type MessageType string

// Header — заголовок конверта: токен транспортной аутентификации и
// сквозной идентификатор трассировки. Получатель результата обязан
// вернуть оба поля без изменений.
type Header struct {
	// Token — непрозрачный токен отправителя. Проверяется получателем,
	// содержимое транспорту безразлично.
	Token string `json:"token"`

	// TraceID — идентификатор трассировки run, которому принадлежит
	// сообщение.
	TraceID string `json:"traceId"`
}

// Envelope — конверт сообщения: заголовок плюс типизированный payload.
type Envelope struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Header — заголовок аутентификации и трассировки.
	Header Header `json:"header"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка. После прохождения через транспорт
	// это map[string]any; типизированный доступ — через ParsePayload.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope создаёт конверт с новым ID и текущим временем.
func NewEnvelope(msgType MessageType, header Header, payload any) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		Header:    header,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// ParsePayload парсит payload конверта в указанный тип.
func ParsePayload[T any](envelope *Envelope) (T, error) {
	var result T

	// Payload может быть уже распарсен как map или быть исходной структурой
	payloadBytes, err := json.Marshal(envelope.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}
