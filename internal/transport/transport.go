package transport

import (
	"context"
	"errors"
)

// Ошибки транспорта.
var (
	// ErrUnknownType — неизвестный тип транспорта в конфигурации.
	ErrUnknownType = errors.New("unknown transport type")

	// ErrQueueFull — очередь endpoint переполнена (только транспорт в памяти).
	ErrQueueFull = errors.New("endpoint queue full")
)

// Endpoint — логическое имя адресата сообщений.
//
// Система использует endpoint "orchestrator" плюс по одному на этап
// конвейера (analyzer, advisor, scanner, evaluator, reporter, notifier).
type Endpoint string

// EndpointOrchestrator — endpoint оркестратора: принимает команды создания
// run и результаты этапов.
const EndpointOrchestrator Endpoint = "orchestrator"

// QueueName возвращает имя очереди endpoint по умолчанию.
func (e Endpoint) QueueName() string {
	return "conveyor." + string(e)
}

// Handler — функция обработки входящего конверта.
// Nil означает успешную обработку (ack), ошибка — повторную доставку.
type Handler func(ctx context.Context, envelope *Envelope) error

// Transport — канал обмена сообщениями с одним endpoint.
//
// Send адресует сообщение endpoint-у, Subscribe потребляет его очередь.
// Доставка at-least-once: обработчик может получить одно сообщение
// несколько раз и обязан быть идемпотентным.
type Transport interface {
	// Send публикует конверт в очередь endpoint.
	Send(ctx context.Context, envelope *Envelope) error

	// Subscribe блокирующе потребляет очередь endpoint, передавая каждый
	// конверт обработчику. Возвращается при отмене контекста. Несколько
	// подписчиков одной очереди конкурируют за сообщения.
	Subscribe(ctx context.Context, handler Handler) error

	// Close освобождает ресурсы, принадлежащие транспорту.
	Close() error
}
