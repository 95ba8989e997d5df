package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

const (
	// memoryQueueCapacity — ёмкость очереди одного endpoint в памяти.
	memoryQueueCapacity = 256

	// memoryMaxDeliveries — после скольких неудачных доставок сообщение
	// отбрасывается. Аналог ухода в DLQ у RabbitMQ.
	memoryMaxDeliveries = 5
)

// Broker — брокер сообщений в памяти: очередь на endpoint, конкурирующие
// потребители, повторная доставка при ошибке обработчика. Используется
// тестами и локальным режимом без RabbitMQ.
type Broker struct {
	mu     sync.Mutex
	queues map[Endpoint]chan memoryDelivery
}

type memoryDelivery struct {
	envelope *Envelope
	attempt  int
}

// NewBroker создаёт пустой брокер.
func NewBroker() *Broker {
	return &Broker{queues: make(map[Endpoint]chan memoryDelivery)}
}

// Transport возвращает транспорт endpoint поверх этого брокера.
func (b *Broker) Transport(endpoint Endpoint, logger *slog.Logger) *MemoryTransport {
	return &MemoryTransport{
		broker:   b,
		endpoint: endpoint,
		logger:   logger.With("endpoint", string(endpoint)),
	}
}

// queue возвращает очередь endpoint, создавая её при первом обращении.
func (b *Broker) queue(endpoint Endpoint) chan memoryDelivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[endpoint]
	if !ok {
		q = make(chan memoryDelivery, memoryQueueCapacity)
		b.queues[endpoint] = q
	}
	return q
}

// MemoryTransport — транспорт одного endpoint поверх брокера в памяти.
type MemoryTransport struct {
	broker   *Broker
	endpoint Endpoint
	logger   *slog.Logger
}

// Send публикует конверт в очередь endpoint.
//
// Конверт проходит через JSON, как и на настоящем транспорте: payload
// у получателя становится map[string]any, а не исходной структурой.
func (t *MemoryTransport) Send(_ context.Context, envelope *Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	var wire Envelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	select {
	case t.broker.queue(t.endpoint) <- memoryDelivery{envelope: &wire}:
	default:
		return fmt.Errorf("send to %s: %w", t.endpoint, ErrQueueFull)
	}

	telemetry.MessagesPublished.WithLabelValues(string(t.endpoint)).Inc()
	t.logger.Debug("published message",
		"message_id", envelope.ID,
		"type", envelope.Type,
	)

	return nil
}

// Subscribe потребляет очередь endpoint до отмены контекста.
func (t *MemoryTransport) Subscribe(ctx context.Context, handler Handler) error {
	queue := t.broker.queue(t.endpoint)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case delivery := <-queue:
			t.handleDelivery(ctx, delivery, queue, handler)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (t *MemoryTransport) handleDelivery(ctx context.Context, delivery memoryDelivery, queue chan memoryDelivery, handler Handler) {
	envelope := delivery.envelope

	t.logger.Debug("received message",
		"message_id", envelope.ID,
		"type", envelope.Type,
	)

	if err := handler(ctx, envelope); err != nil {
		t.logger.Error("handler failed",
			"message_id", envelope.ID,
			"type", envelope.Type,
			"error", err,
		)

		delivery.attempt++
		if delivery.attempt >= memoryMaxDeliveries {
			t.logger.Error("message dropped after repeated failures",
				"message_id", envelope.ID,
				"type", envelope.Type,
			)
			telemetry.MessagesReceived.WithLabelValues(string(t.endpoint), "dropped").Inc()
			return
		}

		select {
		case queue <- delivery:
		default:
			t.logger.Error("queue full, message dropped", "message_id", envelope.ID)
		}
		telemetry.MessagesReceived.WithLabelValues(string(t.endpoint), "requeued").Inc()
		return
	}

	telemetry.MessagesReceived.WithLabelValues(string(t.endpoint), "ok").Inc()
}

// Close ничего не освобождает: очереди принадлежат брокеру.
func (t *MemoryTransport) Close() error {
	return nil
}

var (
	_ Transport = (*RabbitTransport)(nil)
	_ Transport = (*MemoryTransport)(nil)
)
