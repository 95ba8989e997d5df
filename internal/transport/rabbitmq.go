package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Имена обменников. Один рабочий direct-обменник на всю систему:
// routing key совпадает с именем endpoint.
const (
	exchangeWork = "conveyor.work"
	exchangeDLQ  = "conveyor.dlq"
)

// RabbitTransport — транспорт одного endpoint поверх RabbitMQ.
//
// Очередь durable, сообщения persistent, подтверждение ручное. Сообщения,
// которые не удалось разобрать, уходят в DLQ; ошибка обработчика
// возвращает сообщение в очередь для повторной доставки.
type RabbitTransport struct {
	endpoint Endpoint
	queue    string
	conn     *Connection
	logger   *slog.Logger
	prefetch int
}

// NewRabbitTransport создаёт транспорт endpoint и объявляет его топологию.
func NewRabbitTransport(conn *Connection, endpoint Endpoint, queue string, logger *slog.Logger) (*RabbitTransport, error) {
	if queue == "" {
		queue = endpoint.QueueName()
	}

	t := &RabbitTransport{
		endpoint: endpoint,
		queue:    queue,
		conn:     conn,
		logger:   logger.With("endpoint", string(endpoint)),
		prefetch: 1,
	}

	if err := t.setupTopology(); err != nil {
		return nil, fmt.Errorf("setup topology for %s: %w", endpoint, err)
	}

	return t, nil
}

// setupTopology объявляет обменники, очередь endpoint и её DLQ.
func (t *RabbitTransport) setupTopology() error {
	return t.conn.WithChannel(func(ch *amqp.Channel) error {
		for _, exchange := range []string{exchangeWork, exchangeDLQ} {
			err := ch.ExchangeDeclare(
				exchange, // name
				"direct", // type
				true,     // durable
				false,    // auto-deleted
				false,    // internal
				false,    // no-wait
				nil,      // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", exchange, err)
			}
		}

		// Основная очередь endpoint: разобранные, но не обработанные
		// сообщения возвращаются сюда; мусор уходит в DLQ.
		dlqArgs := amqp.Table{
			"x-dead-letter-exchange":    exchangeDLQ,
			"x-dead-letter-routing-key": string(t.endpoint),
		}
		if _, err := ch.QueueDeclare(t.queue, true, false, false, false, dlqArgs); err != nil {
			return fmt.Errorf("declare queue %s: %w", t.queue, err)
		}
		if err := ch.QueueBind(t.queue, string(t.endpoint), exchangeWork, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", t.queue, err)
		}

		dlq := t.queue + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, string(t.endpoint), exchangeDLQ, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", dlq, err)
		}

		return nil
	})
}

// Send публикует конверт в очередь endpoint.
func (t *RabbitTransport) Send(ctx context.Context, envelope *Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	err = t.conn.WithChannel(func(ch *amqp.Channel) error {
		return ch.PublishWithContext(
			ctx,
			exchangeWork,       // exchange
			string(t.endpoint), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт брокера
				MessageId:    envelope.ID,
				Timestamp:    envelope.Timestamp,
				Body:         body,
			},
		)
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", t.endpoint, err)
	}

	telemetry.MessagesPublished.WithLabelValues(string(t.endpoint)).Inc()
	t.logger.Debug("published message",
		"message_id", envelope.ID,
		"type", envelope.Type,
	)

	return nil
}

// Subscribe потребляет очередь endpoint до отмены контекста.
func (t *RabbitTransport) Subscribe(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := t.setupConsume()
		if err != nil {
			t.logger.Error("failed to setup consume", "queue", t.queue, "error", err)
			// Ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.conn.ReconnectNotify():
				t.logger.Info("reconnected, restarting consumer", "queue", t.queue)
				continue
			}
		}

		t.logger.Info("consumer started", "queue", t.queue)

		if err := t.processDeliveries(ctx, deliveries, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("deliveries channel closed, reconnecting", "queue", t.queue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (t *RabbitTransport) setupConsume() (<-chan amqp.Delivery, error) {
	ch := t.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	if err := ch.Qos(t.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		t.queue, // queue
		"",      // consumer tag (auto-generated)
		false,   // auto-ack (мы ack вручную)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// processDeliveries обрабатывает сообщения из канала доставки.
func (t *RabbitTransport) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			t.handleDelivery(ctx, raw, handler)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (t *RabbitTransport) handleDelivery(ctx context.Context, raw amqp.Delivery, handler Handler) {
	var envelope Envelope
	if err := json.Unmarshal(raw.Body, &envelope); err != nil {
		t.logger.Error("failed to unmarshal envelope",
			"queue", t.queue,
			"error", err,
			"body", string(raw.Body),
		)
		// Некорректное сообщение — отправляем в DLQ
		raw.Nack(false, false)
		telemetry.MessagesReceived.WithLabelValues(string(t.endpoint), "malformed").Inc()
		return
	}

	t.logger.Debug("received message",
		"queue", t.queue,
		"message_id", envelope.ID,
		"type", envelope.Type,
	)

	if err := handler(ctx, &envelope); err != nil {
		t.logger.Error("handler failed",
			"queue", t.queue,
			"message_id", envelope.ID,
			"type", envelope.Type,
			"error", err,
		)
		// Ошибка обработки — возвращаем в очередь для повторной доставки
		raw.Nack(false, true)
		telemetry.MessagesReceived.WithLabelValues(string(t.endpoint), "requeued").Inc()
		return
	}

	raw.Ack(false)
	telemetry.MessagesReceived.WithLabelValues(string(t.endpoint), "ok").Inc()
}

// Close ничего не закрывает: соединение разделяется между транспортами
// и принадлежит фабрике.
func (t *RabbitTransport) Close() error {
	return nil
}
