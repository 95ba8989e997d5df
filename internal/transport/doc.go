// Package transport предоставляет обмен сообщениями между оркестратором
// и воркерами поверх сменяемой технологии очередей.
//
// Структура:
//   - envelope.go   — конверт сообщения (заголовок + типизированный payload)
//   - transport.go  — интерфейс Transport и логические endpoint
//   - connection.go — соединение с RabbitMQ (retry на dial, reconnect)
//   - rabbitmq.go   — реализация поверх RabbitMQ (durable очереди, DLQ)
//   - memory.go     — реализация в памяти для тестов и локального режима
//   - factory.go    — выбор реализации по переменным окружения
//
// Endpoint — логическое имя адресата: orchestrator плюс по одному на
// каждый этап конвейера. Каждый endpoint обслуживается одной очередью
// с конкурирующими потребителями; доставка at-least-once, обработчики
// обязаны быть идемпотентными.
package transport
