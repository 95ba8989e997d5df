package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/shaiso/Conveyor/internal/envconf"
)

// Factory создаёт транспорты endpoint-ов по конфигурации из окружения.
//
// Параметры читаются из CONVEYOR_TRANSPORT_<ENDPOINT>_<KEY> с откатом на
// общий CONVEYOR_TRANSPORT_<KEY>:
//
//	TYPE      rabbitmq | memory (по умолчанию rabbitmq)
//	URI       адрес брокера
//	QUEUE     имя очереди (по умолчанию conveyor.<endpoint>)
//	USERNAME  логин брокера (подставляется в URI, если задан)
//	PASSWORD  пароль брокера
//	TOKEN     токен аутентификации конвертов этого endpoint
//
// Замена TYPE меняет технологию брокера без изменения кода. Соединения
// RabbitMQ кэшируются по URI и разделяются между endpoint-ами; фабрика
// владеет ими и закрывает их в Close.
type Factory struct {
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[string]*Connection
	broker *Broker
}

// NewFactory создаёт фабрику транспортов.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{
		logger: logger,
		conns:  make(map[string]*Connection),
	}
}

// endpointConfig — параметры транспорта одного endpoint.
type endpointConfig struct {
	Type     string
	URI      string
	Queue    string
	Username string
	Password string
	Token    string
}

// configFor читает конфигурацию endpoint из окружения.
func configFor(endpoint Endpoint) endpointConfig {
	read := func(key, fallback string) string {
		scoped := "CONVEYOR_TRANSPORT_" + strings.ToUpper(string(endpoint)) + "_" + key
		if v := envconf.String(scoped, ""); v != "" {
			return v
		}
		return envconf.String("CONVEYOR_TRANSPORT_"+key, fallback)
	}

	return endpointConfig{
		Type:     read("TYPE", "rabbitmq"),
		URI:      read("URI", DefaultURL()),
		Queue:    read("QUEUE", ""),
		Username: read("USERNAME", ""),
		Password: read("PASSWORD", ""),
		Token:    read("TOKEN", ""),
	}
}

// ForEndpoint создаёт транспорт указанного endpoint.
func (f *Factory) ForEndpoint(ctx context.Context, endpoint Endpoint) (Transport, error) {
	cfg := configFor(endpoint)

	switch cfg.Type {
	case "rabbitmq":
		uri, err := brokerURI(cfg)
		if err != nil {
			return nil, err
		}
		conn, err := f.connection(ctx, uri)
		if err != nil {
			return nil, err
		}
		return NewRabbitTransport(conn, endpoint, cfg.Queue, f.logger)

	case "memory":
		return f.memoryBroker().Transport(endpoint, f.logger), nil

	default:
		return nil, fmt.Errorf("endpoint %s: %w: %q", endpoint, ErrUnknownType, cfg.Type)
	}
}

// Token возвращает токен аутентификации конвертов endpoint.
// Пустая строка означает, что аутентификация не настроена.
func (f *Factory) Token(endpoint Endpoint) string {
	return configFor(endpoint).Token
}

// connection возвращает соединение с брокером, создавая его при первом
// обращении к URI.
func (f *Factory) connection(ctx context.Context, uri string) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if conn, ok := f.conns[uri]; ok {
		return conn, nil
	}

	conn, err := NewConnection(ctx, uri, f.logger)
	if err != nil {
		return nil, err
	}
	f.conns[uri] = conn
	return conn, nil
}

// memoryBroker возвращает общий брокер в памяти, создавая его лениво.
// Все memory-endpoint-ы процесса разделяют один брокер, иначе сообщения
// не дойдут от отправителя к получателю.
func (f *Factory) memoryBroker() *Broker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broker == nil {
		f.broker = NewBroker()
	}
	return f.broker
}

// Close закрывает все соединения фабрики.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for uri, conn := range f.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.conns, uri)
	}
	return firstErr
}

// brokerURI собирает итоговый URI брокера: отдельно заданные логин и
// пароль подставляются в адрес.
func brokerURI(cfg endpointConfig) (string, error) {
	if cfg.Username == "" && cfg.Password == "" {
		return cfg.URI, nil
	}

	u, err := url.Parse(cfg.URI)
	if err != nil {
		return "", fmt.Errorf("parse broker uri: %w", err)
	}
	u.User = url.UserPassword(cfg.Username, cfg.Password)
	return u.String(), nil
}
