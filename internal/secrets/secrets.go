// Package secrets — доступ к внешнему хранилищу значений секретов.
//
// Доменная модель хранит только объявления секретов (domain.Secret) со
// ссылкой Path. Значения живут во внешнем хранилище и разрешаются через
// Provider в момент выполнения. Значение секрета никогда не пишется в
// базу, в журнал и не передаётся по транспорту.
package secrets

import (
	"context"
	"errors"

	"github.com/shaiso/Conveyor/internal/envconf"
)

// Ошибки хранилища секретов.
var (
	// ErrValueNotFound — по указанному пути значение не найдено.
	ErrValueNotFound = errors.New("secret value not found")

	// ErrUnknownBackend — неизвестный тип хранилища в конфигурации.
	ErrUnknownBackend = errors.New("unknown secrets backend")
)

// Provider — источник значений секретов по пути объявления.
type Provider interface {
	// Resolve возвращает значение секрета по его пути.
	// Если значения нет, возвращает ErrValueNotFound.
	Resolve(ctx context.Context, path string) (string, error)
}

// WritableProvider — хранилище, поддерживающее запись значений.
// Используется административным CLI при создании секретов.
type WritableProvider interface {
	Provider

	// Store записывает значение секрета по пути, перезаписывая существующее.
	Store(ctx context.Context, path, value string) error

	// Delete удаляет значение секрета. Отсутствие значения не является ошибкой.
	Delete(ctx context.Context, path string) error
}

// NewProviderFromEnv выбирает реализацию по переменным окружения.
//
//	CONVEYOR_SECRETS_BACKEND  file | memory (по умолчанию file)
//	CONVEYOR_SECRETS_DIR      каталог файлового хранилища
func NewProviderFromEnv() (WritableProvider, error) {
	backend := envconf.String("CONVEYOR_SECRETS_BACKEND", "file")
	switch backend {
	case "file":
		dir := envconf.String("CONVEYOR_SECRETS_DIR", "./secrets")
		return NewFileProvider(dir)
	case "memory":
		return NewMemoryProvider(), nil
	default:
		return nil, ErrUnknownBackend
	}
}
