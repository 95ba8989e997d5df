// Package configfile — доступ к репозиторию конфигурационных файлов.
//
// Воркеры читают отсюда файлы настройки этапов: .ort.env.yml, правила
// evaluator, шаблоны отчётов. Контекст конфигурации (Run.ConfigContext)
// выбирает поддерево хранилища — обычно это ветка или тег репозитория
// конфигурации. Пустой контекст означает корень хранилища.
package configfile

import (
	"context"
	"errors"
	"io"

	"github.com/shaiso/Conveyor/internal/envconf"
)

// Ошибки провайдера конфигурационных файлов.
var (
	// ErrNotFound — файл отсутствует в хранилище.
	ErrNotFound = errors.New("configuration file not found")

	// ErrUnknownBackend — неизвестный тип хранилища в конфигурации.
	ErrUnknownBackend = errors.New("unknown configuration file backend")
)

// Provider — источник конфигурационных файлов для воркеров.
type Provider interface {
	// GetFile открывает файл path в контексте configContext.
	// Вызывающий обязан закрыть полученный reader.
	GetFile(ctx context.Context, configContext, path string) (io.ReadCloser, error)

	// ListFiles возвращает пути всех файлов под каталогом dir
	// (относительно корня контекста). Пустой результат — не ошибка.
	ListFiles(ctx context.Context, configContext, dir string) ([]string, error)

	// Contains сообщает, существует ли файл, не открывая его.
	Contains(ctx context.Context, configContext, path string) (bool, error)
}

// NewProviderFromEnv выбирает реализацию по переменным окружения.
//
//	CONVEYOR_CONFIGFILES_BACKEND     fs | minio | memory (по умолчанию fs)
//	CONVEYOR_CONFIGFILES_DIR         корень файлового хранилища
//	CONVEYOR_CONFIGFILES_ENDPOINT    адрес minio
//	CONVEYOR_CONFIGFILES_BUCKET      bucket minio
//	CONVEYOR_CONFIGFILES_ACCESS_KEY  ключ доступа minio
//	CONVEYOR_CONFIGFILES_SECRET_KEY  секретный ключ minio
//	CONVEYOR_CONFIGFILES_USE_SSL     использовать TLS для minio
func NewProviderFromEnv() (Provider, error) {
	backend := envconf.String("CONVEYOR_CONFIGFILES_BACKEND", "fs")
	switch backend {
	case "fs":
		dir := envconf.String("CONVEYOR_CONFIGFILES_DIR", "./config-files")
		return NewFSProvider(dir), nil
	case "minio":
		useSSL, err := envconf.Bool("CONVEYOR_CONFIGFILES_USE_SSL", false)
		if err != nil {
			return nil, err
		}
		return NewMinioProvider(MinioConfig{
			Endpoint:  envconf.String("CONVEYOR_CONFIGFILES_ENDPOINT", "localhost:9000"),
			Bucket:    envconf.String("CONVEYOR_CONFIGFILES_BUCKET", "conveyor-config"),
			AccessKey: envconf.String("CONVEYOR_CONFIGFILES_ACCESS_KEY", ""),
			SecretKey: envconf.String("CONVEYOR_CONFIGFILES_SECRET_KEY", ""),
			UseSSL:    useSSL,
		})
	case "memory":
		return NewMemoryProvider(nil), nil
	default:
		return nil, ErrUnknownBackend
	}
}

// objectKey собирает ключ файла внутри хранилища: контекст конфигурации
// становится префиксом пути.
func objectKey(configContext, path string) string {
	if configContext == "" {
		return path
	}
	return configContext + "/" + path
}
