// Package reportstore — хранилище сгенерированных отчётов.
//
// Этап reporter пишет отчёты во временный каталог контекста, а затем
// сохраняет их долговечно через Writer. Адрес сохранённого отчёта
// возвращается оркестратору в результате этапа.
package reportstore

import (
	"context"
	"errors"
	"io"
	"path"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/envconf"
)

// ErrUnknownBackend — CONVEYOR_REPORTS_BACKEND содержит неизвестное значение.
var ErrUnknownBackend = errors.New("unknown report store backend")

// Writer сохраняет один отчёт и возвращает его адрес: путь в файловой
// системе, ключ объекта или имя — в зависимости от реализации.
type Writer interface {
	Store(ctx context.Context, runID uuid.UUID, name string, r io.Reader) (string, error)
}

// NewWriterFromEnv выбирает реализацию по переменным окружения.
//
//	CONVEYOR_REPORTS_BACKEND     fs | minio | nop (по умолчанию fs)
//	CONVEYOR_REPORTS_DIR         корень файлового хранилища
//	CONVEYOR_REPORTS_ENDPOINT    адрес minio
//	CONVEYOR_REPORTS_BUCKET      bucket minio
//	CONVEYOR_REPORTS_ACCESS_KEY  ключ доступа minio
//	CONVEYOR_REPORTS_SECRET_KEY  секретный ключ minio
//	CONVEYOR_REPORTS_USE_SSL     использовать TLS для minio
func NewWriterFromEnv() (Writer, error) {
	backend := envconf.String("CONVEYOR_REPORTS_BACKEND", "fs")
	switch backend {
	case "fs":
		dir := envconf.String("CONVEYOR_REPORTS_DIR", "./reports")
		return NewFSWriter(dir), nil
	case "minio":
		useSSL, err := envconf.Bool("CONVEYOR_REPORTS_USE_SSL", false)
		if err != nil {
			return nil, err
		}
		return NewMinioWriter(MinioConfig{
			Endpoint:  envconf.String("CONVEYOR_REPORTS_ENDPOINT", "localhost:9000"),
			Bucket:    envconf.String("CONVEYOR_REPORTS_BUCKET", "conveyor-reports"),
			AccessKey: envconf.String("CONVEYOR_REPORTS_ACCESS_KEY", ""),
			SecretKey: envconf.String("CONVEYOR_REPORTS_SECRET_KEY", ""),
			UseSSL:    useSSL,
		})
	case "nop":
		return NopWriter{}, nil
	default:
		return nil, ErrUnknownBackend
	}
}

// NopWriter отбрасывает содержимое отчёта и возвращает его имя.
// Используется, когда долговечное хранилище не настроено.
type NopWriter struct{}

func (NopWriter) Store(_ context.Context, _ uuid.UUID, name string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return name, nil
}

// objectKey собирает ключ отчёта: отчёты одного run лежат под общим
// префиксом с его идентификатором.
func objectKey(runID uuid.UUID, name string) string {
	return path.Join(runID.String(), name)
}
