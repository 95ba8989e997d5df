package reportstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig — подключение к объектному хранилищу отчётов.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioWriter хранит отчёты объектами <runID>/<name> в одном bucket.
type MinioWriter struct {
	client *minio.Client
	bucket string

	ensureOnce sync.Once
	ensureErr  error
}

// NewMinioWriter создаёт писатель поверх minio/S3.
func NewMinioWriter(cfg MinioConfig) (*MinioWriter, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioWriter{client: client, bucket: cfg.Bucket}, nil
}

func (w *MinioWriter) Store(ctx context.Context, runID uuid.UUID, name string, r io.Reader) (string, error) {
	if err := w.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := objectKey(runID, name)
	// Размер неизвестен: -1 включает потоковую загрузку.
	_, err := w.client.PutObject(ctx, w.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: contentTypeFor(name),
	})
	if err != nil {
		return "", fmt.Errorf("store report %s: %w", name, err)
	}
	return fmt.Sprintf("s3://%s/%s", w.bucket, key), nil
}

// ensureBucket создаёт bucket при первом обращении процесса.
func (w *MinioWriter) ensureBucket(ctx context.Context) error {
	w.ensureOnce.Do(func() {
		exists, err := w.client.BucketExists(ctx, w.bucket)
		if err != nil {
			w.ensureErr = fmt.Errorf("check bucket %s: %w", w.bucket, err)
			return
		}
		if exists {
			return
		}
		if err := w.client.MakeBucket(ctx, w.bucket, minio.MakeBucketOptions{}); err != nil {
			w.ensureErr = fmt.Errorf("create bucket %s: %w", w.bucket, err)
		}
	})
	return w.ensureErr
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var (
	_ Writer = (*FSWriter)(nil)
	_ Writer = (*MinioWriter)(nil)
	_ Writer = NopWriter{}
)
