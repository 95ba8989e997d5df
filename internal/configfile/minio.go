package configfile

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig — параметры подключения к S3-совместимому хранилищу.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioProvider — хранилище конфигурационных файлов в S3-совместимом
// object store. Ключ объекта — <контекст>/<путь>.
type MinioProvider struct {
	client *minio.Client
	bucket string
}

// NewMinioProvider создаёт провайдер поверх существующего bucket.
func NewMinioProvider(cfg MinioConfig) (*MinioProvider, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioProvider{client: client, bucket: cfg.Bucket}, nil
}

func (p *MinioProvider) GetFile(ctx context.Context, configContext, path string) (io.ReadCloser, error) {
	key := objectKey(configContext, path)

	// GetObject ленивый: несуществующий ключ проявился бы только при
	// первом чтении, поэтому существование проверяется заранее.
	if _, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat configuration object %q: %w", key, err)
	}
	obj, err := p.client.GetObject(ctx, p.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get configuration object %q: %w", key, err)
	}
	return obj, nil
}

func (p *MinioProvider) ListFiles(ctx context.Context, configContext, dir string) ([]string, error) {
	prefix := objectKey(configContext, dir)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	contextPrefix := ""
	if configContext != "" {
		contextPrefix = configContext + "/"
	}

	var files []string
	for obj := range p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list configuration objects %q: %w", prefix, obj.Err)
		}
		files = append(files, strings.TrimPrefix(obj.Key, contextPrefix))
	}
	return files, nil
}

func (p *MinioProvider) Contains(ctx context.Context, configContext, path string) (bool, error) {
	key := objectKey(configContext, path)
	if _, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat configuration object %q: %w", key, err)
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
