package configfile

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

// MemoryProvider — хранилище конфигурационных файлов в памяти для тестов.
// Ключи карты — полные ключи хранилища (<контекст>/<путь>).
type MemoryProvider struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryProvider создаёт провайдер с начальным набором файлов.
func NewMemoryProvider(files map[string]string) *MemoryProvider {
	p := &MemoryProvider{files: make(map[string][]byte, len(files))}
	for key, content := range files {
		p.files[key] = []byte(content)
	}
	return p
}

// Put добавляет или заменяет файл.
func (p *MemoryProvider) Put(configContext, path, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.files[objectKey(configContext, path)] = []byte(content)
}

func (p *MemoryProvider) GetFile(_ context.Context, configContext, path string) (io.ReadCloser, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	content, ok := p.files[objectKey(configContext, path)]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (p *MemoryProvider) ListFiles(_ context.Context, configContext, dir string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	prefix := objectKey(configContext, dir)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	contextPrefix := ""
	if configContext != "" {
		contextPrefix = configContext + "/"
	}

	var files []string
	for key := range p.files {
		if strings.HasPrefix(key, prefix) {
			files = append(files, strings.TrimPrefix(key, contextPrefix))
		}
	}
	return files, nil
}

func (p *MemoryProvider) Contains(_ context.Context, configContext, path string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.files[objectKey(configContext, path)]
	return ok, nil
}

var (
	_ Provider = (*FSProvider)(nil)
	_ Provider = (*MinioProvider)(nil)
	_ Provider = (*MemoryProvider)(nil)
)
