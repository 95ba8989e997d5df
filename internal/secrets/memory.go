package secrets

import (
	"context"
	"sync"
)

// MemoryProvider — хранилище секретов в памяти для тестов и локального режима.
type MemoryProvider struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryProvider создаёт пустое хранилище в памяти.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{values: make(map[string]string)}
}

func (p *MemoryProvider) Resolve(_ context.Context, path string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value, ok := p.values[path]
	if !ok {
		return "", ErrValueNotFound
	}
	return value, nil
}

func (p *MemoryProvider) Store(_ context.Context, path, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.values[path] = value
	return nil
}

func (p *MemoryProvider) Delete(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.values, path)
	return nil
}

var (
	_ WritableProvider = (*FileProvider)(nil)
	_ WritableProvider = (*MemoryProvider)(nil)
)
