package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider — файловое хранилище секретов: одно значение на файл.
//
// Имя файла совпадает с путём объявления ({scope}_{id}_{name}), поэтому
// вложенных каталогов нет. Подходит для docker-secrets и локальной
// разработки.
type FileProvider struct {
	dir string
}

// NewFileProvider создаёт хранилище поверх каталога dir.
// Каталог создаётся, если его ещё нет.
func NewFileProvider(dir string) (*FileProvider, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create secrets dir: %w", err)
	}
	return &FileProvider{dir: dir}, nil
}

func (p *FileProvider) Resolve(_ context.Context, path string) (string, error) {
	name, err := sanitize(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrValueNotFound
		}
		return "", fmt.Errorf("read secret %q: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (p *FileProvider) Store(_ context.Context, path, value string) error {
	name, err := sanitize(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(p.dir, name), []byte(value), 0o600); err != nil {
		return fmt.Errorf("write secret %q: %w", path, err)
	}
	return nil
}

func (p *FileProvider) Delete(_ context.Context, path string) error {
	name, err := sanitize(path)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(p.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete secret %q: %w", path, err)
	}
	return nil
}

// sanitize запрещает выход за пределы каталога хранилища.
func sanitize(path string) (string, error) {
	if path == "" || strings.ContainsAny(path, "/\\") || path != filepath.Base(path) {
		return "", fmt.Errorf("invalid secret path %q", path)
	}
	return path, nil
}
