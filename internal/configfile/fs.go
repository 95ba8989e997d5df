package configfile

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSProvider — хранилище конфигурационных файлов поверх локального
// каталога. Контекст конфигурации отображается на подкаталог корня.
// Используется в docker-compose-окружениях, где репозиторий конфигурации
// монтируется как volume.
type FSProvider struct {
	root string
}

// NewFSProvider создаёт провайдер поверх каталога root.
func NewFSProvider(root string) *FSProvider {
	return &FSProvider{root: root}
}

func (p *FSProvider) GetFile(_ context.Context, configContext, path string) (io.ReadCloser, error) {
	full, err := p.resolve(configContext, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open configuration file %q: %w", path, err)
	}
	return f, nil
}

func (p *FSProvider) ListFiles(_ context.Context, configContext, dir string) ([]string, error) {
	base, err := p.resolve(configContext, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	err = filepath.WalkDir(base, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, full)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(filepath.Join(dir, rel)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list configuration files %q: %w", dir, err)
	}
	return files, nil
}

func (p *FSProvider) Contains(_ context.Context, configContext, path string) (bool, error) {
	full, err := p.resolve(configContext, path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat configuration file %q: %w", path, err)
	}
	return !info.IsDir(), nil
}

// resolve строит абсолютный путь и отсекает выход за пределы корня.
func (p *FSProvider) resolve(configContext, path string) (string, error) {
	key := objectKey(configContext, path)
	full := filepath.Join(p.root, filepath.FromSlash(key))
	rootAbs, err := filepath.Abs(p.root)
	if err != nil {
		return "", err
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("configuration path %q escapes the store root", path)
	}
	return full, nil
}
