package runctx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shaiso/Conveyor/internal/configfile"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/secrets"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// WorkerContext — контекст выполнения одного этапа run.
//
// Обработчики этапов принимают интерфейс: в тестах его подменяют, а
// обёртка WithResolvedConfigs прозрачно переопределяет Run.
type WorkerContext interface {
	// Run возвращает run, для которого выполняется этап.
	Run() *domain.Run

	// Hierarchy возвращает цепочку repository → product → organization.
	Hierarchy() *domain.Hierarchy

	// ResolveSecret возвращает значение секрета. Значения кэшируются на
	// время жизни контекста; одновременные запросы одного секрета
	// сливаются в одно обращение к хранилищу.
	ResolveSecret(ctx context.Context, secret domain.Secret) (string, error)

	// ResolveSecrets разрешает набор секретов и возвращает значения по
	// путям. Контракт кэширования тот же, что у ResolveSecret.
	ResolveSecrets(ctx context.Context, secretRefs []domain.Secret) (map[string]string, error)

	// ResolvePluginConfigSecrets подставляет значения секретов в
	// конфигурации плагинов. Nil на входе даёт пустой результат без ошибки.
	ResolvePluginConfigSecrets(ctx context.Context, configs map[string]domain.PluginConfig) (map[string]domain.PluginConfig, error)

	// DownloadConfigurationFile скачивает файл из провайдера конфигурации
	// в каталог targetDir и возвращает локальный путь. Rename задаёт имя
	// итогового файла; пустая строка сохраняет имя источника. Повторный
	// запрос той же тройки (источник, каталог, имя) отдаёт уже скачанный
	// файл.
	DownloadConfigurationFile(ctx context.Context, path, targetDir, rename string) (string, error)

	// DownloadConfigurationFiles скачивает набор файлов в один каталог и
	// возвращает соответствие источник → локальный путь.
	DownloadConfigurationFiles(ctx context.Context, paths []string, targetDir string) (map[string]string, error)

	// DownloadConfigurationDirectory скачивает все файлы каталога
	// провайдера и возвращает соответствие источник → локальный путь.
	DownloadConfigurationDirectory(ctx context.Context, dirPath, targetDir string) (map[string]string, error)

	// CreateTempDir создаёт временный каталог, который будет рекурсивно
	// удалён при закрытии контекста.
	CreateTempDir() (string, error)

	// Close идемпотентно освобождает ресурсы контекста: временные
	// каталоги и кэши. Вызывается на всех путях выхода из этапа.
	Close() error
}

// downloadKey — ключ кэша скачанных файлов. Другое имя или другой
// целевой каталог — другой ключ.
type downloadKey struct {
	source string
	dir    string
	name   string
}

// Context — реализация WorkerContext с кэшами и временными каталогами.
type Context struct {
	run       *domain.Run
	hierarchy *domain.Hierarchy
	secrets   secrets.Provider
	configs   configfile.Provider
	workDir   string
	logger    *slog.Logger

	secretFlight singleflight.Group
	fileFlight   singleflight.Group

	mu          sync.Mutex
	closed      bool
	secretCache map[string]string
	fileCache   map[downloadKey]string
	tempDirs    []string
}

func (c *Context) Run() *domain.Run {
	return c.run
}

func (c *Context) Hierarchy() *domain.Hierarchy {
	return c.hierarchy
}

func (c *Context) ResolveSecret(ctx context.Context, secret domain.Secret) (string, error) {
	return c.resolvePath(ctx, secret.Path)
}

func (c *Context) ResolveSecrets(ctx context.Context, secretRefs []domain.Secret) (map[string]string, error) {
	values := make([]string, len(secretRefs))

	g, gctx := errgroup.WithContext(ctx)
	for i, secret := range secretRefs {
		g.Go(func() error {
			value, err := c.resolvePath(gctx, secret.Path)
			if err != nil {
				return err
			}
			values[i] = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolved := make(map[string]string, len(secretRefs))
	for i, secret := range secretRefs {
		resolved[secret.Path] = values[i]
	}
	return resolved, nil
}

func (c *Context) ResolvePluginConfigSecrets(ctx context.Context, configs map[string]domain.PluginConfig) (map[string]domain.PluginConfig, error) {
	resolved := make(map[string]domain.PluginConfig, len(configs))

	for plugin, cfg := range configs {
		out := domain.PluginConfig{
			Options: make(map[string]string, len(cfg.Options)),
			Secrets: make(map[string]string, len(cfg.Secrets)),
		}
		for k, v := range cfg.Options {
			out.Options[k] = v
		}
		for key, path := range cfg.Secrets {
			value, err := c.resolvePath(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("plugin %q: %w", plugin, err)
			}
			out.Secrets[key] = value
		}
		resolved[plugin] = out
	}

	return resolved, nil
}

// resolvePath — общий путь разрешения секретов: кэш, затем single-flight
// поход в хранилище. Неудача не кэшируется, следующий вызов повторит
// попытку.
func (c *Context) resolvePath(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if value, ok := c.secretCache[path]; ok {
		c.mu.Unlock()
		telemetry.SecretResolutions.WithLabelValues("hit").Inc()
		return value, nil
	}
	c.mu.Unlock()

	value, err, _ := c.secretFlight.Do(path, func() (any, error) {
		// Другой вызов мог успеть положить значение, пока мы ждали очередь
		c.mu.Lock()
		if value, ok := c.secretCache[path]; ok {
			c.mu.Unlock()
			telemetry.SecretResolutions.WithLabelValues("hit").Inc()
			return value, nil
		}
		c.mu.Unlock()

		value, err := c.secrets.Resolve(ctx, path)
		if err != nil {
			telemetry.SecretResolutions.WithLabelValues("error").Inc()
			return "", fmt.Errorf("resolve secret %q: %w", path, err)
		}

		c.mu.Lock()
		if !c.closed {
			c.secretCache[path] = value
		}
		c.mu.Unlock()

		telemetry.SecretResolutions.WithLabelValues("miss").Inc()
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (c *Context) DownloadConfigurationFile(ctx context.Context, path, targetDir, rename string) (string, error) {
	name := rename
	if name == "" {
		name = filepath.Base(path)
	}
	key := downloadKey{source: path, dir: targetDir, name: name}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if local, ok := c.fileCache[key]; ok {
		c.mu.Unlock()
		return local, nil
	}
	c.mu.Unlock()

	flightKey := path + "\x00" + targetDir + "\x00" + name
	local, err, _ := c.fileFlight.Do(flightKey, func() (any, error) {
		c.mu.Lock()
		if local, ok := c.fileCache[key]; ok {
			c.mu.Unlock()
			return local, nil
		}
		c.mu.Unlock()

		local, err := c.fetchFile(ctx, path, targetDir, name)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		if !c.closed {
			c.fileCache[key] = local
		}
		c.mu.Unlock()

		return local, nil
	})
	if err != nil {
		return "", err
	}
	return local.(string), nil
}

// fetchFile скачивает файл из провайдера в targetDir под именем name.
func (c *Context) fetchFile(ctx context.Context, path, targetDir, name string) (string, error) {
	rc, err := c.configs.GetFile(ctx, c.run.ConfigContext, path)
	if err != nil {
		return "", fmt.Errorf("download configuration file %q: %w", path, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("create target dir %q: %w", targetDir, err)
	}

	local := filepath.Join(targetDir, name)
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create file %q: %w", local, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return "", fmt.Errorf("write file %q: %w", local, err)
	}

	c.logger.Debug("downloaded configuration file", "path", path, "local", local)
	return local, nil
}

func (c *Context) DownloadConfigurationFiles(ctx context.Context, paths []string, targetDir string) (map[string]string, error) {
	locals := make([]string, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			local, err := c.DownloadConfigurationFile(gctx, path, targetDir, "")
			if err != nil {
				return err
			}
			locals[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make(map[string]string, len(paths))
	for i, path := range paths {
		files[path] = locals[i]
	}
	return files, nil
}

func (c *Context) DownloadConfigurationDirectory(ctx context.Context, dirPath, targetDir string) (map[string]string, error) {
	paths, err := c.configs.ListFiles(ctx, c.run.ConfigContext, dirPath)
	if err != nil {
		return nil, fmt.Errorf("list configuration directory %q: %w", dirPath, err)
	}
	return c.DownloadConfigurationFiles(ctx, paths, targetDir)
}

func (c *Context) CreateTempDir() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}

	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(c.workDir, "conveyor-"+shortRunID(c.run)+"-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	c.tempDirs = append(c.tempDirs, dir)
	return dir, nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dirs := c.tempDirs
	c.tempDirs = nil
	c.secretCache = nil
	c.fileCache = nil
	c.mu.Unlock()

	var firstErr error
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove temp dir %q: %w", dir, err)
		}
	}

	c.logger.Debug("worker context closed", "temp_dirs", len(dirs))
	return firstErr
}

// shortRunID возвращает короткий фрагмент идентификатора run для имён
// временных каталогов.
func shortRunID(run *domain.Run) string {
	id := run.ID.String()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var _ WorkerContext = (*Context)(nil)
