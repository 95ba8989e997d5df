package runctx

import (
	"context"

	"github.com/shaiso/Conveyor/internal/domain"
)

// WithResolvedConfigs возвращает контекст, чей Run отдаёт копию run с
// подставленными проверенными конфигурациями этапов. Все остальные
// операции делегируются исходному контексту.
//
// Обёртку используют обработчики этапов после анализа: они работают с
// проверенными конфигурациями, не мутируя исходный run.
func WithResolvedConfigs(inner WorkerContext, configs domain.JobConfigs) WorkerContext {
	run := *inner.Run()
	run.ResolvedJobConfigs = &configs
	return &resolvedConfigsContext{inner: inner, run: &run}
}

// resolvedConfigsContext — явная делегирующая обёртка. Каждый метод
// прописан вручную: встраивание скрыло бы, какие операции перехвачены.
type resolvedConfigsContext struct {
	inner WorkerContext
	run   *domain.Run
}

func (c *resolvedConfigsContext) Run() *domain.Run {
	return c.run
}

func (c *resolvedConfigsContext) Hierarchy() *domain.Hierarchy {
	return c.inner.Hierarchy()
}

func (c *resolvedConfigsContext) ResolveSecret(ctx context.Context, secret domain.Secret) (string, error) {
	return c.inner.ResolveSecret(ctx, secret)
}

func (c *resolvedConfigsContext) ResolveSecrets(ctx context.Context, secretRefs []domain.Secret) (map[string]string, error) {
	return c.inner.ResolveSecrets(ctx, secretRefs)
}

func (c *resolvedConfigsContext) ResolvePluginConfigSecrets(ctx context.Context, configs map[string]domain.PluginConfig) (map[string]domain.PluginConfig, error) {
	return c.inner.ResolvePluginConfigSecrets(ctx, configs)
}

func (c *resolvedConfigsContext) DownloadConfigurationFile(ctx context.Context, path, targetDir, rename string) (string, error) {
	return c.inner.DownloadConfigurationFile(ctx, path, targetDir, rename)
}

func (c *resolvedConfigsContext) DownloadConfigurationFiles(ctx context.Context, paths []string, targetDir string) (map[string]string, error) {
	return c.inner.DownloadConfigurationFiles(ctx, paths, targetDir)
}

func (c *resolvedConfigsContext) DownloadConfigurationDirectory(ctx context.Context, dirPath, targetDir string) (map[string]string, error) {
	return c.inner.DownloadConfigurationDirectory(ctx, dirPath, targetDir)
}

func (c *resolvedConfigsContext) CreateTempDir() (string, error) {
	return c.inner.CreateTempDir()
}

func (c *resolvedConfigsContext) Close() error {
	return c.inner.Close()
}

var _ WorkerContext = (*resolvedConfigsContext)(nil)
