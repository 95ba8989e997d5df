package environment

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/configfile"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/runctx"
)

// DefaultConfigPath — путь файла конфигурации окружения относительно
// корня репозитория.
const DefaultConfigPath = ".ort.env.yml"

// Config — конфигурация окружения репозитория.
//
// Объявляет локальные инфраструктурные сервисы, привязки пакетных
// менеджеров и переменные окружения. Все ссылки на секреты задаются
// именами и разрешаются Resolver-ом.
type Config struct {
	// Strict — политика обработки неразрешённых ссылок: true — фатальная
	// ошибка с перечислением всех проблем, false — предупреждение и
	// отбрасывание затронутых элементов. По умолчанию true.
	Strict bool `yaml:"strict"`

	// InfrastructureServices — сервисы, объявленные в самом репозитории.
	InfrastructureServices []ServiceDeclaration `yaml:"infrastructureServices"`

	// EnvironmentDefinitions — привязки пакетных менеджеров: имя
	// менеджера → список наборов параметров, каждый со ссылкой service.
	EnvironmentDefinitions map[string][]map[string]string `yaml:"environmentDefinitions"`

	// EnvironmentVariables — переменные окружения анализа.
	EnvironmentVariables []VariableDeclaration `yaml:"environmentVariables"`
}

// ServiceDeclaration — инфраструктурный сервис, объявленный в файле
// конфигурации. Учётные данные заданы именами секретов.
type ServiceDeclaration struct {
	Name             string                   `yaml:"name"`
	URL              string                   `yaml:"url"`
	Description      string                   `yaml:"description"`
	UsernameSecret   string                   `yaml:"usernameSecret"`
	PasswordSecret   string                   `yaml:"passwordSecret"`
	CredentialsTypes []domain.CredentialsType `yaml:"credentialsTypes"`
}

// VariableDeclaration — переменная окружения: значение берётся из
// секрета (secretName) либо задано напрямую (value).
type VariableDeclaration struct {
	Name       string `yaml:"name"`
	SecretName string `yaml:"secretName"`
	Value      string `yaml:"value"`
}

// Parse разбирает YAML-содержимое файла конфигурации окружения.
func Parse(data []byte) (*Config, error) {
	// Strict включён до разбора: отсутствие ключа в файле не ослабляет
	// политику.
	cfg := Config{Strict: true}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse environment config: %w", err)
	}

	for _, decl := range cfg.InfrastructureServices {
		if decl.Name == "" || decl.URL == "" {
			return nil, fmt.Errorf("environment config: infrastructure service requires name and url")
		}
		if decl.UsernameSecret == "" || decl.PasswordSecret == "" {
			return nil, fmt.Errorf("environment config: service %q requires usernameSecret and passwordSecret", decl.Name)
		}
	}
	for _, decl := range cfg.EnvironmentVariables {
		if decl.Name == "" {
			return nil, fmt.Errorf("environment config: environment variable requires a name")
		}
		if decl.SecretName == "" && decl.Value == "" {
			return nil, fmt.Errorf("environment config: variable %q requires secretName or value", decl.Name)
		}
	}

	return &cfg, nil
}

// Load скачивает и разбирает файл конфигурации окружения через контекст
// воркера. Отсутствие файла не является ошибкой: возвращается пустая
// конфигурация со strict по умолчанию.
func Load(ctx context.Context, wc runctx.WorkerContext, path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	dir, err := wc.CreateTempDir()
	if err != nil {
		return nil, err
	}

	local, err := wc.DownloadConfigurationFile(ctx, path, dir, "")
	if err != nil {
		if errors.Is(err, configfile.ErrNotFound) {
			return &Config{Strict: true}, nil
		}
		return nil, err
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("read environment config: %w", err)
	}
	return Parse(data)
}
