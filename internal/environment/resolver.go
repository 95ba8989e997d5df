package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

var (
	// ErrUnresolvedSecrets — в строгом режиме остались неразрешённые
	// ссылки на секреты. Сообщение перечисляет все имена сразу.
	ErrUnresolvedSecrets = errors.New("unresolved secret references")

	// ErrInvalidDefinitions — в строгом режиме часть привязок пакетных
	// менеджеров не прошла разрешение. Сообщение агрегирует все проблемы.
	ErrInvalidDefinitions = errors.New("invalid environment definitions")
)

// ResolvedEnvironment — результат разрешения конфигурации окружения.
//
// Секреты материализованы как объявления (domain.Secret), не значения:
// значения подтягиваются генераторами через контекст воркера.
type ResolvedEnvironment struct {
	// Services — сервисы, у которых разрешились оба секрета учётных данных.
	Services []domain.InfrastructureService

	// Definitions — валидные привязки пакетных менеджеров.
	Definitions []ServiceDefinition

	// Variables — переменные окружения с разрешённым источником значения.
	Variables []ResolvedVariable

	// Warnings — проблемы, отброшенные в нестрогом режиме.
	Warnings []string
}

// ResolvedVariable — переменная окружения: либо ссылка на секрет,
// либо литеральное значение.
type ResolvedVariable struct {
	Name   string
	Secret *domain.Secret
	Value  string
}

// Resolver разрешает конфигурацию окружения относительно иерархии run.
type Resolver struct {
	secrets  repo.SecretStore
	services repo.ServiceStore
	logger   *slog.Logger
}

// NewResolver создаёт резолвер поверх хранилищ секретов и сервисов.
func NewResolver(secrets repo.SecretStore, services repo.ServiceStore, logger *slog.Logger) *Resolver {
	return &Resolver{secrets: secrets, services: services, logger: logger}
}

// Resolve выполняет разрешение конфигурации за один проход:
// сперва собираются все проблемы, затем политика strict решает один раз —
// ошибка или предупреждение с отбрасыванием затронутых элементов.
func (r *Resolver) Resolve(ctx context.Context, hierarchy *domain.Hierarchy, cfg *Config) (*ResolvedEnvironment, error) {
	names := referencedSecretNames(cfg)

	resolved, err := r.resolveSecretNames(ctx, hierarchy, names)
	if err != nil {
		return nil, err
	}

	env := &ResolvedEnvironment{}

	var missing []string
	for _, name := range names {
		if _, ok := resolved[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		if cfg.Strict {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedSecrets, strings.Join(missing, ", "))
		}
		env.Warnings = append(env.Warnings, "unresolved secret references: "+strings.Join(missing, ", "))
		r.logger.Warn("unresolved secret references, dependants dropped",
			"repository_id", hierarchy.Repository.ID.String(),
			"names", strings.Join(missing, ", "))
	}

	// Сервис материализуется, только когда разрешились оба секрета.
	// Отсутствующие имена уже учтены выше, поэтому здесь без диагностики.
	for _, decl := range cfg.InfrastructureServices {
		username, okUser := resolved[decl.UsernameSecret]
		password, okPass := resolved[decl.PasswordSecret]
		if !okUser || !okPass {
			continue
		}
		env.Services = append(env.Services, domain.InfrastructureService{
			Name:             decl.Name,
			URL:              decl.URL,
			Description:      decl.Description,
			UsernameSecret:   username,
			PasswordSecret:   password,
			CredentialsTypes: decl.CredentialsTypes,
		})
	}

	defs, failures, err := r.resolveDefinitions(ctx, hierarchy, cfg, env.Services)
	if err != nil {
		return nil, err
	}
	env.Definitions = defs
	if len(failures) > 0 {
		combined := strings.Join(failures, "; ")
		if cfg.Strict {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDefinitions, combined)
		}
		env.Warnings = append(env.Warnings, "invalid environment definitions: "+combined)
		r.logger.Warn("invalid environment definitions dropped",
			"repository_id", hierarchy.Repository.ID.String(),
			"failures", combined)
	}

	for _, decl := range cfg.EnvironmentVariables {
		if decl.SecretName != "" {
			secret, ok := resolved[decl.SecretName]
			if !ok {
				continue
			}
			env.Variables = append(env.Variables, ResolvedVariable{Name: decl.Name, Secret: &secret})
			continue
		}
		env.Variables = append(env.Variables, ResolvedVariable{Name: decl.Name, Value: decl.Value})
	}

	return env, nil
}

// resolveSecretNames ищет объявления по уровням иерархии: репозиторий,
// продукт, организация. Уровень опрашивается, только пока остаются
// ненайденные имена.
func (r *Resolver) resolveSecretNames(ctx context.Context, hierarchy *domain.Hierarchy, names []string) (map[string]domain.Secret, error) {
	resolved := make(map[string]domain.Secret, len(names))
	outstanding := names

	scopes := []struct {
		scope domain.Scope
		id    uuid.UUID
	}{
		{domain.ScopeRepository, hierarchy.Repository.ID},
		{domain.ScopeProduct, hierarchy.Product.ID},
		{domain.ScopeOrganization, hierarchy.Organization.ID},
	}

	for _, s := range scopes {
		if len(outstanding) == 0 {
			break
		}
		found, err := r.secrets.ListByNames(ctx, s.scope, s.id, outstanding)
		if err != nil {
			return nil, fmt.Errorf("list %s secrets: %w", s.scope, err)
		}
		remaining := make([]string, 0, len(outstanding))
		for _, name := range outstanding {
			if secret, ok := found[name]; ok {
				resolved[name] = secret
			} else {
				remaining = append(remaining, name)
			}
		}
		outstanding = remaining
	}

	return resolved, nil
}

// resolveDefinitions строит привязки пакетных менеджеров. Ошибка возврата —
// только отказ хранилища; проблемы самих привязок собираются в failures.
func (r *Resolver) resolveDefinitions(ctx context.Context, hierarchy *domain.Hierarchy, cfg *Config, declared []domain.InfrastructureService) ([]ServiceDefinition, []string, error) {
	lookup := &serviceLookup{
		services:  r.services,
		hierarchy: hierarchy,
		declared:  declared,
	}

	var (
		defs     []ServiceDefinition
		failures []string
	)
	for _, pmType := range definitionTypes(cfg.EnvironmentDefinitions) {
		check, known := definitionRegistry[pmType]
		if !known {
			failures = append(failures, fmt.Sprintf("%s: unknown package manager", pmType))
			continue
		}
		for i, entry := range cfg.EnvironmentDefinitions[pmType] {
			serviceName := entry["service"]
			if serviceName == "" {
				failures = append(failures, fmt.Sprintf("%s[%d]: missing service reference", pmType, i))
				continue
			}
			svc, ok, err := lookup.find(ctx, serviceName)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				failures = append(failures, fmt.Sprintf("%s[%d]: service %q not found", pmType, i, serviceName))
				continue
			}
			props := make(map[string]string, len(entry))
			for k, v := range entry {
				if k != "service" {
					props[k] = v
				}
			}
			if err := check(props); err != nil {
				failures = append(failures, fmt.Sprintf("%s[%d]: %v", pmType, i, err))
				continue
			}
			defs = append(defs, ServiceDefinition{Type: pmType, Service: svc, Properties: props})
		}
	}

	return defs, failures, nil
}

// serviceLookup ищет сервис по имени с тем же порядком уровней, что и у
// секретов: объявленные в конфигурации, затем продукт, затем организация.
// Списки уровней подгружаются лениво, по первому промаху.
type serviceLookup struct {
	services  repo.ServiceStore
	hierarchy *domain.Hierarchy

	declared []domain.InfrastructureService

	product       []domain.InfrastructureService
	productLoaded bool

	organization []domain.InfrastructureService
	orgLoaded    bool
}

func (l *serviceLookup) find(ctx context.Context, name string) (domain.InfrastructureService, bool, error) {
	if svc, ok := findService(l.declared, name); ok {
		return svc, true, nil
	}

	if !l.productLoaded {
		list, err := l.services.ListForProduct(ctx, l.hierarchy.Product.ID)
		if err != nil {
			return domain.InfrastructureService{}, false, fmt.Errorf("list product services: %w", err)
		}
		l.product, l.productLoaded = list, true
	}
	if svc, ok := findService(l.product, name); ok {
		return svc, true, nil
	}

	if !l.orgLoaded {
		list, err := l.services.ListForOrganization(ctx, l.hierarchy.Organization.ID)
		if err != nil {
			return domain.InfrastructureService{}, false, fmt.Errorf("list organization services: %w", err)
		}
		l.organization, l.orgLoaded = list, true
	}
	if svc, ok := findService(l.organization, name); ok {
		return svc, true, nil
	}

	return domain.InfrastructureService{}, false, nil
}

func findService(list []domain.InfrastructureService, name string) (domain.InfrastructureService, bool) {
	for _, svc := range list {
		if svc.Name == name {
			return svc, true
		}
	}
	return domain.InfrastructureService{}, false
}

// referencedSecretNames собирает объединение всех имён секретов,
// упомянутых сервисами и переменными конфигурации.
func referencedSecretNames(cfg *Config) []string {
	set := make(map[string]struct{})
	for _, svc := range cfg.InfrastructureServices {
		set[svc.UsernameSecret] = struct{}{}
		set[svc.PasswordSecret] = struct{}{}
	}
	for _, v := range cfg.EnvironmentVariables {
		if v.SecretName != "" {
			set[v.SecretName] = struct{}{}
		}
	}
	delete(set, "")

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
