package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/messages"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/secrets"
	"github.com/shaiso/Conveyor/internal/transport"
)

// ClientFunc лениво создаёт Client после разбора флагов команды.
type ClientFunc func(ctx context.Context) (*Client, error)

// Client — прямой доступ CLI к хранилищам, транспорту и хранилищу
// секретов. CLI работает с теми же коллабораторами, что оркестратор и
// воркеры, поэтому конфигурируется теми же переменными окружения.
type Client struct {
	stores   repo.Stores
	sender   transport.Transport
	token    string
	secrets  secrets.WritableProvider
	shutdown func()
}

// NewClient собирает клиент по переменным окружения.
func NewClient(ctx context.Context) (*Client, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	stores, closeStores, err := repo.NewStoresFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	factory := transport.NewFactory(logger)
	sender, err := factory.ForEndpoint(ctx, transport.EndpointOrchestrator)
	if err != nil {
		closeStores()
		return nil, err
	}

	provider, err := secrets.NewProviderFromEnv()
	if err != nil {
		_ = factory.Close()
		closeStores()
		return nil, err
	}

	return &Client{
		stores:  stores,
		sender:  sender,
		token:   factory.Token(transport.EndpointOrchestrator),
		secrets: provider,
		shutdown: func() {
			_ = factory.Close()
			closeStores()
		},
	}, nil
}

// Close освобождает соединения клиента.
func (c *Client) Close() {
	if c.shutdown != nil {
		c.shutdown()
	}
}

// --- Runs ---

// StartRunParams — параметры запуска run.
type StartRunParams struct {
	RepositoryID  string
	Revision      string
	ConfigContext string
	Labels        map[string]string
	JobConfigs    domain.JobConfigs
}

// StartRun создаёт run и отправляет оркестратору команду на запуск.
func (c *Client) StartRun(ctx context.Context, p StartRunParams) (*domain.Run, error) {
	repositoryID, err := uuid.Parse(p.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("invalid repository id: %w", err)
	}
	// Репозиторий проверяется до создания run: воркеры не смогут собрать
	// контекст для run с оборванной иерархией.
	if _, err := c.stores.Hierarchies.GetHierarchy(ctx, repositoryID); err != nil {
		return nil, fmt.Errorf("resolve repository %s: %w", repositoryID, err)
	}

	run := &domain.Run{
		ID:            uuid.New(),
		RepositoryID:  repositoryID,
		Revision:      p.Revision,
		Status:        domain.RunStatusCreated,
		ConfigContext: p.ConfigContext,
		JobConfigs:    p.JobConfigs,
		Labels:        p.Labels,
		TraceID:       uuid.New().String(),
		CreatedAt:     time.Now(),
	}
	if err := c.stores.Runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	header := transport.Header{Token: c.token, TraceID: run.TraceID}
	if err := c.sender.Send(ctx, messages.NewCreateRun(header, run.ID)); err != nil {
		return nil, fmt.Errorf("send create-run command: %w", err)
	}
	return run, nil
}

// GetRun возвращает run по идентификатору.
func (c *Client) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id: %w", err)
	}
	return c.stores.Runs.GetByID(ctx, runID)
}

// ListRunsParams — параметры фильтрации runs.
type ListRunsParams struct {
	RepositoryID string
	Status       string
	Limit        int
}

// ListRuns возвращает runs по фильтру.
func (c *Client) ListRuns(ctx context.Context, p ListRunsParams) ([]domain.Run, error) {
	filter := repo.RunFilter{Limit: p.Limit}
	if p.RepositoryID != "" {
		id, err := uuid.Parse(p.RepositoryID)
		if err != nil {
			return nil, fmt.Errorf("invalid repository id: %w", err)
		}
		filter.RepositoryID = &id
	}
	if p.Status != "" {
		filter.Status = domain.RunStatus(strings.ToUpper(p.Status))
	}
	return c.stores.Runs.List(ctx, filter)
}

// CancelRun помечает run отменённым.
//
// Отмена кооперативная: оркестратор увидит статус при обработке
// следующего результата и отбросит его, новые этапы рассылаться не
// будут. Уже работающий воркер не прерывается.
func (c *Client) CancelRun(ctx context.Context, id string) (*domain.Run, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id: %w", err)
	}

	run, err := c.stores.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, fmt.Errorf("run is already %s: %w", run.Status, repo.ErrInvalidState)
	}

	run.MarkCancelled()
	if err := c.stores.Runs.Update(ctx, run); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return nil, fmt.Errorf("run finished before cancellation: %w", err)
		}
		return nil, fmt.Errorf("update run: %w", err)
	}
	return run, nil
}

// ListJobs возвращает задания этапов run.
func (c *Client) ListJobs(ctx context.Context, id string) ([]domain.Job, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id: %w", err)
	}
	return c.stores.Jobs.ListByRun(ctx, runID)
}

// --- Secrets ---

// CreateSecretParams — параметры создания секрета.
type CreateSecretParams struct {
	Scope       string
	ScopeID     string
	Name        string
	Value       string
	Description string
}

// CreateSecret записывает значение в хранилище секретов и создаёт
// объявление на указанном уровне иерархии.
func (c *Client) CreateSecret(ctx context.Context, p CreateSecretParams) (*domain.Secret, error) {
	scope, err := parseScope(p.Scope)
	if err != nil {
		return nil, err
	}
	scopeID, err := uuid.Parse(p.ScopeID)
	if err != nil {
		return nil, fmt.Errorf("invalid scope id: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("secret name is required")
	}

	secret := &domain.Secret{
		ID:          uuid.New(),
		Path:        domain.SecretPath(scope, scopeID, p.Name),
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   time.Now(),
	}
	switch scope {
	case domain.ScopeOrganization:
		secret.OrganizationID = &scopeID
	case domain.ScopeProduct:
		secret.ProductID = &scopeID
	case domain.ScopeRepository:
		secret.RepositoryID = &scopeID
	}

	// Значение пишется до объявления: объявление без значения воркеры
	// считают ошибкой разрешения.
	if err := c.secrets.Store(ctx, secret.Path, p.Value); err != nil {
		return nil, fmt.Errorf("store secret value: %w", err)
	}
	if err := c.stores.Secrets.Create(ctx, secret); err != nil {
		_ = c.secrets.Delete(ctx, secret.Path)
		return nil, fmt.Errorf("create secret: %w", err)
	}
	return secret, nil
}

// --- Hierarchy ---

// AddOrganization создаёт организацию.
func (c *Client) AddOrganization(ctx context.Context, name, description string) (*domain.Organization, error) {
	org := &domain.Organization{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
	}
	if err := c.stores.Hierarchies.CreateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	return org, nil
}

// AddProduct создаёт продукт внутри организации.
func (c *Client) AddProduct(ctx context.Context, organizationID, name, description string) (*domain.Product, error) {
	orgID, err := uuid.Parse(organizationID)
	if err != nil {
		return nil, fmt.Errorf("invalid organization id: %w", err)
	}

	product := &domain.Product{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           name,
		Description:    description,
		CreatedAt:      time.Now(),
	}
	if err := c.stores.Hierarchies.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

// AddRepository создаёт репозиторий внутри продукта.
func (c *Client) AddRepository(ctx context.Context, productID, url string) (*domain.Repository, error) {
	prodID, err := uuid.Parse(productID)
	if err != nil {
		return nil, fmt.Errorf("invalid product id: %w", err)
	}

	repository := &domain.Repository{
		ID:        uuid.New(),
		ProductID: prodID,
		URL:       url,
		CreatedAt: time.Now(),
	}
	if err := c.stores.Hierarchies.CreateRepository(ctx, repository); err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	return repository, nil
}

// --- Infrastructure services ---

// AddServiceParams — параметры объявления инфраструктурного сервиса.
type AddServiceParams struct {
	Scope            string
	ScopeID          string
	Name             string
	URL              string
	Description      string
	UsernameSecret   string
	PasswordSecret   string
	CredentialsTypes []string
}

// AddService объявляет инфраструктурный сервис на уровне иерархии.
// Секреты учётных данных должны быть объявлены на том же уровне заранее.
//
// Сервисы объявляются на уровне организации или продукта; сервисы
// уровня репозитория задаются в файле конфигурации окружения самого
// репозитория.
func (c *Client) AddService(ctx context.Context, p AddServiceParams) (*domain.InfrastructureService, error) {
	scope, err := parseScope(p.Scope)
	if err != nil {
		return nil, err
	}
	if scope == domain.ScopeRepository {
		return nil, fmt.Errorf("repository-level services are declared in the repository's environment configuration file")
	}
	scopeID, err := uuid.Parse(p.ScopeID)
	if err != nil {
		return nil, fmt.Errorf("invalid scope id: %w", err)
	}

	declared, err := c.stores.Secrets.ListByNames(ctx, scope, scopeID, []string{p.UsernameSecret, p.PasswordSecret})
	if err != nil {
		return nil, fmt.Errorf("lookup credential secrets: %w", err)
	}
	username, ok := declared[p.UsernameSecret]
	if !ok {
		return nil, fmt.Errorf("secret %q is not declared at %s scope", p.UsernameSecret, scope)
	}
	password, ok := declared[p.PasswordSecret]
	if !ok {
		return nil, fmt.Errorf("secret %q is not declared at %s scope", p.PasswordSecret, scope)
	}

	credentialsTypes, err := parseCredentialsTypes(p.CredentialsTypes)
	if err != nil {
		return nil, err
	}

	svc := &domain.InfrastructureService{
		Name:             p.Name,
		URL:              p.URL,
		Description:      p.Description,
		UsernameSecret:   username,
		PasswordSecret:   password,
		CredentialsTypes: credentialsTypes,
	}
	if err := c.stores.Services.Create(ctx, svc, scope, scopeID); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// --- Helpers ---

func parseScope(s string) (domain.Scope, error) {
	switch domain.Scope(strings.ToLower(s)) {
	case domain.ScopeOrganization:
		return domain.ScopeOrganization, nil
	case domain.ScopeProduct:
		return domain.ScopeProduct, nil
	case domain.ScopeRepository:
		return domain.ScopeRepository, nil
	default:
		return "", fmt.Errorf("unknown scope %q, expected organization, product or repository", s)
	}
}

func parseCredentialsTypes(values []string) ([]domain.CredentialsType, error) {
	var types []domain.CredentialsType
	for _, v := range values {
		ct := domain.CredentialsType(strings.ToUpper(v))
		switch ct {
		case domain.CredentialsTypeNetrcFile, domain.CredentialsTypeGitCredentialsFile:
			types = append(types, ct)
		default:
			return nil, fmt.Errorf("unknown credentials type %q", v)
		}
	}
	return types, nil
}

// stagesToConfigs строит заявленные конфигурации по списку имён этапов.
// Каждый этап получает конфигурацию по умолчанию.
func stagesToConfigs(names []string) (domain.JobConfigs, error) {
	var configs domain.JobConfigs
	for _, name := range names {
		stage, err := domain.ParseStage(strings.TrimSpace(name))
		if err != nil {
			return domain.JobConfigs{}, err
		}
		switch stage {
		case domain.StageAnalyzer:
			configs.Analyzer = &domain.AnalyzerJobConfig{}
		case domain.StageAdvisor:
			configs.Advisor = &domain.AdvisorJobConfig{}
		case domain.StageScanner:
			configs.Scanner = &domain.ScannerJobConfig{}
		case domain.StageEvaluator:
			configs.Evaluator = &domain.EvaluatorJobConfig{}
		case domain.StageReporter:
			configs.Reporter = &domain.ReporterJobConfig{}
		case domain.StageNotifier:
			configs.Notifier = &domain.NotifierJobConfig{}
		}
	}
	return configs, nil
}
