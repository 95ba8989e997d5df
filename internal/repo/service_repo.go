package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ServiceRepo — репозиторий инфраструктурных сервисов в PostgreSQL.
//
// Сервис хранит ссылки на два объявления секретов (логин и пароль);
// при чтении объявления подтягиваются join'ом.
type ServiceRepo struct {
	pool *pgxpool.Pool
}

// NewServiceRepo создаёт новый ServiceRepo.
func NewServiceRepo(pool *pgxpool.Pool) *ServiceRepo {
	return &ServiceRepo{pool: pool}
}

// Create создаёт инфраструктурный сервис на уровне организации или продукта.
// Сервисы уровня репозитория объявляются в файле конфигурации окружения
// и в БД не хранятся.
func (r *ServiceRepo) Create(ctx context.Context, svc *domain.InfrastructureService, scope domain.Scope, scopeID uuid.UUID) error {
	var organizationID, productID *uuid.UUID
	switch scope {
	case domain.ScopeOrganization:
		organizationID = &scopeID
	case domain.ScopeProduct:
		productID = &scopeID
	default:
		return fmt.Errorf("%w: services are declared at organization or product scope, got %q", ErrInvalidState, scope)
	}

	credTypes := make([]string, len(svc.CredentialsTypes))
	for i, ct := range svc.CredentialsTypes {
		credTypes[i] = string(ct)
	}

	query := `
		INSERT INTO infrastructure_services (id, name, url, description,
		       username_secret_id, password_secret_id, credentials_types,
		       organization_id, product_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`
	_, err := r.pool.Exec(ctx, query,
		uuid.New(),
		svc.Name,
		svc.URL,
		nullString(svc.Description),
		svc.UsernameSecret.ID,
		svc.PasswordSecret.ID,
		credTypes,
		organizationID,
		productID,
	)
	if err != nil {
		return fmt.Errorf("insert infrastructure service: %w", err)
	}
	return nil
}

// ListForProduct возвращает сервисы, объявленные на уровне продукта.
func (r *ServiceRepo) ListForProduct(ctx context.Context, productID uuid.UUID) ([]domain.InfrastructureService, error) {
	return r.list(ctx, "product_id", productID)
}

// ListForOrganization возвращает сервисы, объявленные на уровне организации.
func (r *ServiceRepo) ListForOrganization(ctx context.Context, organizationID uuid.UUID) ([]domain.InfrastructureService, error) {
	return r.list(ctx, "organization_id", organizationID)
}

func (r *ServiceRepo) list(ctx context.Context, scopeColumn string, scopeID uuid.UUID) ([]domain.InfrastructureService, error) {
	query := `
		SELECT s.name, s.url, s.description, s.credentials_types,
		       us.id, us.path, us.name, us.description,
		       us.organization_id, us.product_id, us.repository_id, us.created_at,
		       ps.id, ps.path, ps.name, ps.description,
		       ps.organization_id, ps.product_id, ps.repository_id, ps.created_at
		FROM infrastructure_services s
		JOIN secrets us ON us.id = s.username_secret_id
		JOIN secrets ps ON ps.id = s.password_secret_id
		WHERE s.` + scopeColumn + ` = $1
		ORDER BY s.name ASC
	`
	rows, err := r.pool.Query(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list infrastructure services: %w", err)
	}
	defer rows.Close()

	var services []domain.InfrastructureService
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}

// scanService сканирует одну строку в InfrastructureService вместе
// с объявлениями обоих секретов.
func scanService(row pgx.Row) (*domain.InfrastructureService, error) {
	var svc domain.InfrastructureService
	var description, usernameDescription, passwordDescription *string
	var credTypes []string

	err := row.Scan(
		&svc.Name,
		&svc.URL,
		&description,
		&credTypes,
		&svc.UsernameSecret.ID,
		&svc.UsernameSecret.Path,
		&svc.UsernameSecret.Name,
		&usernameDescription,
		&svc.UsernameSecret.OrganizationID,
		&svc.UsernameSecret.ProductID,
		&svc.UsernameSecret.RepositoryID,
		&svc.UsernameSecret.CreatedAt,
		&svc.PasswordSecret.ID,
		&svc.PasswordSecret.Path,
		&svc.PasswordSecret.Name,
		&passwordDescription,
		&svc.PasswordSecret.OrganizationID,
		&svc.PasswordSecret.ProductID,
		&svc.PasswordSecret.RepositoryID,
		&svc.PasswordSecret.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan infrastructure service: %w", err)
	}

	if description != nil {
		svc.Description = *description
	}
	if usernameDescription != nil {
		svc.UsernameSecret.Description = *usernameDescription
	}
	if passwordDescription != nil {
		svc.PasswordSecret.Description = *passwordDescription
	}

	svc.CredentialsTypes = make([]domain.CredentialsType, len(credTypes))
	for i, ct := range credTypes {
		svc.CredentialsTypes[i] = domain.CredentialsType(ct)
	}

	return &svc, nil
}
