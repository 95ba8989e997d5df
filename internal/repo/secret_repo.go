package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// SecretRepo — репозиторий объявлений секретов в PostgreSQL.
//
// Хранятся только объявления (имя, путь, уровень иерархии); значения
// живут во внешнем хранилище секретов.
type SecretRepo struct {
	pool *pgxpool.Pool
}

// NewSecretRepo создаёт новый SecretRepo.
func NewSecretRepo(pool *pgxpool.Pool) *SecretRepo {
	return &SecretRepo{pool: pool}
}

const secretColumns = `id, path, name, description, organization_id, product_id, repository_id, created_at`

// Create создаёт объявление секрета.
func (r *SecretRepo) Create(ctx context.Context, secret *domain.Secret) error {
	query := `
		INSERT INTO secrets (id, path, name, description,
		                     organization_id, product_id, repository_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		secret.ID,
		secret.Path,
		secret.Name,
		nullString(secret.Description),
		secret.OrganizationID,
		secret.ProductID,
		secret.RepositoryID,
		secret.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert secret: %w", err)
	}
	return nil
}

// ListByNames возвращает объявления секретов с указанными именами на одном
// уровне иерархии. Имена, для которых объявлений нет, в результат не
// попадают — недостающие имена считает вызывающая сторона.
func (r *SecretRepo) ListByNames(ctx context.Context, scope domain.Scope, scopeID uuid.UUID, names []string) (map[string]domain.Secret, error) {
	if len(names) == 0 {
		return map[string]domain.Secret{}, nil
	}

	var scopeColumn string
	switch scope {
	case domain.ScopeOrganization:
		scopeColumn = "organization_id"
	case domain.ScopeProduct:
		scopeColumn = "product_id"
	case domain.ScopeRepository:
		scopeColumn = "repository_id"
	default:
		return nil, fmt.Errorf("unknown scope: %q", scope)
	}

	query := `
		SELECT ` + secretColumns + `
		FROM secrets
		WHERE ` + scopeColumn + ` = $1 AND name = ANY($2)
	`
	rows, err := r.pool.Query(ctx, query, scopeID, names)
	if err != nil {
		return nil, fmt.Errorf("list secrets by names: %w", err)
	}
	defer rows.Close()

	result := make(map[string]domain.Secret)
	for rows.Next() {
		secret, err := scanSecret(rows)
		if err != nil {
			return nil, err
		}
		result[secret.Name] = *secret
	}
	return result, rows.Err()
}

// scanSecret сканирует одну строку в Secret.
func scanSecret(row pgx.Row) (*domain.Secret, error) {
	var secret domain.Secret
	var description *string

	err := row.Scan(
		&secret.ID,
		&secret.Path,
		&secret.Name,
		&description,
		&secret.OrganizationID,
		&secret.ProductID,
		&secret.RepositoryID,
		&secret.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan secret: %w", err)
	}

	if description != nil {
		secret.Description = *description
	}

	return &secret, nil
}
