package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// HierarchyRepo — репозиторий иерархии organization → product → repository
// в PostgreSQL.
type HierarchyRepo struct {
	pool *pgxpool.Pool
}

// NewHierarchyRepo создаёт новый HierarchyRepo.
func NewHierarchyRepo(pool *pgxpool.Pool) *HierarchyRepo {
	return &HierarchyRepo{pool: pool}
}

// CreateOrganization создаёт организацию.
func (r *HierarchyRepo) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	query := `
		INSERT INTO organizations (id, name, description, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		org.ID,
		org.Name,
		nullString(org.Description),
		org.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

// CreateProduct создаёт продукт внутри организации.
func (r *HierarchyRepo) CreateProduct(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, organization_id, name, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		product.ID,
		product.OrganizationID,
		product.Name,
		nullString(product.Description),
		product.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// CreateRepository создаёт репозиторий внутри продукта.
func (r *HierarchyRepo) CreateRepository(ctx context.Context, repository *domain.Repository) error {
	query := `
		INSERT INTO repositories (id, product_id, url, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		repository.ID,
		repository.ProductID,
		repository.URL,
		repository.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert repository: %w", err)
	}
	return nil
}

// GetHierarchy возвращает полную цепочку repository → product → organization.
func (r *HierarchyRepo) GetHierarchy(ctx context.Context, repositoryID uuid.UUID) (*domain.Hierarchy, error) {
	query := `
		SELECT rep.id, rep.product_id, rep.url, rep.created_at,
		       p.id, p.organization_id, p.name, p.description, p.created_at,
		       o.id, o.name, o.description, o.created_at
		FROM repositories rep
		JOIN products p ON p.id = rep.product_id
		JOIN organizations o ON o.id = p.organization_id
		WHERE rep.id = $1
	`

	var h domain.Hierarchy
	var productDescription, orgDescription *string

	err := r.pool.QueryRow(ctx, query, repositoryID).Scan(
		&h.Repository.ID,
		&h.Repository.ProductID,
		&h.Repository.URL,
		&h.Repository.CreatedAt,
		&h.Product.ID,
		&h.Product.OrganizationID,
		&h.Product.Name,
		&productDescription,
		&h.Product.CreatedAt,
		&h.Organization.ID,
		&h.Organization.Name,
		&orgDescription,
		&h.Organization.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan hierarchy: %w", err)
	}

	if productDescription != nil {
		h.Product.Description = *productDescription
	}
	if orgDescription != nil {
		h.Organization.Description = *orgDescription
	}

	return &h, nil
}
