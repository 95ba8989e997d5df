// Package repo — хранилища состояния конвейера.
//
// Интерфейсы Store описывают операции, которые нужны оркестратору,
// контексту воркера и CLI. Основная реализация — PostgreSQL (pgx),
// in-memory реализация используется в тестах и dev-режиме.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RunStore — операции над run.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	Update(ctx context.Context, run *domain.Run) error
	List(ctx context.Context, filter RunFilter) ([]domain.Run, error)
}

// JobStore — операции над заданиями этапов.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	// GetScheduled возвращает открытое задание этапа для run.
	// ErrNotFound означает, что запрос этапа не отправлялся либо
	// результат по нему уже обработан.
	GetScheduled(ctx context.Context, runID uuid.UUID, stage domain.Stage) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.Job, error)
	// ListStale возвращает задания, открытые раньше указанного момента.
	ListStale(ctx context.Context, olderThan time.Time) ([]domain.Job, error)
}

// HierarchyStore — операции над иерархией organization → product → repository.
type HierarchyStore interface {
	CreateOrganization(ctx context.Context, org *domain.Organization) error
	CreateProduct(ctx context.Context, product *domain.Product) error
	CreateRepository(ctx context.Context, repository *domain.Repository) error
	// GetHierarchy возвращает полную цепочку для репозитория.
	GetHierarchy(ctx context.Context, repositoryID uuid.UUID) (*domain.Hierarchy, error)
}

// SecretStore — операции над объявлениями секретов.
type SecretStore interface {
	Create(ctx context.Context, secret *domain.Secret) error
	// ListByNames возвращает объявления с указанными именами на одном
	// уровне иерархии. Ненайденные имена в результат не попадают.
	ListByNames(ctx context.Context, scope domain.Scope, scopeID uuid.UUID, names []string) (map[string]domain.Secret, error)
}

// ServiceStore — операции над инфраструктурными сервисами.
type ServiceStore interface {
	Create(ctx context.Context, svc *domain.InfrastructureService, scope domain.Scope, scopeID uuid.UUID) error
	ListForProduct(ctx context.Context, productID uuid.UUID) ([]domain.InfrastructureService, error)
	ListForOrganization(ctx context.Context, organizationID uuid.UUID) ([]domain.InfrastructureService, error)
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	RepositoryID *uuid.UUID
	Status       domain.RunStatus
	Limit        int
	Offset       int
}
