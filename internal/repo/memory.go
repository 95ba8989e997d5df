package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// In-memory реализации хранилищ. Используются в тестах и в dev-режиме
// (CONVEYOR_DB_BACKEND=memory), когда процесс поднимается без PostgreSQL.
// Семантика повторяет pgx-реализации: возвращаются копии записей,
// чтобы вызывающая сторона не могла изменить состояние хранилища мимо Update.

// MemoryRunStore — RunStore в памяти.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]domain.Run
}

// NewMemoryRunStore создаёт пустой MemoryRunStore.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[uuid.UUID]domain.Run)}
}

func (s *MemoryRunStore) Create(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return ErrAlreadyExists
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryRunStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

// Update перезаписывает run. Как и pgx-реализация, отказывается трогать
// run в терминальном статусе: устаревшая копия не воскрешает отменённый
// или завершённый run.
func (s *MemoryRunStore) Update(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[run.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status.IsTerminal() {
		return fmt.Errorf("run is already %s: %w", stored.Status, ErrInvalidState)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryRunStore) List(_ context.Context, filter RunFilter) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []domain.Run
	for _, run := range s.runs {
		if filter.RepositoryID != nil && run.RepositoryID != *filter.RepositoryID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(runs) {
			return nil, nil
		}
		runs = runs[filter.Offset:]
	}
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// MemoryJobStore — JobStore в памяти.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]domain.Job
}

// NewMemoryJobStore создаёт пустой MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]domain.Job)}
}

func (s *MemoryJobStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrAlreadyExists
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryJobStore) GetScheduled(_ context.Context, runID uuid.UUID, stage domain.Stage) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.RunID == runID && job.Stage == stage && job.Status == domain.JobStatusScheduled {
			j := job
			return &j, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryJobStore) Update(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryJobStore) ListByRun(_ context.Context, runID uuid.UUID) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []domain.Job
	for _, job := range s.jobs {
		if job.RunID == runID {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *MemoryJobStore) ListStale(_ context.Context, olderThan time.Time) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusScheduled && job.CreatedAt.Before(olderThan) {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// MemoryHierarchyStore — HierarchyStore в памяти.
type MemoryHierarchyStore struct {
	mu            sync.RWMutex
	organizations map[uuid.UUID]domain.Organization
	products      map[uuid.UUID]domain.Product
	repositories  map[uuid.UUID]domain.Repository
}

// NewMemoryHierarchyStore создаёт пустой MemoryHierarchyStore.
func NewMemoryHierarchyStore() *MemoryHierarchyStore {
	return &MemoryHierarchyStore{
		organizations: make(map[uuid.UUID]domain.Organization),
		products:      make(map[uuid.UUID]domain.Product),
		repositories:  make(map[uuid.UUID]domain.Repository),
	}
}

func (s *MemoryHierarchyStore) CreateOrganization(_ context.Context, org *domain.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.ID]; exists {
		return ErrAlreadyExists
	}
	s.organizations[org.ID] = *org
	return nil
}

func (s *MemoryHierarchyStore) CreateProduct(_ context.Context, product *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.organizations[product.OrganizationID]; !ok {
		return ErrNotFound
	}
	if _, exists := s.products[product.ID]; exists {
		return ErrAlreadyExists
	}
	s.products[product.ID] = *product
	return nil
}

func (s *MemoryHierarchyStore) CreateRepository(_ context.Context, repository *domain.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[repository.ProductID]; !ok {
		return ErrNotFound
	}
	if _, exists := s.repositories[repository.ID]; exists {
		return ErrAlreadyExists
	}
	s.repositories[repository.ID] = *repository
	return nil
}

func (s *MemoryHierarchyStore) GetHierarchy(_ context.Context, repositoryID uuid.UUID) (*domain.Hierarchy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repository, ok := s.repositories[repositoryID]
	if !ok {
		return nil, ErrNotFound
	}
	product, ok := s.products[repository.ProductID]
	if !ok {
		return nil, ErrNotFound
	}
	org, ok := s.organizations[product.OrganizationID]
	if !ok {
		return nil, ErrNotFound
	}

	return &domain.Hierarchy{
		Repository:   repository,
		Product:      product,
		Organization: org,
	}, nil
}

// MemorySecretStore — SecretStore в памяти.
type MemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[uuid.UUID]domain.Secret
}

// NewMemorySecretStore создаёт пустой MemorySecretStore.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{secrets: make(map[uuid.UUID]domain.Secret)}
}

func (s *MemorySecretStore) Create(_ context.Context, secret *domain.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.secrets {
		if existing.Name == secret.Name && sameScope(&existing, secret) {
			return ErrAlreadyExists
		}
	}
	s.secrets[secret.ID] = *secret
	return nil
}

func (s *MemorySecretStore) ListByNames(_ context.Context, scope domain.Scope, scopeID uuid.UUID, names []string) (map[string]domain.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	result := make(map[string]domain.Secret)
	for _, secret := range s.secrets {
		if !wanted[secret.Name] {
			continue
		}
		if secret.Scope() != scope || scopeOwner(&secret) != scopeID {
			continue
		}
		result[secret.Name] = secret
	}
	return result, nil
}

func sameScope(a, b *domain.Secret) bool {
	return a.Scope() == b.Scope() && scopeOwner(a) == scopeOwner(b)
}

func scopeOwner(s *domain.Secret) uuid.UUID {
	switch {
	case s.RepositoryID != nil:
		return *s.RepositoryID
	case s.ProductID != nil:
		return *s.ProductID
	case s.OrganizationID != nil:
		return *s.OrganizationID
	default:
		return uuid.Nil
	}
}

// MemoryServiceStore — ServiceStore в памяти.
type MemoryServiceStore struct {
	mu             sync.RWMutex
	byProduct      map[uuid.UUID][]domain.InfrastructureService
	byOrganization map[uuid.UUID][]domain.InfrastructureService
}

// NewMemoryServiceStore создаёт пустой MemoryServiceStore.
func NewMemoryServiceStore() *MemoryServiceStore {
	return &MemoryServiceStore{
		byProduct:      make(map[uuid.UUID][]domain.InfrastructureService),
		byOrganization: make(map[uuid.UUID][]domain.InfrastructureService),
	}
}

func (s *MemoryServiceStore) Create(_ context.Context, svc *domain.InfrastructureService, scope domain.Scope, scopeID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch scope {
	case domain.ScopeProduct:
		for _, existing := range s.byProduct[scopeID] {
			if existing.Name == svc.Name {
				return ErrAlreadyExists
			}
		}
		s.byProduct[scopeID] = append(s.byProduct[scopeID], *svc)
	case domain.ScopeOrganization:
		for _, existing := range s.byOrganization[scopeID] {
			if existing.Name == svc.Name {
				return ErrAlreadyExists
			}
		}
		s.byOrganization[scopeID] = append(s.byOrganization[scopeID], *svc)
	default:
		return ErrInvalidState
	}
	return nil
}

func (s *MemoryServiceStore) ListForProduct(_ context.Context, productID uuid.UUID) ([]domain.InfrastructureService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.InfrastructureService, len(s.byProduct[productID]))
	copy(services, s.byProduct[productID])
	return services, nil
}

func (s *MemoryServiceStore) ListForOrganization(_ context.Context, organizationID uuid.UUID) ([]domain.InfrastructureService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.InfrastructureService, len(s.byOrganization[organizationID]))
	copy(services, s.byOrganization[organizationID])
	return services, nil
}

// Проверки соответствия интерфейсам.
var (
	_ RunStore       = (*RunRepo)(nil)
	_ RunStore       = (*MemoryRunStore)(nil)
	_ JobStore       = (*JobRepo)(nil)
	_ JobStore       = (*MemoryJobStore)(nil)
	_ HierarchyStore = (*HierarchyRepo)(nil)
	_ HierarchyStore = (*MemoryHierarchyStore)(nil)
	_ SecretStore    = (*SecretRepo)(nil)
	_ SecretStore    = (*MemorySecretStore)(nil)
	_ ServiceStore   = (*ServiceRepo)(nil)
	_ ServiceStore   = (*MemoryServiceStore)(nil)
)
