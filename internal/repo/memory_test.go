package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestMemoryRunStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRunStore()

	run := &domain.Run{
		ID:           uuid.New(),
		RepositoryID: uuid.New(),
		Revision:     "main",
		Status:       domain.RunStatusCreated,
		CreatedAt:    time.Now(),
	}

	if err := store.Create(ctx, run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Create(ctx, run); err != ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := store.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Revision != "main" {
		t.Errorf("unexpected revision: %s", got.Revision)
	}

	// The store must hand out copies: mutating the result must not
	// change stored state until Update is called.
	got.Status = domain.RunStatusActive
	fresh, _ := store.GetByID(ctx, run.ID)
	if fresh.Status != domain.RunStatusCreated {
		t.Error("stored run mutated without Update")
	}

	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh, _ = store.GetByID(ctx, run.ID)
	if fresh.Status != domain.RunStatusActive {
		t.Errorf("expected ACTIVE after update, got %s", fresh.Status)
	}

	if _, err := store.GetByID(ctx, uuid.New()); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRunStore_UpdateKeepsTerminalStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRunStore()

	run := &domain.Run{
		ID:           uuid.New(),
		RepositoryID: uuid.New(),
		Revision:     "main",
		Status:       domain.RunStatusActive,
		CreatedAt:    time.Now(),
	}
	if err := store.Create(ctx, run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A copy read before the cancellation below.
	stale, err := store.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelled, err := store.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancelled.MarkCancelled()
	if err := store.Update(ctx, cancelled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Writing the stale ACTIVE copy back must not resurrect the run.
	stale.MarkFinished()
	if err := store.Update(ctx, stale); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}

	fresh, err := store.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh.Status != domain.RunStatusCancelled {
		t.Errorf("cancel lost: run status is %s, want CANCELLED", fresh.Status)
	}
}

func TestMemoryRunStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRunStore()
	repoID := uuid.New()

	for i := 0; i < 3; i++ {
		run := &domain.Run{
			ID:           uuid.New(),
			RepositoryID: repoID,
			Status:       domain.RunStatusCreated,
			CreatedAt:    time.Now().Add(time.Duration(i) * time.Second),
		}
		if i == 2 {
			run.RepositoryID = uuid.New()
		}
		if err := store.Create(ctx, run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	runs, err := store.List(ctx, RunFilter{RepositoryID: &repoID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs for repository, got %d", len(runs))
	}

	runs, _ = store.List(ctx, RunFilter{Limit: 1})
	if len(runs) != 1 {
		t.Errorf("expected 1 run with limit, got %d", len(runs))
	}
}

func TestMemoryJobStore_GetScheduled(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	runID := uuid.New()

	job := &domain.Job{
		ID:        uuid.New(),
		RunID:     runID,
		Stage:     domain.StageAnalyzer,
		Status:    domain.JobStatusScheduled,
		CreatedAt: time.Now(),
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.GetScheduled(ctx, runID, domain.StageAnalyzer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != job.ID {
		t.Error("wrong job returned")
	}

	// No open job for another stage.
	if _, err := store.GetScheduled(ctx, runID, domain.StageScanner); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// A finished job is no longer scheduled.
	got.MarkFinished()
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.GetScheduled(ctx, runID, domain.StageAnalyzer); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after finish, got %v", err)
	}
}

func TestMemoryJobStore_ListStale(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	old := &domain.Job{
		ID:        uuid.New(),
		RunID:     uuid.New(),
		Stage:     domain.StageAnalyzer,
		Status:    domain.JobStatusScheduled,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	recent := &domain.Job{
		ID:        uuid.New(),
		RunID:     uuid.New(),
		Stage:     domain.StageScanner,
		Status:    domain.JobStatusScheduled,
		CreatedAt: time.Now(),
	}
	_ = store.Create(ctx, old)
	_ = store.Create(ctx, recent)

	stale, err := store.ListStale(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Errorf("expected only the old job, got %d jobs", len(stale))
	}
}

func TestMemoryHierarchyStore_GetHierarchy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHierarchyStore()

	org := &domain.Organization{ID: uuid.New(), Name: "acme"}
	product := &domain.Product{ID: uuid.New(), OrganizationID: org.ID, Name: "platform"}
	repository := &domain.Repository{ID: uuid.New(), ProductID: product.ID, URL: "https://git.acme.test/platform/core.git"}

	if err := store.CreateOrganization(ctx, org); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.CreateProduct(ctx, product); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.CreateRepository(ctx, repository); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h, err := store.GetHierarchy(ctx, repository.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Organization.Name != "acme" || h.Product.Name != "platform" {
		t.Error("hierarchy chain incomplete")
	}

	if _, err := store.GetHierarchy(ctx, uuid.New()); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// A product cannot reference a missing organization.
	orphan := &domain.Product{ID: uuid.New(), OrganizationID: uuid.New(), Name: "orphan"}
	if err := store.CreateProduct(ctx, orphan); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for orphan product, got %v", err)
	}
}

func TestMemorySecretStore_ListByNames(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySecretStore()
	repoID := uuid.New()
	orgID := uuid.New()

	repoSecret := &domain.Secret{
		ID:           uuid.New(),
		Name:         "npmToken",
		Path:         domain.SecretPath(domain.ScopeRepository, repoID, "npmToken"),
		RepositoryID: &repoID,
	}
	orgSecret := &domain.Secret{
		ID:             uuid.New(),
		Name:           "npmToken",
		Path:           domain.SecretPath(domain.ScopeOrganization, orgID, "npmToken"),
		OrganizationID: &orgID,
	}
	if err := store.Create(ctx, repoSecret); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Create(ctx, orgSecret); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same name on the same scope conflicts.
	dup := &domain.Secret{ID: uuid.New(), Name: "npmToken", RepositoryID: &repoID}
	if err := store.Create(ctx, dup); err != ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	found, err := store.ListByNames(ctx, domain.ScopeRepository, repoID, []string{"npmToken", "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 secret, got %d", len(found))
	}
	if found["npmToken"].Path != repoSecret.Path {
		t.Error("repository-scoped secret expected")
	}

	// Organization scope sees its own declaration only.
	found, _ = store.ListByNames(ctx, domain.ScopeOrganization, orgID, []string{"npmToken"})
	if found["npmToken"].Path != orgSecret.Path {
		t.Error("organization-scoped secret expected")
	}
}

func TestMemoryServiceStore_Scopes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryServiceStore()
	productID := uuid.New()
	orgID := uuid.New()

	svc := &domain.InfrastructureService{Name: "artifactory", URL: "https://artifactory.acme.test"}
	if err := store.Create(ctx, svc, domain.ScopeProduct, productID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Create(ctx, svc, domain.ScopeProduct, productID); err != ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if err := store.Create(ctx, svc, domain.ScopeRepository, uuid.New()); err != ErrInvalidState {
		t.Errorf("expected ErrInvalidState for repository scope, got %v", err)
	}

	services, err := store.ListForProduct(ctx, productID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(services) != 1 || services[0].Name != "artifactory" {
		t.Error("product services incomplete")
	}

	services, _ = store.ListForOrganization(ctx, orgID)
	if len(services) != 0 {
		t.Error("organization scope should be empty")
	}
}
