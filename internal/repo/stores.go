package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/envconf"
)

// Stores — набор хранилищ, который получают оркестратор, воркеры и CLI.
type Stores struct {
	Runs        RunStore
	Jobs        JobStore
	Hierarchies HierarchyStore
	Secrets     SecretStore
	Services    ServiceStore
}

// NewStores создаёт хранилища поверх пула PostgreSQL.
func NewStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Runs:        NewRunRepo(pool),
		Jobs:        NewJobRepo(pool),
		Hierarchies: NewHierarchyRepo(pool),
		Secrets:     NewSecretRepo(pool),
		Services:    NewServiceRepo(pool),
	}
}

// NewMemoryStores создаёт набор in-memory хранилищ.
func NewMemoryStores() Stores {
	return Stores{
		Runs:        NewMemoryRunStore(),
		Jobs:        NewMemoryJobStore(),
		Hierarchies: NewMemoryHierarchyStore(),
		Secrets:     NewMemorySecretStore(),
		Services:    NewMemoryServiceStore(),
	}
}

// NewStoresFromEnv выбирает бэкенд хранилищ по CONVEYOR_DB_BACKEND:
// "postgres" (по умолчанию, подключение по DB_URL) или "memory".
// Закрытие пула — через возвращаемую функцию; для memory она no-op.
func NewStoresFromEnv(ctx context.Context) (Stores, func(), error) {
	backend := envconf.String("CONVEYOR_DB_BACKEND", "postgres")
	switch backend {
	case "postgres":
		pool, err := NewPool(ctx)
		if err != nil {
			return Stores{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return NewStores(pool), pool.Close, nil
	case "memory":
		return NewMemoryStores(), func() {}, nil
	default:
		return Stores{}, nil, fmt.Errorf("unknown db backend: %q", backend)
	}
}
