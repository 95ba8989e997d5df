package worker

import (
	"context"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/runctx"
)

// Result — полезная нагрузка успешного результата этапа.
type Result struct {
	// Issues — замечания, зафиксированные этапом.
	Issues []domain.Issue

	// ResolvedJobConfigs — проверенные конфигурации этапов.
	// Заполняет только analyzer; nil у остальных этапов.
	ResolvedJobConfigs *domain.JobConfigs

	// Reports — адреса отчётов, сохранённых этапом reporter.
	Reports []string
}

// StageHandler — логика одного этапа поверх контекста воркера.
//
// Execute получает контекст run, уже загруженный фабрикой. Возвращённая
// ошибка не валит процесс: цикл превращает её в результат-отказ с
// текстом ошибки.
type StageHandler interface {
	// Stage — этап, который обслуживает обработчик.
	Stage() domain.Stage

	// Execute выполняет этап.
	Execute(ctx context.Context, wc runctx.WorkerContext) (*Result, error)
}
