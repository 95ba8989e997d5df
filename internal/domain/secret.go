package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scope — уровень иерархии: организация, продукт или репозиторий.
// Используется для привязки секретов и инфраструктурных сервисов.
type Scope string

const (
	// ScopeOrganization — секрет виден всем продуктам организации.
	ScopeOrganization Scope = "organization"

	// ScopeProduct — секрет виден всем репозиториям продукта.
	ScopeProduct Scope = "product"

	// ScopeRepository — секрет виден только одному репозиторию.
	ScopeRepository Scope = "repository"
)

// Secret — объявление секрета на одном из уровней иерархии.
//
// Хранится только ссылка (Path) на значение во внешнем хранилище
// секретов. Само значение через доменную модель не проходит.
type Secret struct {
	// ID — уникальный идентификатор объявления.
	ID uuid.UUID `json:"id"`

	// Path — ссылка на значение в хранилище секретов.
	Path string `json:"path"`

	// Name — имя, по которому секрет ищут конфигурации окружения.
	// Уникально в пределах своего уровня иерархии.
	Name string `json:"name"`

	// Description — описание назначения секрета.
	Description string `json:"description,omitempty"`

	// Ровно одно из трёх полей ниже заполнено: оно задаёт уровень
	// иерархии, на котором объявлен секрет.
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	ProductID      *uuid.UUID `json:"product_id,omitempty"`
	RepositoryID   *uuid.UUID `json:"repository_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Scope возвращает уровень иерархии, на котором объявлен секрет.
func (s *Secret) Scope() Scope {
	switch {
	case s.RepositoryID != nil:
		return ScopeRepository
	case s.ProductID != nil:
		return ScopeProduct
	default:
		return ScopeOrganization
	}
}

// SecretPath строит ссылку на значение секрета в хранилище по соглашению
// "{scope}_{scopeId}_{name}". Так объявления, созданные на разных уровнях
// иерархии, никогда не пересекаются в хранилище.
func SecretPath(scope Scope, scopeID uuid.UUID, name string) string {
	return fmt.Sprintf("%s_%s_%s", scope, scopeID, name)
}
