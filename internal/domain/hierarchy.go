package domain

import (
	"time"

	"github.com/google/uuid"
)

// Organization — организация, верхний уровень иерархии.
type Organization struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Product — продукт внутри организации.
type Product struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repository — анализируемый репозиторий внутри продукта.
type Repository struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Hierarchy — полная цепочка repository → product → organization для
// одного run. Фиксируется при создании контекста воркера и не меняется
// за время выполнения.
type Hierarchy struct {
	Repository   Repository   `json:"repository"`
	Product      Product      `json:"product"`
	Organization Organization `json:"organization"`
}
