package product

import (
	"context"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

// Repository reads the catalog. Products are returned joined with their
// category's discount flag.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error)
	// List returns the catalog ordered by name; an empty categoryID lists everything.
	List(ctx context.Context, categoryID string) ([]domain.Product, error)
	UpsertCategory(ctx context.Context, c domain.Category) error
	Upsert(ctx context.Context, p domain.Product) (*domain.Product, error)
}
