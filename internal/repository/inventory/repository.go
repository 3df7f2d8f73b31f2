package inventory

import (
	"context"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

// Repository owns the sellable pool of finite stock units.
type Repository interface {
	// Take atomically removes one unit of the product from the pool.
	// It returns domain.ErrOutOfStock when the pool is empty.
	Take(ctx context.Context, productID string) (domain.StockItem, error)
	// Release puts a previously taken unit back with its original id and payload.
	Release(ctx context.Context, item domain.StockItem) error
	Add(ctx context.Context, productID string, payload domain.StockPayload) (domain.StockItem, error)
	Count(ctx context.Context, productID string) (int, error)
	List(ctx context.Context, productID string) ([]domain.StockItem, error)
	// Archive records a consumed unit in the sold archive.
	Archive(ctx context.Context, sale domain.Sale) error
	Subscribe(ctx context.Context, productID string, userID int64) error
	// TakeSubscribers returns and clears the restock subscribers of a product.
	TakeSubscribers(ctx context.Context, productID string) ([]int64, error)
}
