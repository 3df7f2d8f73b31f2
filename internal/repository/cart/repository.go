package cart

import (
	"context"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

// Repository stores per-user cart lines and the promo code held for the cart.
type Repository interface {
	Lines(ctx context.Context, userID int64) ([]domain.CartLine, error)
	AddItem(ctx context.Context, userID int64, productID string, quantity int) error
	// SetQuantity deletes the line when quantity is zero or negative.
	SetQuantity(ctx context.Context, userID int64, productID string, quantity int) error
	Remove(ctx context.Context, userID int64, productID string) error
	// Clear removes every line and the held promo.
	Clear(ctx context.Context, userID int64) error
	PromoCode(ctx context.Context, userID int64) (string, error)
	SetPromo(ctx context.Context, userID int64, code string) error
	ClearPromo(ctx context.Context, userID int64) error
}
