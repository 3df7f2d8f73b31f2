package customer

import (
	"context"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

// Repository persists loyalty profiles.
type Repository interface {
	// Get returns domain.ErrNotFound when the user never bought anything and was never referred.
	Get(ctx context.Context, userID int64) (*domain.Customer, error)
	Save(ctx context.Context, c domain.Customer) error
	// SetReferrer records who invited userID. It never overwrites an existing referrer.
	SetReferrer(ctx context.Context, userID, referrerID int64) error
}
