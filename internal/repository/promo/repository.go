package promo

import (
	"context"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type Repository interface {
	GetByCode(ctx context.Context, code string) (*domain.Promo, error)
	Upsert(ctx context.Context, p domain.Promo) error
}
