package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) GetByCode(ctx context.Context, code string) (*domain.Promo, error) {
	const q = `
SELECT code, percent::text, products, expires_at
FROM promos
WHERE code = $1
`
	var (
		p       domain.Promo
		percent string
	)
	err := r.pool.QueryRow(ctx, q, strings.ToUpper(strings.TrimSpace(code))).Scan(&p.Code, &percent, &p.Products, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if p.Percent, err = decimal.NewFromString(percent); err != nil {
		return nil, fmt.Errorf("promo %s percent: %w", p.Code, err)
	}
	return &p, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, p domain.Promo) error {
	products := p.Products
	if products == nil {
		products = []string{}
	}
	const q = `
INSERT INTO promos (code, percent, products, expires_at)
VALUES ($1, $2::numeric, $3, $4)
ON CONFLICT (code) DO UPDATE
SET percent = EXCLUDED.percent,
    products = EXCLUDED.products,
    expires_at = EXCLUDED.expires_at
`
	_, err := r.pool.Exec(ctx, q, strings.ToUpper(p.Code), p.Percent.String(), products, p.ExpiresAt)
	return err
}
