package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const selectProduct = `
SELECT p.id, p.category_id, p.name, COALESCE(p.description, ''), p.price::text, c.allow_discounts,
       p.infinite, p.infinite_payload, p.created_at
FROM products p
JOIN categories c ON c.id = p.category_id
`

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, selectProduct+`WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("product repo: get", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := r.pool.Query(ctx, selectProduct+`WHERE p.id = ANY($1)`, ids)
	if err != nil {
		r.logger.Error("product repo: get many", zap.Int("count", len(ids)), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = *p
	}
	return result, rows.Err()
}

func (r *postgresRepo) List(ctx context.Context, categoryID string) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, selectProduct+`WHERE ($1 = '' OR p.category_id = $1) ORDER BY p.name, p.id`, categoryID)
	if err != nil {
		r.logger.Error("product repo: list", zap.String("category_id", categoryID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *postgresRepo) UpsertCategory(ctx context.Context, c domain.Category) error {
	const q = `
INSERT INTO categories (id, name, allow_discounts)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    allow_discounts = EXCLUDED.allow_discounts
`
	_, err := r.pool.Exec(ctx, q, c.ID, c.Name, c.AllowDiscounts)
	return err
}

func (r *postgresRepo) Upsert(ctx context.Context, p domain.Product) (*domain.Product, error) {
	var infinitePayload []byte
	if p.InfinitePayload != nil {
		data, err := json.Marshal(p.InfinitePayload)
		if err != nil {
			return nil, err
		}
		infinitePayload = data
	}
	const q = `
INSERT INTO products (id, category_id, name, description, price, infinite, infinite_payload)
VALUES ($1, $2, $3, NULLIF($4, ''), $5::numeric, $6, $7)
ON CONFLICT (id) DO UPDATE
SET category_id = EXCLUDED.category_id,
    name = EXCLUDED.name,
    description = COALESCE(EXCLUDED.description, products.description),
    price = EXCLUDED.price,
    infinite = EXCLUDED.infinite,
    infinite_payload = EXCLUDED.infinite_payload
`
	if _, err := r.pool.Exec(ctx, q, p.ID, p.CategoryID, p.Name, p.Description, p.Price.String(), p.Infinite, infinitePayload); err != nil {
		return nil, fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return r.GetByID(ctx, p.ID)
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p        domain.Product
		price    string
		infinite []byte
	)
	if err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &price, &p.AllowDiscounts, &p.Infinite, &infinite, &p.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	if len(infinite) > 0 {
		var payload domain.StockPayload
		if err := json.Unmarshal(infinite, &payload); err != nil {
			return nil, fmt.Errorf("product %s infinite payload: %w", p.ID, err)
		}
		p.InfinitePayload = &payload
	}
	return &p, nil
}
