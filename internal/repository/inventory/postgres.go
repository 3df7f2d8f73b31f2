package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
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

func (r *postgresRepo) Take(ctx context.Context, productID string) (domain.StockItem, error) {
	const q = `
DELETE FROM stock_items
WHERE id = (
	SELECT id
	FROM stock_items
	WHERE product_id = $1
	ORDER BY id
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, product_id, payload
`
	item, err := scanItem(r.pool.QueryRow(ctx, q, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StockItem{}, domain.ErrOutOfStock
		}
		r.logger.Error("inventory repo: take", zap.String("product_id", productID), zap.Error(err))
		return domain.StockItem{}, err
	}
	return item, nil
}

func (r *postgresRepo) Release(ctx context.Context, item domain.StockItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO stock_items (id, product_id, payload)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING
`
	if _, err := r.pool.Exec(ctx, q, item.ID, item.ProductID, payload); err != nil {
		r.logger.Error("inventory repo: release", zap.Int64("stock_id", item.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *postgresRepo) Add(ctx context.Context, productID string, payload domain.StockPayload) (domain.StockItem, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.StockItem{}, err
	}
	const q = `
INSERT INTO stock_items (product_id, payload)
VALUES ($1, $2)
RETURNING id, product_id, payload
`
	return scanItem(r.pool.QueryRow(ctx, q, productID, data))
}

func (r *postgresRepo) Count(ctx context.Context, productID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_items WHERE product_id = $1`, productID).Scan(&n)
	return n, err
}

func (r *postgresRepo) List(ctx context.Context, productID string) ([]domain.StockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, payload FROM stock_items WHERE product_id = $1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.StockItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *postgresRepo) Archive(ctx context.Context, sale domain.Sale) error {
	payload, err := json.Marshal(sale.Payload)
	if err != nil {
		return err
	}
	var stockID *int64
	if sale.StockID != 0 {
		stockID = &sale.StockID
	}
	const q = `
INSERT INTO sold_items (stock_id, product_id, buyer_id, payment_id, payload, price, sold_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
`
	if _, err := r.pool.Exec(ctx, q, stockID, sale.ProductID, sale.BuyerID, sale.PaymentID, payload, sale.Price.String(), sale.SoldAt); err != nil {
		return fmt.Errorf("archive sale of %s: %w", sale.ProductID, err)
	}
	return nil
}

func (r *postgresRepo) Subscribe(ctx context.Context, productID string, userID int64) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO restock_subscriptions (product_id, user_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`, productID, userID)
	return err
}

func (r *postgresRepo) TakeSubscribers(ctx context.Context, productID string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `DELETE FROM restock_subscriptions WHERE product_id = $1 RETURNING user_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func scanItem(row pgx.Row) (domain.StockItem, error) {
	var (
		item    domain.StockItem
		payload []byte
	)
	if err := row.Scan(&item.ID, &item.ProductID, &payload); err != nil {
		return domain.StockItem{}, err
	}
	if err := json.Unmarshal(payload, &item.Payload); err != nil {
		return domain.StockItem{}, fmt.Errorf("stock %d payload: %w", item.ID, err)
	}
	return item, nil
}
