package cart

import (
	"context"
	"errors"
	"fmt"

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

func (r *postgresRepo) Lines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	const q = `
SELECT l.product_id, p.name, p.price::text, l.quantity, c.allow_discounts, l.added_at
FROM cart_lines l
JOIN products p ON p.id = l.product_id
JOIN categories c ON c.id = p.category_id
WHERE l.user_id = $1
ORDER BY l.added_at ASC, l.product_id ASC
`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var (
			line  domain.CartLine
			price string
		)
		if err := rows.Scan(&line.ProductID, &line.Name, &price, &line.Quantity, &line.AllowDiscounts, &line.AddedAt); err != nil {
			return nil, err
		}
		if line.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("cart line %s price: %w", line.ProductID, err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *postgresRepo) AddItem(ctx context.Context, userID int64, productID string, quantity int) error {
	const q = `
INSERT INTO cart_lines (user_id, product_id, quantity)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, product_id) DO UPDATE
SET quantity = cart_lines.quantity + EXCLUDED.quantity
`
	_, err := r.pool.Exec(ctx, q, userID, productID, quantity)
	return err
}

func (r *postgresRepo) SetQuantity(ctx context.Context, userID int64, productID string, quantity int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if quantity <= 0 {
		cmd, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`, userID, productID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
	} else {
		cmd, err := tx.Exec(ctx, `
UPDATE cart_lines
SET quantity = $1
WHERE user_id = $2 AND product_id = $3
`, quantity, userID, productID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
	}

	if err := dropPromoIfEmpty(ctx, tx, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) Remove(ctx context.Context, userID int64, productID string) error {
	return r.SetQuantity(ctx, userID, productID, 0)
}

func (r *postgresRepo) Clear(ctx context.Context, userID int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_promos WHERE user_id = $1`, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) PromoCode(ctx context.Context, userID int64) (string, error) {
	var code string
	err := r.pool.QueryRow(ctx, `SELECT code FROM cart_promos WHERE user_id = $1`, userID).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return code, nil
}

func (r *postgresRepo) SetPromo(ctx context.Context, userID int64, code string) error {
	const q = `
INSERT INTO cart_promos (user_id, code)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE
SET code = EXCLUDED.code,
    applied_at = now()
`
	_, err := r.pool.Exec(ctx, q, userID, code)
	return err
}

func (r *postgresRepo) ClearPromo(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_promos WHERE user_id = $1`, userID)
	return err
}

// dropPromoIfEmpty releases the held promo once the last line is gone.
func dropPromoIfEmpty(ctx context.Context, tx pgx.Tx, userID int64) error {
	_, err := tx.Exec(ctx, `
DELETE FROM cart_promos
WHERE user_id = $1
  AND NOT EXISTS (SELECT 1 FROM cart_lines WHERE user_id = $1)
`, userID)
	return err
}
