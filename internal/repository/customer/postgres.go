package customer

import (
	"context"
	"errors"

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

func (r *postgresRepo) Get(ctx context.Context, userID int64) (*domain.Customer, error) {
	const q = `
SELECT user_id, referrer_id, streak, last_purchase_at, total_spent::text, level, tickets, created_at
FROM customers
WHERE user_id = $1
`
	var (
		c     domain.Customer
		spent string
	)
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&c.UserID,
		&c.ReferrerID,
		&c.Streak,
		&c.LastPurchaseAt,
		&spent,
		&c.Level,
		&c.Tickets,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("customer repo: get", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	if c.TotalSpent, err = decimal.NewFromString(spent); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *postgresRepo) Save(ctx context.Context, c domain.Customer) error {
	const q = `
INSERT INTO customers (user_id, referrer_id, streak, last_purchase_at, total_spent, level, tickets)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
ON CONFLICT (user_id) DO UPDATE
SET referrer_id = COALESCE(customers.referrer_id, EXCLUDED.referrer_id),
    streak = EXCLUDED.streak,
    last_purchase_at = EXCLUDED.last_purchase_at,
    total_spent = EXCLUDED.total_spent,
    level = EXCLUDED.level,
    tickets = EXCLUDED.tickets
`
	_, err := r.pool.Exec(ctx, q,
		c.UserID,
		c.ReferrerID,
		c.Streak,
		c.LastPurchaseAt,
		c.TotalSpent.String(),
		c.Level,
		c.Tickets,
	)
	return err
}

func (r *postgresRepo) SetReferrer(ctx context.Context, userID, referrerID int64) error {
	const q = `
INSERT INTO customers (user_id, referrer_id)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE
SET referrer_id = COALESCE(customers.referrer_id, EXCLUDED.referrer_id)
`
	_, err := r.pool.Exec(ctx, q, userID, referrerID)
	return err
}
