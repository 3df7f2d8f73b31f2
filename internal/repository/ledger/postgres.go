package ledger

import (
	"context"
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

func (r *postgresRepo) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var amount string
	err := r.pool.QueryRow(ctx, `SELECT amount::text FROM balances WHERE user_id = $1`, userID).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(amount)
}

func (r *postgresRepo) Adjust(ctx context.Context, userID int64, delta decimal.Decimal, kind domain.OperationKind, reference string) (decimal.Decimal, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	var balance string
	err = tx.QueryRow(ctx, `
INSERT INTO balances (user_id, amount)
VALUES ($1, $2::numeric)
ON CONFLICT (user_id) DO UPDATE
SET amount = balances.amount + EXCLUDED.amount,
    updated_at = now()
RETURNING amount::text
`, userID, delta.String()).Scan(&balance)
	if err != nil {
		r.logger.Error("ledger repo: adjust", zap.Int64("user_id", userID), zap.String("delta", delta.String()), zap.Error(err))
		return decimal.Zero, err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO ledger_operations (user_id, kind, amount, reference)
VALUES ($1, $2, $3::numeric, NULLIF($4, ''))
`, userID, string(kind), delta.String(), reference); err != nil {
		return decimal.Zero, fmt.Errorf("journal %s operation: %w", kind, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(balance)
}

func (r *postgresRepo) Hold(ctx context.Context, userID int64, limit decimal.Decimal, reference string) (decimal.Decimal, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT amount::text FROM balances WHERE user_id = $1 FOR UPDATE`, userID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := decimal.NewFromString(current)
	if err != nil {
		return decimal.Zero, err
	}
	held := holdable(balance, limit)
	if held.IsZero() {
		return decimal.Zero, nil
	}

	if _, err := tx.Exec(ctx, `
UPDATE balances SET amount = amount - $2::numeric, updated_at = now() WHERE user_id = $1
`, userID, held.String()); err != nil {
		r.logger.Error("ledger repo: hold", zap.Int64("user_id", userID), zap.String("held", held.String()), zap.Error(err))
		return decimal.Zero, err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO ledger_operations (user_id, kind, amount, reference)
VALUES ($1, $2, $3::numeric, NULLIF($4, ''))
`, userID, string(domain.OperationHold), held.Neg().String(), reference); err != nil {
		return decimal.Zero, fmt.Errorf("journal hold operation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}
	return held, nil
}

func (r *postgresRepo) Operations(ctx context.Context, userID int64) ([]domain.LedgerOperation, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, kind, amount::text, COALESCE(reference, ''), created_at
FROM ledger_operations
WHERE user_id = $1
ORDER BY id ASC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []domain.LedgerOperation
	for rows.Next() {
		var (
			op     domain.LedgerOperation
			kind   string
			amount string
		)
		if err := rows.Scan(&op.ID, &op.UserID, &kind, &amount, &op.Reference, &op.CreatedAt); err != nil {
			return nil, err
		}
		op.Kind = domain.OperationKind(kind)
		if op.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
