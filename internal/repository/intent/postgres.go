package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type postgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresStore{pool: pool, logger: logger}
}

func (s *postgresStore) Put(ctx context.Context, in domain.PaymentIntent) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal intent %s: %w", in.PaymentID, err)
	}
	const q = `
INSERT INTO payment_intents (payment_id, user_id, payload, created_at)
VALUES ($1, $2, $3, $4)
`
	if _, err := s.pool.Exec(ctx, q, in.PaymentID, in.UserID, payload, in.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		s.logger.Error("intent store: put", zap.String("payment_id", in.PaymentID), zap.Error(err))
		return err
	}
	return nil
}

func (s *postgresStore) Take(ctx context.Context, paymentID string) (*domain.PaymentIntent, error) {
	const q = `DELETE FROM payment_intents WHERE payment_id = $1 RETURNING payload`
	return decodeRow(s.pool.QueryRow(ctx, q, paymentID))
}

func (s *postgresStore) Get(ctx context.Context, paymentID string) (*domain.PaymentIntent, error) {
	const q = `SELECT payload FROM payment_intents WHERE payment_id = $1`
	return decodeRow(s.pool.QueryRow(ctx, q, paymentID))
}

func (s *postgresStore) ListStale(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT payment_id FROM payment_intents
WHERE created_at < $1
ORDER BY created_at ASC
`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func decodeRow(row pgx.Row) (*domain.PaymentIntent, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var in domain.PaymentIntent
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("unmarshal intent: %w", err)
	}
	return &in, nil
}
