package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

const createdIndexKey = "intents:created"

// putScript stores the intent only if its key is free and indexes it in the
// same step, so a duplicate id never moves the existing index entry.
var putScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX") then
  redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
  return 1
end
return 0
`)

// RedisStore keeps each intent under its own key and indexes creation times
// in a sorted set for the stale sweep.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedis(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger}
}

func (r *RedisStore) Put(ctx context.Context, in domain.PaymentIntent) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal intent %s: %w", in.PaymentID, err)
	}
	keys := []string{intentKey(in.PaymentID), createdIndexKey}
	stored, err := putScript.Run(ctx, r.client, keys, data, in.CreatedAt.Unix(), in.PaymentID).Int()
	if err != nil {
		return fmt.Errorf("redis put failed: %w", err)
	}
	if stored == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *RedisStore) Take(ctx context.Context, paymentID string) (*domain.PaymentIntent, error) {
	pipe := r.client.TxPipeline()
	get := pipe.GetDel(ctx, intentKey(paymentID))
	rem := pipe.ZRem(ctx, createdIndexKey, paymentID)
	// Per-command results are read below; Exec only repeats the first one.
	_, _ = pipe.Exec(ctx)

	data, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel failed: %w", err)
	}
	// Once GETDEL has run the intent belongs to this caller. A leftover
	// index entry only makes a later sweep see a stale id.
	if err := rem.Err(); err != nil {
		r.logger.Warn("intent store: index cleanup failed", zap.String("payment_id", paymentID), zap.Error(err))
	}
	return decode(data)
}

func (r *RedisStore) Get(ctx context.Context, paymentID string) (*domain.PaymentIntent, error) {
	data, err := r.client.Get(ctx, intentKey(paymentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return decode(data)
}

func (r *RedisStore) ListStale(ctx context.Context, before time.Time) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, createdIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore failed: %w", err)
	}
	return ids, nil
}

func decode(data []byte) (*domain.PaymentIntent, error) {
	var in domain.PaymentIntent
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("unmarshal intent failed: %w", err)
	}
	return &in, nil
}

func intentKey(paymentID string) string {
	return fmt.Sprintf("intent:%s", paymentID)
}
