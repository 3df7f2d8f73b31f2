package intent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereal21/zxczxcz-sub000/internal/db/dbtest"
	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
)

func setupRedis(t *testing.T) *RedisStore {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, nil)
}

func sampleIntent(id string, created time.Time) domain.PaymentIntent {
	return domain.PaymentIntent{
		PaymentID:  id,
		CheckoutID: "chk-" + id,
		UserID:     42,
		Units: []domain.ReservedUnit{
			{ProductID: "p1", StockID: 9, Payload: domain.TextPayload("code-1"), Amount: money.MustParse("9.99")},
		},
		Total:       money.MustParse("9.99"),
		BalanceUsed: money.MustParse("1.00"),
		CreatedAt:   created,
	}
}

// takeOnce races n takers and returns how many received the intent.
func takeOnce(t *testing.T, store Store, id string, n int) int64 {
	t.Helper()
	var (
		wg   sync.WaitGroup
		wins atomic.Int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in, err := store.Take(context.Background(), id)
			if err == nil {
				assert.Equal(t, id, in.PaymentID)
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrNotFound)
		}()
	}
	wg.Wait()
	return wins.Load()
}

func TestStores_TakeIsExactlyOnce(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"redis":  func(t *testing.T) Store { return setupRedis(t) },
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			store := mk(t)
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, sampleIntent("pay-1", time.Now())))

			got, err := store.Get(ctx, "pay-1")
			require.NoError(t, err)
			assert.Equal(t, "9.99", money.Format(got.Total))
			assert.Equal(t, "8.99", money.Format(got.AmountDue()))

			assert.Equal(t, int64(1), takeOnce(t, store, "pay-1", 16))

			_, err = store.Get(ctx, "pay-1")
			assert.True(t, errors.Is(err, domain.ErrNotFound))
		})
	}
}

func TestRedis_RoundTripPreservesUnits(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, sampleIntent("pay-2", time.Now())))

	got, err := store.Take(ctx, "pay-2")
	require.NoError(t, err)
	require.Len(t, got.Units, 1)
	assert.Equal(t, domain.PayloadText, got.Units[0].Payload.Kind)
	assert.Equal(t, "code-1", got.Units[0].Payload.Value)
	assert.Equal(t, int64(9), got.Units[0].StockID)
}

func TestRedis_ListStale(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Put(ctx, sampleIntent("old", now.Add(-2*time.Hour))))
	require.NoError(t, store.Put(ctx, sampleIntent("new", now)))

	ids, err := store.ListStale(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)

	_, err = store.Take(ctx, "old")
	require.NoError(t, err)
	ids, err = store.ListStale(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStores_PutRejectsDuplicateID(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"redis":  func(t *testing.T) Store { return setupRedis(t) },
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			store := mk(t)
			ctx := context.Background()
			old := time.Now().Add(-2 * time.Hour)
			require.NoError(t, store.Put(ctx, sampleIntent("dup", old)))

			second := sampleIntent("dup", time.Now())
			second.UserID = 7
			assert.ErrorIs(t, store.Put(ctx, second), domain.ErrAlreadyExists)

			got, err := store.Get(ctx, "dup")
			require.NoError(t, err)
			assert.Equal(t, int64(42), got.UserID, "first intent kept")
			ids, err := store.ListStale(ctx, time.Now().Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, []string{"dup"}, ids, "index keeps the original creation time")
		})
	}
}

func TestRedis_TakeSurvivesIndexFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedis(client, nil)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, sampleIntent("pay-3", time.Now())))

	// Replace the index with a plain string so ZREM fails with WRONGTYPE.
	mr.Del(createdIndexKey)
	require.NoError(t, mr.Set(createdIndexKey, "broken"))

	got, err := store.Take(ctx, "pay-3")
	require.NoError(t, err)
	assert.Equal(t, "pay-3", got.PaymentID)

	_, err = store.Take(ctx, "pay-3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemory_ListStaleOldestFirst(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Put(ctx, sampleIntent("b", now.Add(-time.Hour))))
	require.NoError(t, store.Put(ctx, sampleIntent("a", now.Add(-2*time.Hour))))
	require.NoError(t, store.Put(ctx, sampleIntent("c", now)))

	ids, err := store.ListStale(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestPostgres_TakeIsExactlyOnce(t *testing.T) {
	store := NewPostgres(dbtest.Pool(t), nil)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, sampleIntent("pay-pg", time.Now().Add(-time.Hour))))
	assert.ErrorIs(t, store.Put(ctx, sampleIntent("pay-pg", time.Now())), domain.ErrAlreadyExists)

	ids, err := store.ListStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"pay-pg"}, ids)

	assert.Equal(t, int64(1), takeOnce(t, store, "pay-pg", 8))
}
