// Package dbtest provides Postgres fixtures for repository integration tests.
// Tests are skipped unless TEST_DB_DSN points at a disposable database.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ereal21/zxczxcz-sub000/internal/migrate"
)

// Pool connects to TEST_DB_DSN, applies migrations and truncates all tables.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrate.Apply(ctx, pool, nil); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := pool.Exec(ctx, `
TRUNCATE payment_intents, customers, ledger_operations, balances, cart_promos, promos,
         cart_lines, restock_subscriptions, sold_items, stock_items, products, categories
RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return pool
}

// SeedProduct inserts a category and a product priced at price.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, id, price string, allowDiscounts bool) {
	t.Helper()
	ctx := context.Background()
	if _, err := pool.Exec(ctx, `INSERT INTO categories (id, name, allow_discounts) VALUES ($1, $1, $2) ON CONFLICT (id) DO NOTHING`, "cat-"+id, allowDiscounts); err != nil {
		t.Fatalf("insert category: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO products (id, category_id, name, price) VALUES ($1, $2, $1, $3::numeric)`, id, "cat-"+id, price); err != nil {
		t.Fatalf("insert product: %v", err)
	}
}
