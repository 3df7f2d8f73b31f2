package product

import (
	"context"
	"errors"
	"testing"

	"github.com/ereal21/zxczxcz-sub000/internal/db/dbtest"
	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
)

func TestPostgres_GetJoinsCategoryFlag(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(t)
	dbtest.SeedProduct(t, pool, "p1", "12.50", false)

	repo := NewPostgres(pool, nil)
	got, err := repo.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.AllowDiscounts || money.Format(got.Price) != "12.50" {
		t.Fatalf("unexpected product %+v", got)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgres_UpsertInfinite(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(t)
	repo := NewPostgres(pool, nil)

	if err := repo.UpsertCategory(ctx, domain.Category{ID: "keys", Name: "Keys", AllowDiscounts: true}); err != nil {
		t.Fatalf("UpsertCategory: %v", err)
	}
	payload := domain.TextPayload("license: shared")
	got, err := repo.Upsert(ctx, domain.Product{
		ID:              "license",
		CategoryID:      "keys",
		Name:            "License",
		Price:           money.MustParse("3.00"),
		Infinite:        true,
		InfinitePayload: &payload,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !got.Infinite || got.InfinitePayload == nil || *got.InfinitePayload != payload || !got.AllowDiscounts {
		t.Fatalf("unexpected product %+v", got)
	}

	many, err := repo.GetMany(ctx, []string{"license", "missing"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(many) != 1 {
		t.Fatalf("expected 1 product, got %d", len(many))
	}
}

func TestPostgres_ListFiltersByCategory(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(t)
	dbtest.SeedProduct(t, pool, "a", "1.00", true)
	dbtest.SeedProduct(t, pool, "b", "2.00", true)

	repo := NewPostgres(pool, nil)
	all, err := repo.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 products, got %d", len(all))
	}

	only, err := repo.List(ctx, "cat-b")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(only) != 1 || only[0].ID != "b" {
		t.Fatalf("unexpected products %+v", only)
	}
}

func TestMemory_GetUsesCategoryFlag(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	_ = repo.UpsertCategory(ctx, domain.Category{ID: "c", AllowDiscounts: true})
	if _, err := repo.Upsert(ctx, domain.Product{ID: "a", CategoryID: "c", Price: money.MustParse("1")}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := repo.GetByID(ctx, "a")
	if err != nil || !got.AllowDiscounts {
		t.Fatalf("unexpected %+v %v", got, err)
	}
}

func TestMemory_ListFiltersByCategory(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	_ = repo.UpsertCategory(ctx, domain.Category{ID: "a"})
	_ = repo.UpsertCategory(ctx, domain.Category{ID: "b", AllowDiscounts: true})
	for _, p := range []domain.Product{
		{ID: "3", CategoryID: "b", Name: "Zeta"},
		{ID: "1", CategoryID: "a", Name: "Alpha"},
		{ID: "2", CategoryID: "b", Name: "Beta"},
	} {
		if _, err := repo.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	all, err := repo.List(ctx, "")
	if err != nil || len(all) != 3 || all[0].Name != "Alpha" || all[2].Name != "Zeta" {
		t.Fatalf("unexpected list %+v %v", all, err)
	}
	onlyB, err := repo.List(ctx, "b")
	if err != nil || len(onlyB) != 2 || !onlyB[0].AllowDiscounts {
		t.Fatalf("unexpected filtered list %+v %v", onlyB, err)
	}
}
