package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ereal21/zxczxcz-sub000/internal/db/dbtest"
	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
)

func TestPostgres_AdjustJournalsOperations(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgres(dbtest.Pool(t), nil)

	if b, err := repo.Balance(ctx, 1); err != nil || !b.IsZero() {
		t.Fatalf("expected zero balance, got %s %v", b, err)
	}
	if _, err := repo.Adjust(ctx, 1, money.MustParse("15.00"), domain.OperationTopup, "pay-1"); err != nil {
		t.Fatalf("Adjust topup: %v", err)
	}
	balance, err := repo.Adjust(ctx, 1, money.MustParse("-10.00"), domain.OperationPurchase, "pay-1")
	if err != nil {
		t.Fatalf("Adjust purchase: %v", err)
	}
	if money.Format(balance) != "5.00" {
		t.Fatalf("expected 5.00, got %s", balance)
	}
	ops, err := repo.Operations(ctx, 1)
	if err != nil {
		t.Fatalf("Operations: %v", err)
	}
	if len(ops) != 2 || ops[0].Kind != domain.OperationTopup || ops[1].Kind != domain.OperationPurchase {
		t.Fatalf("unexpected operations %+v", ops)
	}
}

func TestPostgres_HoldTakesAtMostBalance(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgres(dbtest.Pool(t), nil)

	if held, err := repo.Hold(ctx, 1, money.MustParse("10.00"), "chk-0"); err != nil || !held.IsZero() {
		t.Fatalf("expected nothing held without a balance, got %s %v", held, err)
	}
	if _, err := repo.Adjust(ctx, 1, money.MustParse("4.00"), domain.OperationTopup, "seed"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	held, err := repo.Hold(ctx, 1, money.MustParse("10.00"), "chk-1")
	if err != nil || money.Format(held) != "4.00" {
		t.Fatalf("expected 4.00 held, got %s %v", held, err)
	}
	if held, err := repo.Hold(ctx, 1, money.MustParse("10.00"), "chk-2"); err != nil || !held.IsZero() {
		t.Fatalf("expected second hold to get nothing, got %s %v", held, err)
	}
	if b, _ := repo.Balance(ctx, 1); !b.IsZero() {
		t.Fatalf("expected zero balance, got %s", b)
	}
}

func TestMemory_HoldIsExclusive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	if _, err := repo.Adjust(ctx, 7, money.MustParse("5.00"), domain.OperationTopup, "seed"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan decimal.Decimal, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			held, err := repo.Hold(ctx, 7, money.MustParse("3.00"), "chk")
			if err != nil {
				t.Errorf("Hold: %v", err)
			}
			results <- held
		}()
	}
	wg.Wait()
	close(results)

	total := decimal.Zero
	for held := range results {
		total = total.Add(held)
	}
	if money.Format(total) != "5.00" {
		t.Fatalf("expected 5.00 held in total, got %s", total)
	}
	if b, _ := repo.Balance(ctx, 7); !b.IsZero() {
		t.Fatalf("expected zero balance, got %s", b)
	}
}
