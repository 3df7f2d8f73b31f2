package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
)

// Repository is the balance ledger. Every adjustment is journalled as an
// operation in the same transaction as the balance change.
type Repository interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	// Adjust applies delta and returns the new balance.
	Adjust(ctx context.Context, userID int64, delta decimal.Decimal, kind domain.OperationKind, reference string) (decimal.Decimal, error)
	// Hold atomically debits min(balance, limit) as a hold operation and
	// returns the amount held. A non-positive balance holds nothing.
	Hold(ctx context.Context, userID int64, limit decimal.Decimal, reference string) (decimal.Decimal, error)
	Operations(ctx context.Context, userID int64) ([]domain.LedgerOperation, error)
}

func holdable(balance, limit decimal.Decimal) decimal.Decimal {
	held := money.Min(money.Round(balance), limit)
	if !held.IsPositive() {
		return decimal.Zero
	}
	return held
}
