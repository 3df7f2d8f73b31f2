package intent

import (
	"context"
	"time"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

// Store holds payment intents between invoice creation and settlement.
//
// Take is the only way to consume an intent: it removes and returns the
// record in one atomic step, so of any number of concurrent callers for the
// same payment id exactly one receives it and the rest get domain.ErrNotFound.
type Store interface {
	Put(ctx context.Context, in domain.PaymentIntent) error
	Take(ctx context.Context, paymentID string) (*domain.PaymentIntent, error)
	Get(ctx context.Context, paymentID string) (*domain.PaymentIntent, error)
	// ListStale returns ids of intents created before the cutoff, oldest first.
	ListStale(ctx context.Context, before time.Time) ([]string, error)
}
