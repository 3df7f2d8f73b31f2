package gateway

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

// InvoiceRequest asks the gateway for a payment of Amount (in PriceCurrency)
// settled in PayCurrency.
type InvoiceRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	PriceCurrency string
	PayCurrency   string
	Description   string
}

// Gateway is the external crypto payment provider.
type Gateway interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (domain.Invoice, error)
	// Status returns the provider's raw status string for a payment.
	Status(ctx context.Context, paymentID string) (string, error)
}

var successStatuses = map[string]struct{}{
	"finished":       {},
	"confirmed":      {},
	"sending":        {},
	"paid":           {},
	"partially_paid": {},
}

var failureStatuses = map[string]struct{}{
	"failed":   {},
	"expired":  {},
	"refunded": {},
}

// IsSuccess reports whether the status means the buyer has paid.
func IsSuccess(status string) bool {
	_, ok := successStatuses[normalize(status)]
	return ok
}

// IsFailure reports whether the status is terminal without payment.
// Anything neither success nor failure is still pending.
func IsFailure(status string) bool {
	_, ok := failureStatuses[normalize(status)]
	return ok
}

func normalize(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
