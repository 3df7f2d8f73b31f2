package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

// Fake is an in-process gateway. Invoices get sequential ids and start
// in "waiting"; SetStatus moves them along.
type Fake struct {
	mu       sync.Mutex
	next     int
	statuses map[string]string
	requests []InvoiceRequest
	// Down makes every call fail with domain.ErrGatewayUnavailable.
	Down bool
	// StatusErr, when set, is returned by Status.
	StatusErr error
}

func NewFake() *Fake {
	return &Fake{statuses: make(map[string]string)}
}

func (f *Fake) CreateInvoice(_ context.Context, req InvoiceRequest) (domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Down {
		return domain.Invoice{}, domain.ErrGatewayUnavailable
	}
	f.next++
	id := fmt.Sprintf("pay-%d", f.next)
	f.statuses[id] = "waiting"
	f.requests = append(f.requests, req)
	return domain.Invoice{
		PaymentID:   id,
		Address:     "addr-" + id,
		PayAmount:   req.Amount,
		PayCurrency: req.PayCurrency,
	}, nil
}

func (f *Fake) Status(_ context.Context, paymentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Down {
		return "", domain.ErrGatewayUnavailable
	}
	if f.StatusErr != nil {
		return "", f.StatusErr
	}
	return f.statuses[paymentID], nil
}

func (f *Fake) SetStatus(paymentID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[paymentID] = status
}

// Requests returns the invoice requests seen so far.
func (f *Fake) Requests() []InvoiceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]InvoiceRequest(nil), f.requests...)
}
