package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type Memory struct {
	mu       sync.Mutex
	balances map[int64]decimal.Decimal
	ops      []domain.LedgerOperation
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[int64]decimal.Decimal)}
}

func (m *Memory) Balance(_ context.Context, userID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *Memory) Adjust(_ context.Context, userID int64, delta decimal.Decimal, kind domain.OperationKind, reference string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apply(userID, delta, kind, reference), nil
}

func (m *Memory) Hold(_ context.Context, userID int64, limit decimal.Decimal, reference string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := holdable(m.balances[userID], limit)
	if held.IsZero() {
		return decimal.Zero, nil
	}
	m.apply(userID, held.Neg(), domain.OperationHold, reference)
	return held, nil
}

func (m *Memory) apply(userID int64, delta decimal.Decimal, kind domain.OperationKind, reference string) decimal.Decimal {
	balance := m.balances[userID].Add(delta)
	m.balances[userID] = balance
	m.ops = append(m.ops, domain.LedgerOperation{
		ID:        int64(len(m.ops) + 1),
		UserID:    userID,
		Kind:      kind,
		Amount:    delta,
		Reference: reference,
		CreatedAt: time.Now(),
	})
	return balance
}

func (m *Memory) Operations(_ context.Context, userID int64) ([]domain.LedgerOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LedgerOperation
	for _, op := range m.ops {
		if op.UserID == userID {
			out = append(out, op)
		}
	}
	return out, nil
}
