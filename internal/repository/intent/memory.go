package intent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type Memory struct {
	mu      sync.Mutex
	intents map[string]domain.PaymentIntent
}

func NewMemory() *Memory {
	return &Memory{intents: make(map[string]domain.PaymentIntent)}
}

func (m *Memory) Put(_ context.Context, in domain.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[in.PaymentID]; ok {
		return domain.ErrAlreadyExists
	}
	m.intents[in.PaymentID] = in
	return nil
}

func (m *Memory) Take(_ context.Context, paymentID string) (*domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(m.intents, paymentID)
	return &in, nil
}

func (m *Memory) Get(_ context.Context, paymentID string) (*domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &in, nil
}

func (m *Memory) ListStale(_ context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []domain.PaymentIntent
	for _, in := range m.intents {
		if in.CreatedAt.Before(before) {
			stale = append(stale, in)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	ids := make([]string, len(stale))
	for i, in := range stale {
		ids[i] = in.PaymentID
	}
	return ids, nil
}

// Len reports how many intents are pending.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.intents)
}
