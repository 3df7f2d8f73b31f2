package promo

import (
	"context"
	"strings"
	"sync"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type Memory struct {
	mu     sync.RWMutex
	promos map[string]domain.Promo
}

func NewMemory() *Memory {
	return &Memory{promos: make(map[string]domain.Promo)}
}

func (m *Memory) GetByCode(_ context.Context, code string) (*domain.Promo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.promos[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) Upsert(_ context.Context, p domain.Promo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Code = strings.ToUpper(p.Code)
	m.promos[p.Code] = p
	return nil
}
