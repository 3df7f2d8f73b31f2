package product

import (
	"context"
	"sort"
	"sync"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

// Memory is an in-process catalog used by tests and the memory wiring.
type Memory struct {
	mu         sync.RWMutex
	categories map[string]domain.Category
	products   map[string]domain.Product
}

func NewMemory() *Memory {
	return &Memory{
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
	}
}

func (m *Memory) GetByID(_ context.Context, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.AllowDiscounts = m.categories[p.CategoryID].AllowDiscounts
	return &p, nil
}

func (m *Memory) GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, err := m.GetByID(ctx, id)
		if err != nil {
			continue
		}
		result[id] = *p
	}
	return result, nil
}

func (m *Memory) List(_ context.Context, categoryID string) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Product
	for _, p := range m.products {
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		p.AllowDiscounts = m.categories[p.CategoryID].AllowDiscounts
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) UpsertCategory(_ context.Context, c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
	return nil
}

func (m *Memory) Upsert(ctx context.Context, p domain.Product) (*domain.Product, error) {
	m.mu.Lock()
	m.products[p.ID] = p
	m.mu.Unlock()
	return m.GetByID(ctx, p.ID)
}
