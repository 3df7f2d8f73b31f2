package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

// Memory is a mutex-guarded pool, modelled on the Postgres schema.
type Memory struct {
	mu          sync.Mutex
	nextID      int64
	items       map[string][]domain.StockItem
	sold        []domain.Sale
	subscribers map[string][]int64
}

func NewMemory() *Memory {
	return &Memory{
		items:       make(map[string][]domain.StockItem),
		subscribers: make(map[string][]int64),
	}
}

func (m *Memory) Take(_ context.Context, productID string) (domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.items[productID]
	if len(pool) == 0 {
		return domain.StockItem{}, domain.ErrOutOfStock
	}
	item := pool[0]
	m.items[productID] = pool[1:]
	return item, nil
}

func (m *Memory) Release(_ context.Context, item domain.StockItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.items[item.ProductID]
	for _, existing := range pool {
		if existing.ID == item.ID {
			return nil
		}
	}
	pool = append(pool, item)
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	m.items[item.ProductID] = pool
	return nil
}

func (m *Memory) Add(_ context.Context, productID string, payload domain.StockPayload) (domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item := domain.StockItem{ID: m.nextID, ProductID: productID, Payload: payload}
	m.items[productID] = append(m.items[productID], item)
	return item, nil
}

func (m *Memory) Count(_ context.Context, productID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items[productID]), nil
}

func (m *Memory) List(_ context.Context, productID string) ([]domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.StockItem, len(m.items[productID]))
	copy(out, m.items[productID])
	return out, nil
}

func (m *Memory) Archive(_ context.Context, sale domain.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sold = append(m.sold, sale)
	return nil
}

// Sold returns a copy of the sold archive.
func (m *Memory) Sold() []domain.Sale {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Sale, len(m.sold))
	copy(out, m.sold)
	return out
}

func (m *Memory) Subscribe(_ context.Context, productID string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.subscribers[productID] {
		if id == userID {
			return nil
		}
	}
	m.subscribers[productID] = append(m.subscribers[productID], userID)
	return nil
}

func (m *Memory) TakeSubscribers(_ context.Context, productID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := m.subscribers[productID]
	delete(m.subscribers, productID)
	return users, nil
}
