package cart

import (
	"context"
	"sync"
	"time"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type catalog interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

// Memory keeps carts in process and joins prices from a catalog on read.
type Memory struct {
	mu      sync.Mutex
	catalog catalog
	lines   map[int64][]memoryLine
	promos  map[int64]string
	now     func() time.Time
}

type memoryLine struct {
	productID string
	quantity  int
	addedAt   time.Time
}

func NewMemory(c catalog) *Memory {
	return &Memory{
		catalog: c,
		lines:   make(map[int64][]memoryLine),
		promos:  make(map[int64]string),
		now:     time.Now,
	}
}

func (m *Memory) Lines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	m.mu.Lock()
	stored := append([]memoryLine(nil), m.lines[userID]...)
	m.mu.Unlock()

	out := make([]domain.CartLine, 0, len(stored))
	for _, l := range stored {
		p, err := m.catalog.GetByID(ctx, l.productID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.CartLine{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPrice:      p.Price,
			Quantity:       l.quantity,
			AllowDiscounts: p.AllowDiscounts,
			AddedAt:        l.addedAt,
		})
	}
	return out, nil
}

func (m *Memory) AddItem(_ context.Context, userID int64, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.lines[userID] {
		if l.productID == productID {
			m.lines[userID][i].quantity += quantity
			return nil
		}
	}
	m.lines[userID] = append(m.lines[userID], memoryLine{productID: productID, quantity: quantity, addedAt: m.now()})
	return nil
}

func (m *Memory) SetQuantity(_ context.Context, userID int64, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.lines[userID]
	for i, l := range lines {
		if l.productID != productID {
			continue
		}
		if quantity <= 0 {
			m.lines[userID] = append(lines[:i:i], lines[i+1:]...)
			if len(m.lines[userID]) == 0 {
				delete(m.promos, userID)
			}
		} else {
			lines[i].quantity = quantity
		}
		return nil
	}
	return domain.ErrNotFound
}

func (m *Memory) Remove(ctx context.Context, userID int64, productID string) error {
	return m.SetQuantity(ctx, userID, productID, 0)
}

func (m *Memory) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lines, userID)
	delete(m.promos, userID)
	return nil
}

func (m *Memory) PromoCode(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.promos[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return code, nil
}

func (m *Memory) SetPromo(_ context.Context, userID int64, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promos[userID] = code
	return nil
}

func (m *Memory) ClearPromo(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.promos, userID)
	return nil
}
