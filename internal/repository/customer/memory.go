package customer

import (
	"context"
	"sync"
	"time"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type Memory struct {
	mu        sync.Mutex
	customers map[int64]domain.Customer
}

func NewMemory() *Memory {
	return &Memory{customers: make(map[int64]domain.Customer)}
}

func (m *Memory) Get(_ context.Context, userID int64) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *Memory) Save(_ context.Context, c domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.customers[c.UserID]; ok {
		if prev.ReferrerID != nil {
			c.ReferrerID = prev.ReferrerID
		}
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.customers[c.UserID] = c
	return nil
}

func (m *Memory) SetReferrer(_ context.Context, userID, referrerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[userID]
	if !ok {
		c = domain.Customer{UserID: userID, CreatedAt: time.Now()}
	}
	if c.ReferrerID == nil {
		ref := referrerID
		c.ReferrerID = &ref
	}
	m.customers[userID] = c
	return nil
}
