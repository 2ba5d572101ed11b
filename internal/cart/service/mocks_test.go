package service

import (
	"context"
	"sync"

	"github.com/fjod/agrostore/internal/cart/repository"
	"github.com/fjod/agrostore/internal/catalog"
	"github.com/fjod/agrostore/internal/domain"
)

// MockRepository is an in-memory CartRepository.
type MockRepository struct {
	mu        sync.Mutex
	carts     map[string]*domain.Cart
	GetCalls  int
	ErrGet    error
	ErrUpdate error
	// AfterGet runs once after the next successful GetCart, outside the lock.
	AfterGet func()
}

func NewMockRepository() *MockRepository {
	return &MockRepository{carts: map[string]*domain.Cart{}}
}

func (m *MockRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	m.GetCalls++
	if m.ErrGet != nil {
		m.mu.Unlock()
		return nil, m.ErrGet
	}
	c, ok := m.carts[userID]
	if !ok {
		m.mu.Unlock()
		return nil, repository.ErrCartNotFound
	}
	cp := *c
	cp.Lines = append([]domain.CartLine(nil), c.Lines...)
	hook := m.AfterGet
	m.AfterGet = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return &cp, nil
}

func (m *MockRepository) IncrementLine(_ context.Context, userID string, line domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrUpdate != nil {
		return m.ErrUpdate
	}
	c, ok := m.carts[userID]
	if !ok {
		c = &domain.Cart{UserID: userID}
		m.carts[userID] = c
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID {
			c.Lines[i].Quantity += line.Quantity
			return nil
		}
	}
	c.Lines = append(c.Lines, line)
	return nil
}

func (m *MockRepository) SetLineQuantity(_ context.Context, userID, lineID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[userID]; ok {
		for i := range c.Lines {
			if c.Lines[i].ID == lineID {
				c.Lines[i].Quantity = quantity
				return nil
			}
		}
	}
	return repository.ErrLineNotFound
}

func (m *MockRepository) RemoveLine(_ context.Context, userID, lineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[userID]; ok {
		kept := c.Lines[:0]
		for _, l := range c.Lines {
			if l.ID != lineID {
				kept = append(kept, l)
			}
		}
		c.Lines = kept
	}
	return nil
}

func (m *MockRepository) DeleteCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.carts[userID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.carts, userID)
	return nil
}

// MockProducts serves a fixed catalog.
type MockProducts map[string]*domain.Product

func (m MockProducts) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := m[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}
