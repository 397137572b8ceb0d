package cart

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Memory struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func NewMemory() *Memory {
	return &Memory{carts: map[string]*Cart{}}
}

func (m *Memory) activeLocked(customerID string) *Cart {
	for _, c := range m.carts {
		if c.CustomerID == customerID && c.Status == StatusActive {
			return c
		}
	}
	return nil
}

func (m *Memory) ActiveCart(_ context.Context, customerID string) (Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.activeLocked(customerID)
	if c == nil {
		return Cart{}, ErrNotFound
	}
	return clone(c), nil
}

func (m *Memory) GetOrCreateActive(_ context.Context, customerID, currency string) (Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.activeLocked(customerID); c != nil {
		return clone(c), nil
	}
	now := time.Now().UTC()
	c := &Cart{ID: uuid.NewString(), CustomerID: customerID, Status: StatusActive, Currency: currency, CreatedAt: now, UpdatedAt: now}
	m.carts[c.ID] = c
	return clone(c), nil
}

func (m *Memory) UpsertItem(_ context.Context, it Item) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[it.CartID]
	if !ok {
		return Item{}, ErrNotFound
	}
	if c.Status != StatusActive {
		return Item{}, ErrNotActive
	}
	c.UpdatedAt = time.Now().UTC()
	for i := range c.Items {
		cur := &c.Items[i]
		if cur.VendorProductID == it.VendorProductID && cur.VendorVariantID == it.VendorVariantID {
			cur.Quantity += it.Quantity
			cur.UnitPrice = it.UnitPrice
			return *cur, nil
		}
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	c.Items = append(c.Items, it)
	return it, nil
}

func (m *Memory) SetItemQuantity(_ context.Context, customerID, itemID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.activeLocked(customerID)
	if c == nil {
		return ErrNotActive
	}
	for i := range c.Items {
		if c.Items[i].ID != itemID {
			continue
		}
		if qty <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		} else {
			c.Items[i].Quantity = qty
		}
		c.UpdatedAt = time.Now().UTC()
		return nil
	}
	return ErrNotFound
}

func (m *Memory) UpdateItemPrice(_ context.Context, itemID string, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items[i].UnitPrice = price
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *Memory) SetStatus(_ context.Context, cartID string, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return ErrNotFound
	}
	if c.Status != from {
		return ErrNotActive
	}
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns any cart by id regardless of status.
func (m *Memory) Get(cartID string) (Cart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return Cart{}, false
	}
	return clone(c), true
}

func clone(c *Cart) Cart {
	out := *c
	out.Items = append([]Item(nil), c.Items...)
	return out
}
