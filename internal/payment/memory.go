package payment

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Memory implements Store and CardStore in process.
type Memory struct {
	mu       sync.Mutex
	payments map[string]Payment
	order    []string // insertion order, for LatestForOrder
	cards    map[string]Card
}

func NewMemory() *Memory {
	return &Memory{payments: map[string]Payment{}, cards: map[string]Card{}}
}

func (m *Memory) CreatePayment(_ context.Context, p Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
	m.order = append(m.order, p.ID)
	return nil
}

func (m *Memory) UpdatePayment(_ context.Context, p Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = p.Status
	cur.TransactionID = p.TransactionID
	cur.FailureReason = p.FailureReason
	cur.UpdatedAt = p.UpdatedAt
	m.payments[p.ID] = cur
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) LatestForOrder(_ context.Context, orderID string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		if p := m.payments[m.order[i]]; p.OrderID == orderID {
			return p, nil
		}
	}
	return Payment{}, ErrNotFound
}

func (m *Memory) AddRefund(_ context.Context, id string, amount decimal.Decimal, reason string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	if amount.GreaterThan(p.Refundable()) {
		return Payment{}, ErrRefundRejected
	}
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	p.Status = refundStatus(p.Amount, p.RefundedAmount)
	p.RefundReason = reason
	p.UpdatedAt = time.Now().UTC()
	m.payments[id] = p
	return p, nil
}

func (m *Memory) RevertRefund(_ context.Context, id string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return ErrNotFound
	}
	p.RefundedAmount = decimal.Max(p.RefundedAmount.Sub(amount), decimal.Zero)
	p.Status = refundStatus(p.Amount, p.RefundedAmount)
	m.payments[id] = p
	return nil
}

// PutCard stores a card. A default card unsets the customer's previous one.
func (m *Memory) PutCard(c Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.IsDefault {
		m.clearDefaultLocked(c.CustomerID)
	}
	m.cards[c.ID] = c
}

func (m *Memory) GetCard(_ context.Context, customerID, cardID string) (Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[cardID]
	if !ok || c.CustomerID != customerID {
		return Card{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) CardByID(_ context.Context, cardID string) (Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[cardID]
	if !ok {
		return Card{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) SetDefaultCard(_ context.Context, customerID, cardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[cardID]
	if !ok || c.CustomerID != customerID {
		return ErrNotFound
	}
	m.clearDefaultLocked(customerID)
	c.IsDefault = true
	m.cards[cardID] = c
	return nil
}

func (m *Memory) clearDefaultLocked(customerID string) {
	for id, c := range m.cards {
		if c.CustomerID == customerID && c.IsDefault {
			c.IsDefault = false
			m.cards[id] = c
		}
	}
}
