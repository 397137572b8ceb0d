package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Memory struct {
	mu      sync.Mutex
	orders  map[string]*Order
	history []History
	seq     map[string]int
}

func NewMemory() *Memory {
	return &Memory{orders: map[string]*Order{}, seq: map[string]int{}}
}

func (m *Memory) NextNumber(_ context.Context, prefix string, day time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := prefix + day.Format("060102")
	m.seq[k]++
	return FormatNumber(prefix, day, m.seq[k]), nil
}

func (m *Memory) Create(_ context.Context, o Order, h ...History) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Version = 1
	for i := range o.Items {
		if o.Items[i].ID == "" {
			o.Items[i].ID = uuid.NewString()
		}
		o.Items[i].OrderID = o.ID
		o.Items[i].UpdatedAt = now
	}
	stored := o.clone()
	m.orders[o.ID] = &stored
	m.appendLocked(o.ID, now, h)
	return o.clone(), nil
}

func (m *Memory) Save(_ context.Context, o Order, h ...History) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return Order{}, ErrNotFound
	}
	if cur.Version != o.Version {
		return Order{}, ErrStale
	}
	now := time.Now().UTC()
	o.Version++
	o.UpdatedAt = now
	stored := o.clone()
	m.orders[o.ID] = &stored
	m.appendLocked(o.ID, now, h)
	return o.clone(), nil
}

func (m *Memory) appendLocked(orderID string, now time.Time, h []History) {
	for _, row := range h {
		row.ID = uuid.NewString()
		row.OrderID = orderID
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		m.history = append(m.history, row)
	}
}

func (m *Memory) Get(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o.clone(), nil
}

func (m *Memory) find(match func(*Order) bool) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if match(o) {
			return o.clone(), nil
		}
	}
	return Order{}, ErrNotFound
}

func (m *Memory) GetByNumber(_ context.Context, number string) (Order, error) {
	return m.find(func(o *Order) bool { return o.Number == number })
}

func (m *Memory) FindByReservation(_ context.Context, reservationID string) (Order, error) {
	return m.find(func(o *Order) bool { return o.ReservationID == reservationID })
}

func (m *Memory) GetItem(_ context.Context, itemID string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if it := o.Item(itemID); it != nil {
			return *it, nil
		}
	}
	return Item{}, ErrNotFound
}

func (m *Memory) List(_ context.Context, f Filter) (Page, error) {
	f = f.normalized()
	m.mu.Lock()
	var all []Order
	for _, o := range m.orders {
		if matches(o, f) {
			all = append(all, o.clone())
		}
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Number > all[j].Number
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	p := Page{Total: len(all), Limit: f.Limit, Offset: f.Offset, Orders: []Order{}}
	if f.Offset < len(all) {
		end := min(f.Offset+f.Limit, len(all))
		p.Orders = all[f.Offset:end]
	}
	return p, nil
}

func matches(o *Order, f Filter) bool {
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !o.CreatedAt.Before(f.To) {
		return false
	}
	if f.VendorID != "" {
		for _, it := range o.Items {
			if it.VendorID == f.VendorID {
				return true
			}
		}
		return false
	}
	return true
}

func (m *Memory) History(_ context.Context, orderID string) ([]History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []History{}
	for _, h := range m.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *Memory) StalePending(_ context.Context, before time.Time, limit int) ([]Order, error) {
	m.mu.Lock()
	var out []Order
	for _, o := range m.orders {
		if o.Status == StatusPending && o.CreatedAt.Before(before) {
			out = append(out, o.clone())
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
