package address

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("address: not found")

type Address struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Book resolves a customer's saved address. Addresses of other customers are
// reported as not found.
type Book interface {
	GetUserAddress(ctx context.Context, userID, addressID string) (Address, error)
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetUserAddress(ctx context.Context, userID, addressID string) (Address, error) {
	var a Address
	err := r.DB.QueryRow(ctx, `
		SELECT id, customer_id, full_name, line1, line2, city, state, postal_code, country, phone
		FROM addresses WHERE id=$1 AND customer_id=$2`, addressID, userID).
		Scan(&a.ID, &a.CustomerID, &a.FullName, &a.Line1, &a.Line2, &a.City, &a.State, &a.PostalCode, &a.Country, &a.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Address{}, ErrNotFound
	}
	if err != nil {
		return Address{}, fmt.Errorf("query address: %w", err)
	}
	return a, nil
}

type Memory struct {
	mu   sync.Mutex
	byID map[string]Address
}

func NewMemory(addrs ...Address) *Memory {
	m := &Memory{byID: map[string]Address{}}
	for _, a := range addrs {
		m.byID[a.ID] = a
	}
	return m
}

func (m *Memory) Put(a Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[a.ID] = a
}

func (m *Memory) GetUserAddress(_ context.Context, userID, addressID string) (Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[addressID]
	if !ok || a.CustomerID != userID {
		return Address{}, ErrNotFound
	}
	return a, nil
}
