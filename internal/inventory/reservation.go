package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
)

var (
	ErrReservationExists = errors.New("inventory: reservation id already in use")
	ErrInvalidRequest    = errors.New("inventory: invalid reservation request")
)

// Reservation is the record of stock already decremented for one checkout.
// It ends in exactly one way: released (stock returned), discarded (stock
// stays deducted) or expired (swept, stock returned).
type Reservation struct {
	ID        string              `json:"id"`
	Items     []catalog.StockItem `json:"items"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

type Result struct {
	Success   bool               `json:"success"`
	ExpiresAt time.Time          `json:"expires_at,omitempty"`
	Shortages []catalog.Shortage `json:"shortages,omitempty"`
}

// StockStore owns the stock counters. TakeStock must be all-or-nothing and
// must decrement each counter with a floor check in a single atomic step.
type StockStore interface {
	TakeStock(ctx context.Context, items []catalog.StockItem) ([]catalog.Shortage, error)
	ReturnStock(ctx context.Context, items []catalog.StockItem) error
}

// ReservationStore is a key-value store with expiry for reservation records.
// Claim removes and returns a record atomically, so at most one caller ever
// gets a given reservation back.
type ReservationStore interface {
	Save(ctx context.Context, r Reservation) error
	Claim(ctx context.Context, id string) (Reservation, bool, error)
	Expired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type ExpiryAction int

const (
	// ExpireRestock returns the stock and drops the record.
	ExpireRestock ExpiryAction = iota
	// ExpireDiscard drops the record and keeps the deduction.
	ExpireDiscard
	// ExpireSkip leaves the record for a later sweep.
	ExpireSkip
)

// ExpiryPolicy decides what happens to a reservation whose TTL has passed.
type ExpiryPolicy interface {
	OnExpiry(ctx context.Context, reservationID string) (ExpiryAction, error)
}
