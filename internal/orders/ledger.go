package orders

import (
	"context"
	"fmt"
	"time"
)

// Ledger persists orders and their status history. Save is
// optimistic: it fails with ErrStale when the stored Version differs from the
// one the caller read.
type Ledger interface {
	// NextNumber atomically allocates the next order number for day.
	NextNumber(ctx context.Context, prefix string, day time.Time) (string, error)
	Create(ctx context.Context, o Order, h ...History) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	GetByNumber(ctx context.Context, number string) (Order, error)
	FindByReservation(ctx context.Context, reservationID string) (Order, error)
	GetItem(ctx context.Context, itemID string) (Item, error)
	List(ctx context.Context, f Filter) (Page, error)
	Save(ctx context.Context, o Order, h ...History) (Order, error)
	History(ctx context.Context, orderID string) ([]History, error)
	// StalePending returns pending orders created before the cutoff, oldest first.
	StalePending(ctx context.Context, before time.Time, limit int) ([]Order, error)
}

// FormatNumber renders {prefix}-{YYMMDD}-{seq}.
func FormatNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.Format("060102"), seq)
}
