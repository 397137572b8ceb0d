package projection

import (
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
)

// StatusView is the cached read model behind GET /orders/{id}/status. It
// carries the ownership fields so the cache can be authorized without a
// ledger read.
type StatusView struct {
	OrderID       string    `json:"order_id"`
	Number        string    `json:"number"`
	CustomerID    string    `json:"customer_id"`
	VendorIDs     []string  `json:"vendor_ids,omitempty"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func FromOrder(o orders.Order) StatusView {
	return StatusView{
		OrderID:       o.ID,
		Number:        o.Number,
		CustomerID:    o.CustomerID,
		VendorIDs:     o.VendorIDs(),
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		UpdatedAt:     o.UpdatedAt,
	}
}

func FromPayload(p orders.StatusPayload) StatusView {
	return StatusView{
		OrderID:       p.OrderID,
		Number:        p.Number,
		CustomerID:    p.CustomerID,
		VendorIDs:     p.VendorIDs,
		Status:        p.Status,
		PaymentStatus: p.PaymentStatus,
		UpdatedAt:     p.UpdatedAt,
	}
}
