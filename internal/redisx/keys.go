package redisx

import "time"

const (
	// Checkout in progress: idem:checkout:{customer_id} -> 1
	KeyIdemCheckout = "idem:checkout:%s"

	// Stock reservation record: reservation:{reservation_id} -> JSON
	KeyReservation = "reservation:%s"

	// Expiry index over live reservations: zset member=reservation_id score=expires_at (unix ms)
	KeyReservationExpiry = "reservations:expiry"

	// Order status view: order_status:{order_id} -> {"status": "...", "payment_status": "...", "seq": ...}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
