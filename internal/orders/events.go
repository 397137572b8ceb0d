package orders

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"go.uber.org/zap"
)

const (
	EventOrderCreated           = "OrderCreated"
	EventOrderConfirmed         = "OrderConfirmed"
	EventOrderFailed            = "OrderFailed"
	EventOrderCancelled         = "OrderCancelled"
	EventOrderStatusChanged     = "OrderStatusChanged"
	EventOrderItemStatusChanged = "OrderItemStatusChanged"
)

type ItemLine struct {
	ItemID          string `json:"item_id"`
	VendorID        string `json:"vendor_id"`
	VendorProductID string `json:"vendor_product_id"`
	Quantity        int    `json:"quantity"`
	UnitPrice       string `json:"unit_price"`
	Status          string `json:"status"`
}

// StatusPayload is shared by all lifecycle events; ItemID is set only for
// item status changes.
type StatusPayload struct {
	OrderID       string     `json:"order_id"`
	Number        string     `json:"number"`
	CustomerID    string     `json:"customer_id"`
	VendorIDs     []string   `json:"vendor_ids,omitempty"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	Total         string     `json:"total"`
	Currency      string     `json:"currency"`
	Reason        string     `json:"reason,omitempty"`
	ItemID        string     `json:"item_id,omitempty"`
	ItemStatus    string     `json:"item_status,omitempty"`
	Items         []ItemLine `json:"items,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func NewStatusPayload(o Order, reason string) StatusPayload {
	return StatusPayload{
		OrderID:       o.ID,
		Number:        o.Number,
		CustomerID:    o.CustomerID,
		VendorIDs:     o.VendorIDs(),
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Total:         o.Total.StringFixed(2),
		Currency:      o.Currency,
		Reason:        reason,
		UpdatedAt:     o.UpdatedAt,
	}
}

// Publisher emits order lifecycle events. Publishing is best effort and never
// fails the operation that triggered it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, p StatusPayload)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, StatusPayload) {}

// KafkaPublisher wraps events in the v1 envelope and hands them to the async
// producer, one topic per event type, keyed by order id.
type KafkaPublisher struct {
	Producer *kafkax.Producer
	Service  string
	Log      *zap.Logger
}

func (k *KafkaPublisher) Publish(ctx context.Context, eventType string, p StatusPayload) {
	topic, ok := TopicFor(eventType)
	if !ok {
		k.Log.Warn("no topic for event", zap.String("event_type", eventType))
		return
	}
	ev, err := kafkax.NewEnvelope(eventType, k.Service, p.OrderID, p)
	if err != nil {
		k.Log.Error("encode event", zap.String("order_id", p.OrderID), zap.Error(err))
		return
	}
	if rid, ok := ctx.Value(traceKey{}).(string); ok {
		ev.TraceID = rid
	}
	if err := k.Producer.PublishEnvelope(topic, PartitionKey(p.OrderID), ev); err != nil {
		k.Log.Error("publish event", zap.String("order_id", p.OrderID), zap.Error(err))
	}
}

type traceKey struct{}

// WithTraceID attaches a request id that published envelopes carry as trace_id.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}
