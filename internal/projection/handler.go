package projection

import (
	"context"
	"fmt"

	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler projects order lifecycle events into the status cache. Each event
// id is processed at most once per service.
type Handler struct {
	rdb     *redis.Client
	cache   *Cache
	service string
	log     *zap.Logger
}

func NewHandler(rdb *redis.Client, service string, log *zap.Logger) *Handler {
	return &Handler{rdb: rdb, cache: NewCache(rdb), service: service, log: log}
}

func (h *Handler) Handle(ctx context.Context, m kafka.Message) error {
	ev, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// poison message: log and commit past it
		h.log.Error("drop undecodable event", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if ev.EventVersion != kafkax.EnvelopeVersion {
		h.log.Warn("skip unsupported event version", zap.String("event_id", ev.EventID), zap.Int("version", ev.EventVersion))
		return nil
	}
	if _, ok := orders.TopicFor(ev.EventType); !ok {
		return nil
	}

	dedupKey := fmt.Sprintf(redisx.KeyDedup, h.service, ev.EventID)
	first, err := redisx.MarkOnce(ctx, h.rdb, dedupKey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !first {
		h.log.Debug("duplicate event", zap.String("event_id", ev.EventID))
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.StatusPayload](ev.Payload)
	if err != nil || p.OrderID == "" {
		h.log.Error("drop event with bad payload", zap.String("event_id", ev.EventID), zap.Error(err))
		return nil
	}
	written, err := h.cache.Put(ctx, FromPayload(p))
	if err != nil {
		// unmark so redelivery is not swallowed
		h.rdb.Del(context.WithoutCancel(ctx), dedupKey)
		return fmt.Errorf("update status cache: %w", err)
	}
	h.log.Info("status projected",
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.EventType),
		zap.String("order_id", p.OrderID),
		zap.String("status", p.Status),
		zap.Bool("written", written),
	)
	return nil
}
