package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// A checkout claim marks the customer's active cart as being checked out.
// Claims are keyed by customer: there is at most one active cart per customer,
// and a claim taken before the cart is read still covers the cart that
// replaces a converted one.

// RedisClaims holds claims as idem:checkout:{customer_id} with a TTL, so a
// claim left by a crashed process lapses on its own.
type RedisClaims struct {
	rdb *redis.Client
}

func NewRedisClaims(rdb *redis.Client) *RedisClaims {
	return &RedisClaims{rdb: rdb}
}

func (c *RedisClaims) Claim(ctx context.Context, customerID string, ttl time.Duration) (bool, error) {
	return redisx.MarkOnce(ctx, c.rdb, fmt.Sprintf(redisx.KeyIdemCheckout, customerID), ttl)
}

func (c *RedisClaims) Unclaim(ctx context.Context, customerID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, customerID)).Err()
}

// MemoryClaims is the single-process equivalent of RedisClaims.
type MemoryClaims struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{until: map[string]time.Time{}, now: time.Now}
}

func (c *MemoryClaims) Claim(_ context.Context, customerID string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if exp, ok := c.until[customerID]; ok && now.Before(exp) {
		return false, nil
	}
	c.until[customerID] = now.Add(ttl)
	return true, nil
}

func (c *MemoryClaims) Unclaim(_ context.Context, customerID string) error {
	c.mu.Lock()
	delete(c.until, customerID)
	c.mu.Unlock()
	return nil
}
