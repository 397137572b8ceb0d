package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// write unless the cached view is strictly newer; events from different
// topics arrive in no particular order
var putScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, c = pcall(cjson.decode, cur)
	if ok and c.seq and tonumber(c.seq) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

type cached struct {
	StatusView
	Seq int64 `json:"seq"`
}

type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

func (c *Cache) Get(ctx context.Context, orderID string) (StatusView, bool, error) {
	s, err := c.rdb.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StatusView{}, false, nil
	}
	if err != nil {
		return StatusView{}, false, err
	}
	var v cached
	if err := json.Unmarshal(s, &v); err != nil {
		return StatusView{}, false, fmt.Errorf("decode status view: %w", err)
	}
	return v.StatusView, true, nil
}

// Put stores v unless a newer view is already cached. It reports whether v
// was written.
func (c *Cache) Put(ctx context.Context, v StatusView) (bool, error) {
	seq := v.UpdatedAt.UnixMilli()
	b, err := json.Marshal(cached{StatusView: v, Seq: seq})
	if err != nil {
		return false, err
	}
	n, err := putScript.Run(ctx, c.rdb,
		[]string{fmt.Sprintf(redisx.KeyOrderStatus, v.OrderID)},
		b, seq, redisx.TTLStatusCache.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
