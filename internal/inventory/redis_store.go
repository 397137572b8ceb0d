package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// save-if-absent plus expiry index in one step
var saveScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
	return 1
end
return 0
`)

// get-and-delete; the index entry goes either way
var claimScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
if not v then
	return false
end
redis.call('DEL', KEYS[1])
return v
`)

// RedisStore keeps reservations as JSON under reservation:{id} with a key TTL
// of ttl+grace, indexed by expiry in a sorted set. The grace keeps a record
// around long enough for the sweeper to restock it; the key TTL only bounds
// garbage if sweeping stops altogether.
type RedisStore struct {
	rdb   *redis.Client
	grace time.Duration
	now   func() time.Time
}

func NewRedisStore(rdb *redis.Client, grace time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, grace: grace, now: time.Now}
}

func (s *RedisStore) Save(ctx context.Context, r Reservation) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ttl := r.ExpiresAt.Sub(s.now())
	if ttl < 0 {
		ttl = 0
	}
	ttl += s.grace
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	ok, err := saveScript.Run(ctx, s.rdb,
		[]string{fmt.Sprintf(redisx.KeyReservation, r.ID), redisx.KeyReservationExpiry},
		b, ttl.Milliseconds(), r.ExpiresAt.UnixMilli(), r.ID,
	).Int()
	if err != nil {
		return err
	}
	if ok != 1 {
		return ErrReservationExists
	}
	return nil
}

func (s *RedisStore) Claim(ctx context.Context, id string) (Reservation, bool, error) {
	v, err := claimScript.Run(ctx, s.rdb,
		[]string{fmt.Sprintf(redisx.KeyReservation, id), redisx.KeyReservationExpiry}, id,
	).Text()
	if errors.Is(err, redis.Nil) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, err
	}
	var r Reservation
	if err := json.Unmarshal([]byte(v), &r); err != nil {
		return Reservation{}, false, fmt.Errorf("decode reservation %s: %w", id, err)
	}
	return r, true, nil
}

func (s *RedisStore) Expired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, redisx.KeyReservationExpiry, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
}
