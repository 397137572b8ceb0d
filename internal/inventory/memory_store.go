package inventory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps reservation records in process. Records are not evicted
// on their own; the sweeper claims them once expired.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string]Reservation{}}
}

func (m *MemoryStore) Save(_ context.Context, r Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[r.ID]; ok {
		return ErrReservationExists
	}
	m.recs[r.ID] = r
	return nil
}

func (m *MemoryStore) Claim(_ context.Context, id string) (Reservation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if ok {
		delete(m.recs, id)
	}
	return r, ok, nil
}

func (m *MemoryStore) Expired(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, r := range m.recs {
		if !r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	ids := make([]string, 0, len(out))
	for _, r := range out {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// Len reports how many records are live.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}
