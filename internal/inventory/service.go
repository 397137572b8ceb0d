package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
	"go.uber.org/zap"
)

// Service is the stock reservation client. Stock is decremented at Reserve
// time; there is no separate reserved counter. The reservation record only
// remembers what to give back if the checkout does not go through.
type Service struct {
	stock  StockStore
	store  ReservationStore
	policy ExpiryPolicy
	now    func() time.Time
	log    *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithExpiryPolicy(p ExpiryPolicy) Option { return func(s *Service) { s.policy = p } }

func NewService(stock StockStore, store ReservationStore, log *zap.Logger, opts ...Option) *Service {
	s := &Service{stock: stock, store: store, now: time.Now, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetExpiryPolicy installs the policy after construction; the checkout
// coordinator that implements it is built on top of this service.
func (s *Service) SetExpiryPolicy(p ExpiryPolicy) { s.policy = p }

func (s *Service) Reserve(ctx context.Context, id string, items []catalog.StockItem, ttl time.Duration) (Result, error) {
	if id == "" || len(items) == 0 || ttl <= 0 {
		return Result{}, ErrInvalidRequest
	}
	for _, it := range items {
		if it.Quantity <= 0 || it.VendorProductID == "" {
			return Result{}, fmt.Errorf("%w: item %s", ErrInvalidRequest, it.Key())
		}
	}
	items = catalog.Merge(items)

	short, err := s.stock.TakeStock(ctx, items)
	if err != nil {
		return Result{}, fmt.Errorf("take stock: %w", err)
	}
	if len(short) > 0 {
		return Result{Shortages: short}, nil
	}

	now := s.now()
	r := Reservation{ID: id, Items: items, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	if err := s.store.Save(ctx, r); err != nil {
		// record never landed: give the stock straight back
		if rerr := s.stock.ReturnStock(context.WithoutCancel(ctx), items); rerr != nil {
			s.log.Error("return stock after failed save",
				zap.String("reservation_id", id), zap.Error(rerr))
		}
		return Result{}, fmt.Errorf("save reservation: %w", err)
	}
	return Result{Success: true, ExpiresAt: r.ExpiresAt}, nil
}

// Release returns the reserved quantities and drops the record. Releasing an
// unknown, already released, discarded or swept reservation is a no-op.
func (s *Service) Release(ctx context.Context, id string) error {
	_, err := s.release(ctx, id)
	return err
}

// release reports whether this call claimed the record and returned its stock.
func (s *Service) release(ctx context.Context, id string) (bool, error) {
	r, ok, err := s.store.Claim(ctx, id)
	if err != nil {
		return false, fmt.Errorf("claim reservation: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := s.stock.ReturnStock(ctx, r.Items); err != nil {
		// put the record back so a later release or sweep can finish the job
		if serr := s.store.Save(context.WithoutCancel(ctx), r); serr != nil {
			s.log.Error("restore reservation record after failed release",
				zap.String("reservation_id", id), zap.Error(serr))
		}
		return false, fmt.Errorf("return stock: %w", err)
	}
	return true, nil
}

// DiscardReservation drops the record and leaves the stock deducted. Stock
// was already taken by Reserve, so this is what "confirming the deduction"
// amounts to.
func (s *Service) DiscardReservation(ctx context.Context, id string) error {
	if _, _, err := s.store.Claim(ctx, id); err != nil {
		return fmt.Errorf("claim reservation: %w", err)
	}
	return nil
}

// SweepExpired resolves up to limit reservations whose TTL has passed and
// reports how many it restocked.
func (s *Service) SweepExpired(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.Expired(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	restocked := 0
	for _, id := range ids {
		action := ExpireRestock
		if s.policy != nil {
			action, err = s.policy.OnExpiry(ctx, id)
			if err != nil {
				s.log.Warn("expiry policy failed, leaving reservation",
					zap.String("reservation_id", id), zap.Error(err))
				continue
			}
		}
		switch action {
		case ExpireSkip:
			continue
		case ExpireDiscard:
			if err := s.DiscardReservation(ctx, id); err != nil {
				s.log.Error("discard expired reservation", zap.String("reservation_id", id), zap.Error(err))
			}
		default:
			released, err := s.release(ctx, id)
			if err != nil {
				s.log.Error("release expired reservation", zap.String("reservation_id", id), zap.Error(err))
				continue
			}
			if !released {
				continue
			}
			restocked++
			s.log.Info("expired reservation restocked", zap.String("reservation_id", id))
		}
	}
	return restocked, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration, batch int) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.SweepExpired(ctx, batch); err != nil {
				s.log.Warn("reservation sweep", zap.Error(err))
			}
		}
	}
}
