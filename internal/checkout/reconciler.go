package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/cart"
	"github.com/ariefcatur/go-checkout-orders/internal/inventory"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"go.uber.org/zap"
)

const reconcilerActor = "system:reconciler"

// Reconciler resolves orders stuck in pending, for example after a crash
// between persisting the order and finalizing the charge. It also decides
// the fate of expired reservations for the inventory sweeper.
type Reconciler struct {
	ledger   orders.Ledger
	payments Payments
	stock    Stock
	carts    CartStatusSetter
	events   orders.Publisher
	timeout  time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func NewReconciler(d Deps, timeout time.Duration, log *zap.Logger) *Reconciler {
	ev := d.Events
	if ev == nil {
		ev = orders.NopPublisher{}
	}
	return &Reconciler{
		ledger: d.Ledger, payments: d.Payments, stock: d.Stock, carts: d.Carts, events: ev,
		timeout: timeout, now: time.Now, log: log,
	}
}

// OnExpiry keeps stock deducted for orders that went through, leaves
// pending orders to Reconcile and restocks everything else.
func (r *Reconciler) OnExpiry(ctx context.Context, reservationID string) (inventory.ExpiryAction, error) {
	o, err := r.ledger.FindByReservation(ctx, reservationID)
	if errors.Is(err, orders.ErrNotFound) {
		return inventory.ExpireRestock, nil
	}
	if err != nil {
		return inventory.ExpireSkip, err
	}
	switch o.Status {
	case orders.StatusPending:
		return inventory.ExpireSkip, nil
	case orders.StatusFailed, orders.StatusCancelled:
		return inventory.ExpireRestock, nil
	}
	return inventory.ExpireDiscard, nil
}

// Reconcile resolves up to limit pending orders older than the timeout and
// reports how many it moved.
func (r *Reconciler) Reconcile(ctx context.Context, limit int) (int, error) {
	stale, err := r.ledger.StalePending(ctx, r.now().Add(-r.timeout), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range stale {
		moved, err := r.resolve(ctx, o)
		if err != nil {
			r.log.Warn("reconcile order", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		if moved {
			n++
		}
	}
	return n, nil
}

func (r *Reconciler) resolve(ctx context.Context, o orders.Order) (bool, error) {
	log := r.log.With(zap.String("order_id", o.ID), zap.String("reservation_id", o.ReservationID))
	pay, err := r.payments.LatestForOrder(ctx, o.ID)
	switch {
	case errors.Is(err, payment.ErrNotFound):
		return r.finish(ctx, o, orders.StatusCancelled, orders.PaymentPending, "", "no payment attempted before timeout", log)
	case err != nil:
		return false, err
	}

	switch pay.Status {
	case payment.StatusCompleted:
		return r.finish(ctx, o, orders.StatusConfirmed, orders.PaymentPaid, pay.ID, "payment found completed", log)
	case payment.StatusFailed:
		return r.finish(ctx, o, orders.StatusFailed, orders.PaymentFailed, pay.ID, "payment found failed", log)
	}
	log.Warn("pending order has unresolved payment", zap.String("payment_id", pay.ID), zap.String("payment_status", string(pay.Status)))
	return false, nil
}

func (r *Reconciler) finish(ctx context.Context, o orders.Order, to orders.Status, ps orders.PaymentStatus, paymentID, reason string, log *zap.Logger) (bool, error) {
	from := o.Status
	now := r.now().UTC()
	o.Status = to
	o.PaymentStatus = ps
	if paymentID != "" {
		o.PaymentID = paymentID
	}
	switch to {
	case orders.StatusConfirmed:
		o.ConfirmedAt = &now
	case orders.StatusCancelled:
		o.CancelledAt = &now
		o.CancelReason = reason
		for i := range o.Items {
			o.Items[i].Status = orders.ItemCancelled
		}
	}
	saved, err := r.ledger.Save(ctx, o, orders.History{
		FromStatus: string(from), ToStatus: string(to), Reason: reason, ActorID: reconcilerActor,
	})
	if errors.Is(err, orders.ErrStale) {
		// someone else moved it first
		return false, nil
	}
	if err != nil {
		return false, err
	}

	event := orders.EventOrderFailed
	switch to {
	case orders.StatusConfirmed:
		event = orders.EventOrderConfirmed
		if err := r.stock.DiscardReservation(ctx, saved.ReservationID); err != nil {
			log.Warn("discard reservation", zap.Error(err))
		}
		if err := r.carts.SetStatus(ctx, saved.CartID, cart.StatusActive, cart.StatusConverted); err != nil {
			log.Warn("convert cart", zap.String("cart_id", saved.CartID), zap.Error(err))
		}
	case orders.StatusCancelled:
		event = orders.EventOrderCancelled
		fallthrough
	default:
		if err := r.stock.Release(ctx, saved.ReservationID); err != nil {
			log.Warn("release reservation", zap.Error(err))
		}
	}
	r.events.Publish(ctx, event, orders.NewStatusPayload(saved, reason))
	log.Info("pending order reconciled", zap.String("status", string(to)), zap.String("reason", reason))
	return true, nil
}

// Run calls Reconcile every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration, batch int) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := r.Reconcile(ctx, batch); err != nil {
				r.log.Warn("reconcile pending orders", zap.Error(err))
			}
		}
	}
}
