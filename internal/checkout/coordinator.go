package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/address"
	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/ariefcatur/go-checkout-orders/internal/cart"
	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
	"github.com/ariefcatur/go-checkout-orders/internal/inventory"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CartValidator interface {
	Validate(ctx context.Context, customerID string) (cart.Result, error)
}

type CartStatusSetter interface {
	SetStatus(ctx context.Context, cartID string, from, to cart.Status) error
}

type CardLookup interface {
	GetCard(ctx context.Context, customerID, cardID string) (payment.Card, error)
}

// CheckoutClaims keeps two checkouts of the same cart from running at once.
type CheckoutClaims interface {
	Claim(ctx context.Context, customerID string, ttl time.Duration) (bool, error)
	Unclaim(ctx context.Context, customerID string) error
}

type Stock interface {
	Reserve(ctx context.Context, id string, items []catalog.StockItem, ttl time.Duration) (inventory.Result, error)
	Release(ctx context.Context, id string) error
	DiscardReservation(ctx context.Context, id string) error
}

type Payments interface {
	Charge(ctx context.Context, orderID, cardID string, amount decimal.Decimal, currency string) (payment.Payment, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (payment.Payment, error)
	Get(ctx context.Context, paymentID string) (payment.Payment, error)
	LatestForOrder(ctx context.Context, orderID string) (payment.Payment, error)
}

type Deps struct {
	Validator CartValidator
	Carts     CartStatusSetter
	Claims    CheckoutClaims
	Addresses address.Book
	Cards     CardLookup
	Stock     Stock
	Payments  Payments
	Ledger    orders.Ledger
	Events    orders.Publisher
}

type Config struct {
	ReservationTTL    time.Duration
	OrderNumberPrefix string
	Pricing           Pricing
}

// Coordinator runs checkout and the post-checkout order lifecycle.
type Coordinator struct {
	Deps
	cfg Config
	now func() time.Time
	log *zap.Logger
}

func NewCoordinator(d Deps, cfg Config, log *zap.Logger) *Coordinator {
	if d.Events == nil {
		d.Events = orders.NopPublisher{}
	}
	if d.Claims == nil {
		d.Claims = cart.NewMemoryClaims()
	}
	return &Coordinator{Deps: d, cfg: cfg, now: time.Now, log: log}
}

type CreateOrderInput struct {
	CustomerID        string `json:"customer_id"`
	ShippingAddressID string `json:"shipping_address_id"`
	PaymentCardID     string `json:"payment_card_id"`
	Notes             string `json:"notes,omitempty"`
}

// CreateOrder turns the customer's active cart into an order.
//
// Steps run strictly in sequence: claim the cart, validate it, resolve address
// and card, reserve stock, price, persist a pending order, charge, finalize.
// A second checkout of the same cart while the claim is held is rejected.
// Failures before the reservation leave nothing behind. From the reservation
// on, a deferred guard releases the reserved stock on every error return or
// panic until the charge succeeds; after that the stock stays with the order.
func (c *Coordinator) CreateOrder(ctx context.Context, in CreateOrderInput) (orders.Order, error) {
	if in.CustomerID == "" || in.ShippingAddressID == "" || in.PaymentCardID == "" {
		return orders.Order{}, apperr.Validationf("missing_fields", "customer, shipping address and payment card are required")
	}
	log := c.log.With(zap.String("customer_id", in.CustomerID))

	claimed, err := c.Claims.Claim(ctx, in.CustomerID, c.claimTTL())
	if err != nil {
		return orders.Order{}, apperr.DependencyErr("checkout_claim", err)
	}
	if !claimed {
		return orders.Order{}, apperr.Conflictf("checkout_in_progress", "a checkout of this cart is already in progress")
	}
	// held on when a paid order could not convert its cart, so the TTL
	// covers the window until the cart is fixed up
	keepClaim := false
	defer func() {
		if keepClaim {
			return
		}
		if err := c.Claims.Unclaim(context.WithoutCancel(ctx), in.CustomerID); err != nil {
			log.Warn("release checkout claim", zap.Error(err))
		}
	}()

	res, err := c.Validator.Validate(ctx, in.CustomerID)
	if err != nil {
		return orders.Order{}, err
	}
	if !res.Valid {
		return orders.Order{}, apperr.Validationf("cart_invalid", "cart changed since it was last viewed").WithDetails(res.Issues)
	}
	crt := res.Cart

	addr, err := c.Addresses.GetUserAddress(ctx, in.CustomerID, in.ShippingAddressID)
	if errors.Is(err, address.ErrNotFound) {
		return orders.Order{}, apperr.NotFoundf("address_not_found", "shipping address %s not found", in.ShippingAddressID)
	}
	if err != nil {
		return orders.Order{}, apperr.DependencyErr("address_lookup_failed", err)
	}
	card, err := c.Cards.GetCard(ctx, in.CustomerID, in.PaymentCardID)
	if errors.Is(err, payment.ErrNotFound) {
		return orders.Order{}, apperr.NotFoundf("card_not_found", "payment card %s not found", in.PaymentCardID)
	}
	if err != nil {
		return orders.Order{}, apperr.DependencyErr("card_lookup_failed", err)
	}
	if card.Expired(c.now()) {
		return orders.Order{}, apperr.Validationf("card_expired", "payment card ending %s has expired", card.Last4)
	}

	reservationID := uuid.NewString()
	log = log.With(zap.String("reservation_id", reservationID))
	rr, err := c.Stock.Reserve(ctx, reservationID, crt.StockItems(), c.cfg.ReservationTTL)
	if errors.Is(err, inventory.ErrInvalidRequest) {
		return orders.Order{}, apperr.Validationf("invalid_items", "cart contains invalid quantities")
	}
	if err != nil {
		return orders.Order{}, apperr.DependencyErr("stock_reservation_failed", err)
	}
	if !rr.Success {
		return orders.Order{}, apperr.Validationf("insufficient_stock", "some items are no longer in stock").WithDetails(rr.Shortages)
	}

	settled := false
	defer func() {
		if !settled {
			c.release(ctx, reservationID, log)
		}
	}()

	o, err := c.persistPending(ctx, in, crt, addr, reservationID)
	if err != nil {
		log.Error("persist order", zap.Error(err))
		return orders.Order{}, apperr.DependencyErr("order_store", err)
	}
	log = log.With(zap.String("order_id", o.ID), zap.String("order_number", o.Number))
	c.Events.Publish(ctx, orders.EventOrderCreated, createdPayload(o))

	pay, err := c.Payments.Charge(ctx, o.ID, in.PaymentCardID, o.Total, o.Currency)
	if err != nil {
		o = c.markFailed(ctx, o, pay.ID, err, log)
		log.Warn("checkout payment failed", zap.Error(err))
		details := map[string]string{"order_id": o.ID, "order_number": o.Number}
		if ae, ok := apperr.As(err); ok {
			return o, ae.WithDetails(details)
		}
		return o, apperr.DependencyErr("payment_failed", err).WithDetails(details)
	}

	// money moved: from here on the reservation belongs to the order
	settled = true
	log = log.With(zap.String("payment_id", pay.ID))

	pending := o
	now := c.now().UTC()
	o.Status = orders.StatusConfirmed
	o.PaymentStatus = orders.PaymentPaid
	o.PaymentID = pay.ID
	o.ConfirmedAt = &now
	saved, err := c.Ledger.Save(context.WithoutCancel(ctx), o, orders.History{
		FromStatus: string(orders.StatusPending), ToStatus: string(orders.StatusConfirmed),
		Reason: "payment captured", ActorID: in.CustomerID,
	})
	if errors.Is(err, orders.ErrStale) {
		cur, gerr := c.Ledger.Get(context.WithoutCancel(ctx), o.ID)
		switch {
		case gerr != nil:
			log.Error("reload order after stale confirm", zap.Error(gerr))
		case cur.Status == orders.StatusCancelled || cur.Status == orders.StatusFailed:
			return c.refundClosed(ctx, cur, pay, log)
		case cur.Status != orders.StatusPending:
			// the reconciler finished it first
			return cur, nil
		}
	}
	if err != nil {
		// the reconciler confirms pending orders with a completed payment
		log.Error("confirm order after payment", zap.Error(err))
		keepClaim = !c.convertCart(ctx, crt.ID, log)
		return pending, nil
	}
	o = saved

	if err := c.Stock.DiscardReservation(context.WithoutCancel(ctx), reservationID); err != nil {
		log.Warn("discard reservation", zap.Error(err))
	}
	keepClaim = !c.convertCart(ctx, crt.ID, log)
	c.Events.Publish(ctx, orders.EventOrderConfirmed, orders.NewStatusPayload(o, "payment captured"))
	log.Info("order confirmed", zap.String("total", o.Total.StringFixed(2)))
	return o, nil
}

func (c *Coordinator) persistPending(ctx context.Context, in CreateOrderInput, crt cart.Cart, addr address.Address, reservationID string) (orders.Order, error) {
	now := c.now().UTC()
	number, err := c.Ledger.NextNumber(ctx, c.cfg.OrderNumberPrefix, now)
	if err != nil {
		return orders.Order{}, err
	}
	totals := c.cfg.Pricing.Compute(crt.Items)
	o := orders.Order{
		Number:        number,
		CustomerID:    in.CustomerID,
		CartID:        crt.ID,
		Status:        orders.StatusPending,
		PaymentStatus: orders.PaymentPending,
		ShippingAddress: orders.Address{
			FullName: addr.FullName, Line1: addr.Line1, Line2: addr.Line2, City: addr.City, State: addr.State,
			PostalCode: addr.PostalCode, Country: addr.Country, Phone: addr.Phone,
		},
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Shipping:      totals.Shipping,
		Discount:      totals.Discount,
		Total:         totals.Total,
		Currency:      crt.Currency,
		ReservationID: reservationID,
		Notes:         in.Notes,
		CreatedAt:     now,
	}
	for _, it := range crt.Items {
		o.Items = append(o.Items, orders.Item{
			ProductID:       it.ProductID,
			VariantID:       it.VariantID,
			VendorID:        it.VendorID,
			VendorProductID: it.VendorProductID,
			VendorVariantID: it.VendorVariantID,
			Name:            it.Name,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			Total:           it.LineTotal(),
			Status:          orders.ItemPending,
		})
	}
	return c.Ledger.Create(ctx, o, orders.History{
		ToStatus: string(orders.StatusPending), Reason: "order placed", ActorID: in.CustomerID,
	})
}

func (c *Coordinator) markFailed(ctx context.Context, o orders.Order, paymentID string, cause error, log *zap.Logger) orders.Order {
	from := o.Status
	o.Status = orders.StatusFailed
	o.PaymentStatus = orders.PaymentFailed
	o.PaymentID = paymentID
	reason := "payment failed"
	if ae, ok := apperr.As(cause); ok {
		reason = "payment failed: " + ae.Code
	}
	saved, err := c.Ledger.Save(context.WithoutCancel(ctx), o, orders.History{
		FromStatus: string(from), ToStatus: string(orders.StatusFailed), Reason: reason, ActorID: o.CustomerID,
	})
	if err != nil {
		log.Error("mark order failed", zap.Error(err))
		return o
	}
	c.Events.Publish(ctx, orders.EventOrderFailed, orders.NewStatusPayload(saved, reason))
	return saved
}

// refundClosed returns a charge that landed on an order cancelled or failed
// while the gateway call was in flight.
func (c *Coordinator) refundClosed(ctx context.Context, o orders.Order, pay payment.Payment, log *zap.Logger) (orders.Order, error) {
	ctx = context.WithoutCancel(ctx)
	log = log.With(zap.String("order_status", string(o.Status)))
	details := map[string]string{"order_id": o.ID, "order_number": o.Number, "payment_id": pay.ID}
	closedErr := apperr.Conflictf("order_closed_during_payment", "order %s was %s while payment was in progress", o.Number, o.Status).WithDetails(details)

	o.PaymentID = pay.ID
	o.PaymentStatus = paymentStatusOf(pay)
	if err := c.refundRemaining(ctx, &o, "order "+string(o.Status)+" during payment"); err != nil {
		log.Error("refund charge on closed order", zap.Error(err))
		return o, closedErr
	}
	saved, err := c.Ledger.Save(ctx, o)
	if err != nil {
		log.Error("record refund on closed order", zap.Error(err))
		return o, closedErr
	}
	c.Events.Publish(ctx, orders.EventOrderStatusChanged, orders.NewStatusPayload(saved, "payment refunded"))
	log.Warn("charge refunded on closed order")
	return saved, closedErr
}

func (c *Coordinator) convertCart(ctx context.Context, cartID string, log *zap.Logger) bool {
	if err := c.Carts.SetStatus(context.WithoutCancel(ctx), cartID, cart.StatusActive, cart.StatusConverted); err != nil {
		log.Warn("convert cart", zap.String("cart_id", cartID), zap.Error(err))
		return false
	}
	return true
}

func (c *Coordinator) claimTTL() time.Duration {
	if c.cfg.ReservationTTL > 0 {
		return c.cfg.ReservationTTL
	}
	return 15 * time.Minute
}

// release returns reserved stock even when ctx is already cancelled.
func (c *Coordinator) release(ctx context.Context, reservationID string, log *zap.Logger) {
	if err := c.Stock.Release(context.WithoutCancel(ctx), reservationID); err != nil {
		log.Error("release reservation", zap.Error(err))
		return
	}
	log.Info("reservation released")
}

func createdPayload(o orders.Order) orders.StatusPayload {
	p := orders.NewStatusPayload(o, "")
	for _, it := range o.Items {
		p.Items = append(p.Items, orders.ItemLine{
			ItemID: it.ID, VendorID: it.VendorID, VendorProductID: it.VendorProductID,
			Quantity: it.Quantity, UnitPrice: it.UnitPrice.StringFixed(2), Status: string(it.Status),
		})
	}
	return p
}

// ledgerErr maps ledger failures onto the error taxonomy.
func ledgerErr(err error, what string) error {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return apperr.NotFoundf(what+"_not_found", "%s not found", what)
	case errors.Is(err, orders.ErrStale):
		return apperr.Conflictf("concurrent_update", "order was modified concurrently, reload and retry")
	}
	return apperr.DependencyErr("order_store", err)
}
