package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/address"
	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/ariefcatur/go-checkout-orders/internal/cart"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateOrder_Confirmed(t *testing.T) {
	f := newFixture(t)
	crt := f.fillCart(t, "c-1")

	o, err := f.co.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-ok", Notes: "leave at door",
	})
	require.NoError(t, err)

	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.True(t, o.Subtotal.Equal(dec("50")))
	assert.True(t, o.Shipping.IsZero())
	assert.True(t, o.Tax.Equal(dec("5")))
	assert.True(t, o.Total.Equal(dec("55")))
	assert.NotNil(t, o.ConfirmedAt)
	assert.Equal(t, "Ada L", o.ShippingAddress.FullName)
	assert.Equal(t, "leave at door", o.Notes)
	assert.Regexp(t, `^ORD-\d{6}-0001$`, o.Number)
	require.Len(t, o.Items, 2)
	assert.Equal(t, orders.ItemPending, o.Items[0].Status)

	assert.Equal(t, 9, f.cat.Stock(itemA))
	assert.Equal(t, 8, f.cat.Stock(itemB))
	assert.Zero(t, f.resv.Len(), "reservation discarded")

	stored, ok := f.carts.Get(crt.ID)
	require.True(t, ok)
	assert.Equal(t, cart.StatusConverted, stored.Status)

	pay, err := f.proc.Get(context.Background(), o.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, pay.Status)
	assert.True(t, pay.Amount.Equal(dec("55")))

	h := f.history(t, o.ID)
	require.Len(t, h, 2)
	assert.Equal(t, "pending", h[0].ToStatus)
	assert.Equal(t, "confirmed", h[1].ToStatus)

	assert.Equal(t, []string{orders.EventOrderCreated, orders.EventOrderConfirmed}, f.events.All())
}

func TestCreateOrder_DeclinedReleasesStock(t *testing.T) {
	f := newFixture(t)
	crt := f.fillCart(t, "c-1")

	o, err := f.co.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-decline",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.PaymentDeclined)
	e, _ := apperr.As(err)
	assert.Equal(t, "card_declined", e.Code)
	assert.Equal(t, o.ID, e.Details.(map[string]string)["order_id"])

	stored, err := f.ledger.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusFailed, stored.Status)
	assert.Equal(t, orders.PaymentFailed, stored.PaymentStatus)

	pay, err := f.proc.Get(context.Background(), stored.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, pay.Status)

	assert.Equal(t, 10, f.cat.Stock(itemA))
	assert.Equal(t, 10, f.cat.Stock(itemB))
	assert.Zero(t, f.resv.Len())

	c, ok := f.carts.Get(crt.ID)
	require.True(t, ok)
	assert.Equal(t, cart.StatusActive, c.Status)
	assert.Equal(t, []string{orders.EventOrderCreated, orders.EventOrderFailed}, f.events.All())
}

func TestCreateOrder_GatewayDownIsDependency(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, "c-1")

	_, err := f.co.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-down",
	})
	assert.ErrorIs(t, err, apperr.Dependency)
	assert.Equal(t, 10, f.cat.Stock(itemA))
	assert.Equal(t, 10, f.cat.Stock(itemB))
}

func TestCreateOrder_StaleCartHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, "c-1")
	f.cat.SetPrice(itemA, dec("21"))

	_, err := f.co.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-ok",
	})
	require.ErrorIs(t, err, apperr.Validation)
	e, _ := apperr.As(err)
	assert.Equal(t, "cart_invalid", e.Code)
	issues, ok := e.Details.([]cart.Issue)
	require.True(t, ok)
	assert.Equal(t, cart.IssuePriceChanged, issues[0].Kind)

	p, _ := f.ledger.List(context.Background(), orders.Filter{})
	assert.Zero(t, p.Total)
	assert.Equal(t, 10, f.cat.Stock(itemA))

	// the corrected price sticks, so a retry goes through at the new price
	o, err := f.co.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-ok",
	})
	require.NoError(t, err)
	assert.True(t, o.Subtotal.Equal(dec("51")))
}

func TestCreateOrder_LookupFailures(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, "c-1")
	ctx := context.Background()

	cases := []struct {
		in   CreateOrderInput
		kind apperr.Kind
		code string
	}{
		{CreateOrderInput{CustomerID: "c-1", ShippingAddressID: "addr-x", PaymentCardID: "card-ok"}, apperr.NotFound, "address_not_found"},
		{CreateOrderInput{CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-other"}, apperr.NotFound, "card_not_found"},
		{CreateOrderInput{CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-old"}, apperr.Validation, "card_expired"},
		{CreateOrderInput{CustomerID: "c-1", ShippingAddressID: "addr-1"}, apperr.Validation, "missing_fields"},
		{CreateOrderInput{CustomerID: "c-9", ShippingAddressID: "addr-1", PaymentCardID: "card-ok"}, apperr.Validation, "empty_cart"},
	}
	for _, c := range cases {
		_, err := f.co.CreateOrder(ctx, c.in)
		require.Error(t, err)
		e, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, c.kind, e.Kind, c.code)
		assert.Equal(t, c.code, e.Code)
	}
	assert.Equal(t, 10, f.cat.Stock(itemA))
	assert.Zero(t, f.resv.Len())
}

type faultyLedger struct {
	orders.Ledger
	createErr error
	panicOn   bool
	failSave  atomic.Bool
}

func (l *faultyLedger) Create(ctx context.Context, o orders.Order, h ...orders.History) (orders.Order, error) {
	if l.panicOn {
		panic("ledger exploded")
	}
	if l.createErr != nil {
		return orders.Order{}, l.createErr
	}
	return l.Ledger.Create(ctx, o, h...)
}

func (l *faultyLedger) Save(ctx context.Context, o orders.Order, h ...orders.History) (orders.Order, error) {
	if l.failSave.Load() {
		return orders.Order{}, errors.New("connection reset")
	}
	return l.Ledger.Save(ctx, o, h...)
}

func withLedger(f *fixture, l orders.Ledger) *Coordinator {
	d := f.deps
	d.Ledger = l
	return NewCoordinator(d, f.co.cfg, zap.NewNop())
}

func TestCreateOrder_PersistFailureReleasesStock(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, "c-1")
	co := withLedger(f, &faultyLedger{Ledger: f.ledger, createErr: errors.New("disk full")})

	_, err := co.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-ok",
	})
	assert.ErrorIs(t, err, apperr.Dependency)
	e, _ := apperr.As(err)
	assert.NotContains(t, e.Message, "disk full")
	assert.Equal(t, 10, f.cat.Stock(itemA))
	assert.Equal(t, 10, f.cat.Stock(itemB))
	assert.Zero(t, f.resv.Len())
}

func TestCreateOrder_PanicReleasesStock(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, "c-1")
	co := withLedger(f, &faultyLedger{Ledger: f.ledger, panicOn: true})

	assert.Panics(t, func() {
		_, _ = co.CreateOrder(context.Background(), CreateOrderInput{
			CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-ok",
		})
	})
	assert.Equal(t, 10, f.cat.Stock(itemA))
	assert.Equal(t, 10, f.cat.Stock(itemB))
	assert.Zero(t, f.resv.Len())
}

func TestCreateOrder_ConfirmFailureKeepsStockForReconciler(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, "c-1")
	l := &faultyLedger{Ledger: f.ledger}
	l.failSave.Store(true)
	co := withLedger(f, l)

	o, err := co.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-ok",
	})
	require.NoError(t, err, "the charge went through")
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, 9, f.cat.Stock(itemA), "paid stock is not released")
	assert.Equal(t, 1, f.resv.Len())

	f.rec.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := f.rec.Reconcile(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.ledger.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, got.Status)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)
	assert.Zero(t, f.resv.Len())
	assert.Equal(t, 9, f.cat.Stock(itemA))
}

func TestCreateOrder_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const customers = 20
	for i := 0; i < customers; i++ {
		id := fmt.Sprintf("cust-%d", i)
		f.pay.PutCard(payment.Card{ID: "card-" + id, CustomerID: id, ExpMonth: 12, ExpYear: 2099, Token: "tok_visa"})
		f.addrs.Put(address.Address{ID: "addr-" + id, CustomerID: id, FullName: id})
		_, err := f.cartSvc.AddItem(ctx, id, cart.AddItemInput{VendorProductID: "vp-c", Quantity: 1})
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		confirmed atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.co.CreateOrder(ctx, CreateOrderInput{CustomerID: id, ShippingAddressID: "addr-" + id, PaymentCardID: "card-" + id})
			switch {
			case err == nil:
				confirmed.Add(1)
			case errors.Is(err, apperr.Validation):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("cust-%d", i))
	}
	wg.Wait()

	assert.EqualValues(t, 5, confirmed.Load())
	assert.EqualValues(t, customers-5, rejected.Load())
	assert.Equal(t, 0, f.cat.Stock(itemC))
	assert.Zero(t, f.resv.Len())
}

func TestCreateOrder_SecondSubmitWhileFirstChargesIsRejected(t *testing.T) {
	f := newFixture(t)
	gw := newHeldGateway()
	f.useGateway(gw)
	crt := f.fillCart(t, "c-1")
	ctx := context.Background()
	in := CreateOrderInput{CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-ok"}

	type result struct {
		o   orders.Order
		err error
	}
	first := make(chan result, 1)
	go func() {
		o, err := f.co.CreateOrder(ctx, in)
		first <- result{o, err}
	}()
	<-gw.entered

	_, err := f.co.CreateOrder(ctx, in)
	require.ErrorIs(t, err, apperr.Conflict)
	e, _ := apperr.As(err)
	assert.Equal(t, "checkout_in_progress", e.Code)

	close(gw.release)
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, orders.StatusConfirmed, r.o.Status)

	// the cart is converted, so a late resubmit has nothing to buy
	_, err = f.co.CreateOrder(ctx, in)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "empty_cart", e.Code)

	p, err := f.ledger.List(ctx, orders.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Total)
	assert.Equal(t, 9, f.cat.Stock(itemA))
	assert.Equal(t, 8, f.cat.Stock(itemB))
	stored, _ := f.carts.Get(crt.ID)
	assert.Equal(t, cart.StatusConverted, stored.Status)
}

func TestCreateOrder_ConcurrentSubmitsOfOneCart(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, "c-1")
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		confirmed atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.co.CreateOrder(ctx, CreateOrderInput{CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-ok"})
			switch {
			case err == nil:
				confirmed.Add(1)
			case errors.Is(err, apperr.Conflict), errors.Is(err, apperr.Validation):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, confirmed.Load())
	p, err := f.ledger.List(ctx, orders.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Total)
	assert.Equal(t, 9, f.cat.Stock(itemA))
	assert.Equal(t, 8, f.cat.Stock(itemB))
	assert.Zero(t, f.resv.Len())
}

type hookedPayments struct {
	Payments
	beforeCharge func(orderID string)
}

func (h hookedPayments) Charge(ctx context.Context, orderID, cardID string, amount decimal.Decimal, currency string) (payment.Payment, error) {
	h.beforeCharge(orderID)
	return h.Payments.Charge(ctx, orderID, cardID, amount, currency)
}

func TestCreateOrder_ChargeOnCancelledOrderIsRefunded(t *testing.T) {
	f := newFixture(t)
	crt := f.fillCart(t, "c-1")
	ctx := context.Background()

	d := f.deps
	d.Payments = hookedPayments{Payments: f.proc, beforeCharge: func(orderID string) {
		_, err := f.co.CancelOrder(ctx, orderID, "changed my mind", "c-1")
		require.NoError(t, err)
	}}
	co := NewCoordinator(d, f.co.cfg, zap.NewNop())

	o, err := co.CreateOrder(ctx, CreateOrderInput{CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: "card-ok"})
	require.ErrorIs(t, err, apperr.Conflict)
	e, _ := apperr.As(err)
	assert.Equal(t, "order_closed_during_payment", e.Code)
	assert.Equal(t, o.ID, e.Details.(map[string]string)["order_id"])

	stored, err := f.ledger.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, stored.Status)
	assert.Equal(t, orders.PaymentRefunded, stored.PaymentStatus)
	require.NotEmpty(t, stored.PaymentID)

	pay, err := f.proc.Get(ctx, stored.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, pay.Status)
	assert.True(t, pay.RefundedAmount.Equal(dec("55")))

	assert.Equal(t, 10, f.cat.Stock(itemA))
	assert.Equal(t, 10, f.cat.Stock(itemB))
	assert.Zero(t, f.resv.Len())
	c, _ := f.carts.Get(crt.ID)
	assert.Equal(t, cart.StatusActive, c.Status, "nothing was bought")
}
