package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/address"
	"github.com/ariefcatur/go-checkout-orders/internal/cart"
	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
	"github.com/ariefcatur/go-checkout-orders/internal/inventory"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	itemA = catalog.StockItem{VendorProductID: "vp-a"}
	itemB = catalog.StockItem{VendorProductID: "vp-b"}
	itemC = catalog.StockItem{VendorProductID: "vp-c"}
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(_ context.Context, eventType string, _ orders.StatusPayload) {
	r.mu.Lock()
	r.events = append(r.events, eventType)
	r.mu.Unlock()
}

func (r *recorder) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fixture struct {
	co      *Coordinator
	rec     *Reconciler
	deps    Deps
	cat     *catalog.Memory
	carts   *cart.Memory
	cartSvc *cart.Service
	pay     *payment.Memory
	proc    *payment.Processor
	inv     *inventory.Service
	resv    *inventory.MemoryStore
	ledger  *orders.Memory
	addrs   *address.Memory
	events  *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cat:    catalog.NewMemory(),
		carts:  cart.NewMemory(),
		pay:    payment.NewMemory(),
		resv:   inventory.NewMemoryStore(),
		ledger: orders.NewMemory(),
		events: &recorder{},
	}
	f.cat.PutProduct(catalog.Product{ID: "p-a", Slug: "mug", Name: "Mug", VendorProducts: []catalog.VendorProduct{{
		ID: "vp-a", VendorID: "v-1", Name: "Mug", Price: dec("20"), Stock: 10, Status: catalog.StatusActive,
	}}})
	f.cat.PutProduct(catalog.Product{ID: "p-b", Slug: "tee", Name: "Tee", VendorProducts: []catalog.VendorProduct{{
		ID: "vp-b", VendorID: "v-2", Name: "Tee", Price: dec("15"), Stock: 10, Status: catalog.StatusActive,
	}}})
	f.cat.PutProduct(catalog.Product{ID: "p-c", Slug: "poster", Name: "Poster", VendorProducts: []catalog.VendorProduct{{
		ID: "vp-c", VendorID: "v-1", Name: "Poster", Price: dec("60"), Stock: 5, Status: catalog.StatusActive,
	}}})

	f.pay.PutCard(payment.Card{ID: "card-ok", CustomerID: "c-1", Last4: "4242", Brand: "visa", ExpMonth: 12, ExpYear: 2099, Token: "tok_visa", IsDefault: true})
	f.pay.PutCard(payment.Card{ID: "card-decline", CustomerID: "c-1", Last4: "0002", Brand: "visa", ExpMonth: 12, ExpYear: 2099, Token: "tok_decline_generic"})
	f.pay.PutCard(payment.Card{ID: "card-down", CustomerID: "c-1", Last4: "0119", Brand: "visa", ExpMonth: 12, ExpYear: 2099, Token: "tok_unreachable"})
	f.pay.PutCard(payment.Card{ID: "card-old", CustomerID: "c-1", Last4: "1111", Brand: "visa", ExpMonth: 1, ExpYear: 2020, Token: "tok_visa"})
	f.pay.PutCard(payment.Card{ID: "card-other", CustomerID: "c-2", Last4: "5555", Brand: "mc", ExpMonth: 12, ExpYear: 2099, Token: "tok_mc"})

	f.addrs = address.NewMemory(
		address.Address{ID: "addr-1", CustomerID: "c-1", FullName: "Ada L", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
	)

	log := zap.NewNop()
	f.proc = payment.NewProcessor(f.pay, f.pay, payment.SimulatedGateway{}, log)
	f.inv = inventory.NewService(f.cat, f.resv, log)
	f.cartSvc = cart.NewService(f.carts, f.cat, "USD")

	f.deps = Deps{
		Validator: cart.NewValidator(f.carts, f.cat),
		Carts:     f.carts,
		Addresses: f.addrs,
		Cards:    f.pay,
		Stock:    f.inv,
		Payments: f.proc,
		Ledger:   f.ledger,
		Events:   f.events,
	}
	f.co = NewCoordinator(f.deps, Config{ReservationTTL: 15 * time.Minute, OrderNumberPrefix: "ORD", Pricing: testPricing}, log)
	f.rec = NewReconciler(f.deps, 30*time.Minute, log)
	f.inv.SetExpiryPolicy(f.rec)
	return f
}

// useGateway rebuilds the processor and everything on top of it around gw.
func (f *fixture) useGateway(gw payment.Gateway) {
	f.proc = payment.NewProcessor(f.pay, f.pay, gw, zap.NewNop())
	f.deps.Payments = f.proc
	f.co = NewCoordinator(f.deps, f.co.cfg, zap.NewNop())
	f.rec = NewReconciler(f.deps, 30*time.Minute, zap.NewNop())
	f.inv.SetExpiryPolicy(f.rec)
}

// heldGateway parks every charge until release is closed.
type heldGateway struct {
	payment.SimulatedGateway
	entered chan struct{}
	release chan struct{}
}

func newHeldGateway() *heldGateway {
	return &heldGateway{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *heldGateway) Charge(ctx context.Context, req payment.ChargeRequest) (string, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.SimulatedGateway.Charge(ctx, req)
}

func (f *fixture) fillCart(t *testing.T, customerID string) cart.Cart {
	t.Helper()
	ctx := context.Background()
	_, err := f.cartSvc.AddItem(ctx, customerID, cart.AddItemInput{VendorProductID: "vp-a", Quantity: 1})
	require.NoError(t, err)
	c, err := f.cartSvc.AddItem(ctx, customerID, cart.AddItemInput{VendorProductID: "vp-b", Quantity: 2})
	require.NoError(t, err)
	return c
}

func (f *fixture) checkout(t *testing.T, card string) orders.Order {
	t.Helper()
	f.fillCart(t, "c-1")
	o, err := f.co.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID: "c-1", ShippingAddressID: "addr-1", PaymentCardID: card,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) history(t *testing.T, orderID string) []orders.History {
	t.Helper()
	h, err := f.ledger.History(context.Background(), orderID)
	require.NoError(t, err)
	return h
}
