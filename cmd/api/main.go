package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/address"
	"github.com/ariefcatur/go-checkout-orders/internal/cart"
	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/config"
	"github.com/ariefcatur/go-checkout-orders/internal/httpx"
	"github.com/ariefcatur/go-checkout-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"github.com/ariefcatur/go-checkout-orders/internal/logx"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/ariefcatur/go-checkout-orders/internal/postgres"
	"github.com/ariefcatur/go-checkout-orders/internal/projection"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sweepBatch = 100

// stores is everything that differs between the postgres and memory modes.
type stores struct {
	catalog interface {
		httpx.ProductFinder
		cart.ProductLookup
		cart.StockChecker
		inventory.StockStore
	}
	carts        cart.Store
	claims       checkout.CheckoutClaims
	addresses    address.Book
	payments     payment.Store
	cards        payment.CardStore
	ledger       orders.Ledger
	reservations inventory.ReservationStore
	events       orders.Publisher
	status       httpx.StatusCache
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logx.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st      stores
		cleanup []func()
	)
	switch cfg.Storage {
	case "memory":
		st = memoryStores()
		log.Warn("running with in-memory storage; data is lost on exit")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		cleanup = append(cleanup, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("db migrate", zap.Error(err))
		}

		rdb := redisx.New(cfg.RedisAddr)
		cleanup = append(cleanup, func() { _ = rdb.Close() })

		prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start()
		// runs before db/redis close: flush pending events first
		cleanup = append(cleanup, prod.Close)

		pay := &payment.Repo{DB: db}
		st = stores{
			catalog:      &catalog.Repo{DB: db},
			carts:        &cart.Repo{DB: db},
			claims:       cart.NewRedisClaims(rdb),
			addresses:    &address.Repo{DB: db},
			payments:     pay,
			cards:        pay,
			ledger:       &orders.Repo{DB: db},
			reservations: inventory.NewRedisStore(rdb, cfg.ReservationGrace),
			events:       &orders.KafkaPublisher{Producer: prod, Service: cfg.ServiceName, Log: log},
			status:       projection.NewCache(rdb),
		}
	}
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	inv := inventory.NewService(st.catalog, st.reservations, log.Named("inventory"))
	validator := cart.NewValidator(st.carts, st.catalog)
	deps := checkout.Deps{
		Validator: validator,
		Carts:     st.carts,
		Claims:    st.claims,
		Addresses: st.addresses,
		Cards:     st.cards,
		Stock:     inv,
		Payments:  payment.NewProcessor(st.payments, st.cards, payment.SimulatedGateway{}, log.Named("payment")),
		Ledger:    st.ledger,
		Events:    st.events,
	}
	co := checkout.NewCoordinator(deps, checkout.Config{
		ReservationTTL:    cfg.ReservationTTL,
		OrderNumberPrefix: cfg.OrderNumberPrefix,
		Pricing: checkout.Pricing{
			TaxRate:               cfg.TaxRate,
			FreeShippingThreshold: cfg.FreeShippingThreshold,
			BaseShipping:          cfg.BaseShipping,
			PerItemShipping:       cfg.PerItemShipping,
		},
	}, log.Named("checkout"))
	rec := checkout.NewReconciler(deps, cfg.PendingOrderTimeout, log.Named("reconciler"))
	inv.SetExpiryPolicy(rec)

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{
		Orders:  co,
		Status:  st.status,
		Limiter: httpx.NewActorLimiter(cfg.CheckoutRate, cfg.CheckoutBurst),
		Log:     log,
	}).Register(router)
	(&httpx.CartHandler{
		Carts:     cart.NewService(st.carts, st.catalog, cfg.Currency),
		Validator: validator,
		Products:  st.catalog,
		Log:       log,
	}).Register(router)
	(&httpx.AccountHandler{Cards: st.cards, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return inv.RunSweeper(gctx, cfg.SweepInterval, sweepBatch) })
	g.Go(func() error { return rec.Run(gctx, cfg.SweepInterval, sweepBatch) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("exit", zap.Error(err))
	}
}

func memoryStores() stores {
	cat := catalog.NewMemory()
	pay := payment.NewMemory()
	addrs := address.NewMemory()
	seedDemo(cat, pay, addrs)
	return stores{
		catalog:      cat,
		carts:        cart.NewMemory(),
		claims:       cart.NewMemoryClaims(),
		addresses:    addrs,
		payments:     pay,
		cards:        pay,
		ledger:       orders.NewMemory(),
		reservations: inventory.NewMemoryStore(),
		events:       orders.NopPublisher{},
	}
}
