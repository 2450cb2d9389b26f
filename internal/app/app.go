// Package app wires configuration, storage, domain services, the event
// relay, and the HTTP server into a running process.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/referral"
	"github.com/xenking/storefront/internal/domain/shipping"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/events/kafka"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	taxRate, err := cfg.ParsedTaxRate()
	if err != nil {
		return err
	}
	shipRate, err := decimal.NewFromString(cfg.Shipping.Rate)
	if err != nil {
		return errors.Wrapf(err, "shipping rate %q", cfg.Shipping.Rate)
	}
	freeOver, err := decimal.NewFromString(cfg.Shipping.FreeOver)
	if err != nil {
		return errors.Wrapf(err, "free shipping threshold %q", cfg.Shipping.FreeOver)
	}

	store, err := postgres.Connect(ctx, cfg.DatabaseURL, lg.Named("postgres"))
	if err != nil {
		return errors.Wrap(err, "connect database")
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return errors.Wrap(err, "migrate")
	}

	checker := health.NewChecker()
	checker.Register(health.Readiness, "postgres", 5*time.Second, health.PingCheck(store))
	checker.Register(health.Liveness, "goroutines", time.Second, health.GoroutineCheck(10000))
	checker.Start(ctx, 10*time.Second)
	defer checker.Stop()

	// Domain services.
	carts := cart.NewService(store.Carts(), store.Catalog())
	validator := coupon.NewRepoValidator(store.Coupons())
	flatRate := shipping.NewFlatRate(cfg.Shipping.Method, shipRate, freeOver)
	assembler := order.NewAssembler(store.Carts(), store.Catalog(), validator, flatRate, store, taxRate)
	attributor := referral.NewAttributor(store.Referrals(), lg.Named("referral"), cfg.Referral.Window)
	gateways := payment.Registry{"manual": payment.NewManual()}
	lifecycle := order.NewLifecycle(store.Orders(), gateways, attributor, lg.Named("lifecycle"))

	// Event publishing: Kafka when brokers are configured, logs otherwise.
	var sink events.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := kafka.NewSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return errors.Wrap(err, "create kafka sink")
		}
		defer func() { _ = kafkaSink.Close() }()
		sink = kafkaSink
	} else {
		sink = events.NewLogSink(lg.Named("events"))
	}
	relay := events.NewRelay(store.Outbox(), sink, lg.Named("outbox"), cfg.Outbox.Interval, cfg.Outbox.BatchSize)

	// HTTP surface.
	h := handler.New(carts, assembler, lifecycle, attributor, lg.Named("http"))
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", checker.LiveHandler)
	mux.HandleFunc("/readyz", checker.ReadyHandler)
	h.Routes(mux)

	chained := httpmiddleware.Chain(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(cfg.CORS.Origins),
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Logging(),
	)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(chained, "storefront",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "outbox relay")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		checker.SetReady(false)
		lg.Info("Draining before shutdown", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		checker.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
