package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/checkout"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/idempotency"
	"github.com/xenking/kart-checkout/internal/payment/stripeapi"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

const serviceName = "kart-checkout"

// maxProcessorCalls is the longest sequential chain of processor calls in one
// request: coupon lookup and create, tax rate lookup and create, session.
const maxProcessorCalls = 5

// purchaseWriteTimeout bounds a response by maxProcessorCalls processor
// timeouts plus a margin for the database and rendering.
func purchaseWriteTimeout(stripeTimeout time.Duration) time.Duration {
	return stripeTimeout*maxProcessorCalls + 5*time.Second
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("payment_mode", cfg.Stripe.PaymentMode),
		zap.String("default_currency", cfg.Stripe.DefaultCurrency),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadiness(health.Check{Name: "postgres", Timeout: 5 * time.Second, Func: health.PingCheck(pool)})
	healthSvc.AddLiveness(health.Check{Name: "goroutines", Timeout: time.Second, Func: health.GoroutineCountCheck(10000)})

	// Redis is optional: without it buy requests are not replayed.
	var idem idempotency.Store
	if cfg.RedisURL != "" {
		rdb, err := idempotency.NewClient(ctx, idempotency.ClientConfig{
			URL:          cfg.RedisURL,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		})
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func(c *redis.Client) { _ = c.Close() }(rdb)

		idem = idempotency.NewRedisStore(rdb, cfg.Idempotency.TTL)
		healthSvc.AddReadiness(health.Check{Name: "redis", Timeout: 2 * time.Second, Func: health.RedisCheck(rdb)})
	} else {
		lg.Warn("Redis URL is not set, Idempotency-Key replay disabled")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	itemRepo := postgres.NewItemRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	discountRepo := postgres.NewDiscountRepository(pool)
	taxRepo := postgres.NewTaxRepository(pool)

	// Payment processor.
	processor := stripeapi.New(stripeapi.Config{
		Timeout:        cfg.Stripe.Timeout,
		URL:            cfg.Stripe.APIURL,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}, lg)

	metrics, err := checkout.NewMetrics(m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	// Checkout services.
	keys := cfg.Keyring()
	provisioner := checkout.NewProvisioner(processor, keys, cfg.DefaultCurrency(), discountRepo, taxRepo, metrics)
	builder := checkout.NewSessionBuilder(processor, keys, provisioner, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL)
	svc := checkout.NewService(
		itemRepo,
		orderRepo,
		keys,
		builder,
		cfg.Mode(),
		m.TracerProvider().Tracer(serviceName),
		metrics,
	)

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})
	go limiter.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(svc, handler.Options{
		Idempotency: idem,
		BuyLimit:    limiter.Middleware(),
	}).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      purchaseWriteTimeout(cfg.Stripe.Timeout),
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
