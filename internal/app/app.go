package app

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/coupon"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/payment"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/event"
	"github.com/xenking/bistro/internal/handler"
	"github.com/xenking/bistro/internal/storage/postgres"
	"github.com/xenking/bistro/internal/storage/redis"
	"github.com/xenking/bistro/pkg/health"
	"github.com/xenking/bistro/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("counter", cfg.Counter.Driver),
		zap.String("events", cfg.Events.Driver),
	)

	deliveryFee, err := cfg.DeliveryFee()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))

	var closers []io.Closer
	defer func() {
		if err := closeAll(closers); err != nil {
			lg.Warn("Close resources", zap.Error(err))
		}
	}()

	seq, closer, err := newSequence(ctx, cfg, pool, healthSvc)
	if err != nil {
		return err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	events, closer, err := newPublisher(cfg, lg, healthSvc)
	if err != nil {
		return err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	loyaltyRepo := postgres.NewLoyaltyRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	orderService := order.NewService(order.ServiceDeps{
		Products: productRepo,
		Coupons:  coupon.NewRepoValidator(couponRepo),
		Loyalty:  loyaltyRepo,
		Orders:   orderRepo,
		Sequence: seq,
		Pricing:  pricing.NewService(pricing.Config{DeliveryFee: deliveryFee}),
		Events:   events,
		Location: loc,
	})
	reconciler, err := payment.NewReconciler(cfg.PaymentConfig(), orderRepo, events,
		payment.WithMeterProvider(m.MeterProvider()),
		payment.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create reconciler")
	}
	if reconciler.AuthDisabled() {
		lg.Warn("Payment webhook secret is empty, callbacks are not authenticated")
	}

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{
			ImageBaseURL:       cfg.ImageBaseURL,
			WebhookTokenHeader: cfg.Webhook.TokenHeader,
		},
		productRepo,
		orderService,
		reconciler,
		auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Router())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key", "Idempotency-Key", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip: func(r *http.Request) bool {
					return r.URL.Path == handler.WebhookPath
				},
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("bistro-api", m),
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

// newSequence builds the daily order number counter. The returned closer is
// nil when the counter shares the database pool.
func newSequence(ctx context.Context, cfg *Config, pool *pgxpool.Pool, hs *health.Health) (order.Sequence, io.Closer, error) {
	switch cfg.Counter.Driver {
	case "redis":
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect redis")
		}
		hs.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		return redis.NewSequence(rdb, cfg.Counter.Prefix+":", cfg.Redis.TTL), rdb, nil
	default:
		return postgres.NewSequence(pool, cfg.Counter.Prefix), nil, nil
	}
}

// brokerFailureThreshold tolerates about a minute of broker outage before
// the instance reports unready.
const brokerFailureThreshold = 6

// newPublisher builds the event publisher. Broker publishers are combined
// with the log publisher so every event also shows up in the service log.
func newPublisher(cfg *Config, lg *zap.Logger, hs *health.Health) (order.Publisher, io.Closer, error) {
	enc := event.NewEncoder(cfg.Events.Producer)
	switch cfg.Events.Driver {
	case "kafka":
		p, err := event.NewKafkaPublisher(event.KafkaConfig{
			Brokers: cfg.Events.Kafka.Brokers,
			Topic:   cfg.Events.Kafka.Topic,
			Async:   cfg.Events.Kafka.Async,
		}, enc, lg.Named("kafka"))
		if err != nil {
			return nil, nil, errors.Wrap(err, "create kafka publisher")
		}
		hs.AddReadinessCheck("kafka", 5*time.Second, health.PingCheck("kafka", p),
			health.WithThresholds(brokerFailureThreshold, 1))
		return event.Multi{event.LogPublisher{}, p}, p, nil
	case "amqp":
		p, err := event.NewAMQPPublisher(event.AMQPConfig{
			URL:      cfg.Events.AMQP.URL,
			Exchange: cfg.Events.AMQP.Exchange,
		}, enc)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create amqp publisher")
		}
		hs.AddReadinessCheck("amqp", 5*time.Second, health.PingCheck("amqp", p),
			health.WithThresholds(brokerFailureThreshold, 1))
		return event.Multi{event.LogPublisher{}, p}, p, nil
	default:
		return event.LogPublisher{}, nil, nil
	}
}

func closeAll(closers []io.Closer) error {
	var g errgroup.Group
	for _, c := range closers {
		g.Go(c.Close)
	}
	return g.Wait()
}
