package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Alecxender1402/QuickCourt/libs/config"
	"github.com/Alecxender1402/QuickCourt/libs/db"
	"github.com/Alecxender1402/QuickCourt/libs/grpcx"
	"github.com/Alecxender1402/QuickCourt/libs/httpx"
	"github.com/Alecxender1402/QuickCourt/libs/kafkax"
	otelx "github.com/Alecxender1402/QuickCourt/libs/otel"
	"github.com/Alecxender1402/QuickCourt/libs/runtime"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/availability"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/booking"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/courts"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/events"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/handlers"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/hours"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/jobs"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/payment"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/settings"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/storage"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/storage/memledger"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := settings.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, _ := cfg.Location()
	var readyChecks []runtime.ReadyCheck

	var (
		ledger       booking.Ledger
		catalog      booking.CourtCatalog
		hoursRepo    hours.Repository
		legacyHours  hours.LegacySource
		courtsLookup hours.CourtLookup
	)
	switch cfg.StorageDriver {
	case "postgres":
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		pgHours := hours.NewPostgresRepository(pool)
		pgCourts := courts.NewPostgresCatalog(pool)
		ledger = storage.NewBookingRepository(pool)
		catalog, courtsLookup = pgCourts, pgCourts
		hoursRepo, legacyHours = pgHours, pgHours
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	default:
		memCourts, err := courts.ParseSeed(cfg.DevCourts)
		if err != nil {
			logger.Error("invalid DEV_COURTS", "err", err)
			os.Exit(1)
		}
		memHours := hours.NewMemoryRepository()
		ledger = memledger.New()
		catalog, courtsLookup = memCourts, memCourts
		hoursRepo, legacyHours = memHours, memHours
		logger.Warn("using in-memory storage; bookings are lost on restart")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		hoursRepo = hours.NewCachedRepository(hoursRepo, rdb, cfg.HoursCacheTTL, "hours", logger)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		logger.Error("notifier init failed", "transport", cfg.NotifyTransport, "err", err)
		os.Exit(1)
	}
	switch n := notifier.(type) {
	case *events.KafkaNotifier:
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	case *events.AMQPNotifier:
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "amqp", Check: n.Ready})
	}

	var payments payment.Recorder = payment.NewLogRecorder(logger)
	if cfg.StripeSecretKey != "" {
		stripeRecorder, err := payment.NewStripeRecorder(payment.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			Currency:  cfg.PaymentCurrency,
		}, logger)
		if err != nil {
			logger.Error("stripe recorder init failed; payments are only logged", "err", err)
		} else {
			payments = stripeRecorder
		}
	}

	store := hours.NewStore(hoursRepo, courtsLookup, legacyHours)
	svc := booking.NewService(booking.Deps{
		Courts:    catalog,
		Hours:     store,
		Evaluator: availability.NewEvaluator(store, loc),
		Ledger:    ledger,
		Payments:  payments,
		Notifier:  notifier,
		Logger:    logger,
	}, booking.Config{
		ElevatedRoles:     cfg.Roles(),
		SideEffectTimeout: cfg.SideEffectTimeout,
	})

	sweeper := jobs.NewSweeper(svc, logger, jobs.SweeperConfig{Interval: cfg.CompletionSweepInterval})
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("completion sweeper failed to start", "err", err)
		os.Exit(1)
	}

	grpcServer := grpcx.NewServer(logger)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}
	grpcServer.SetServing(true, cfg.ServiceName)
	go func() {
		logger.Info("grpc server starting", "addr", grpcLis.Addr().String())
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.NewBookingHandler(svc, logger).Register(mux)

	limiter := httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
	if rdb != nil {
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "rl:"+cfg.ServiceName).Middleware(logger, true)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowedHeaders: []string{"Content-Type", "X-User-Id", "X-Role", "Idempotency-Key", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		limiter,
		httpx.WithBodyLimit(cfg.MaxBodyBytes),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "storage", cfg.StorageDriver, "notify", cfg.NotifyTransport)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcServer.SetServing(false, cfg.ServiceName)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	if err := sweeper.Stop(); err != nil {
		logger.Error("completion sweeper stop error", "err", err)
	}
	svc.Wait()
	if err := notifier.Close(); err != nil {
		logger.Error("notifier close error", "err", err)
	}
	grpcServer.Stop(5 * time.Second)
	logger.Info("booking service stopped")
}

func newNotifier(cfg settings.Config, logger *slog.Logger) (events.Notifier, error) {
	switch cfg.NotifyTransport {
	case "kafka":
		return events.NewKafkaNotifier(cfg.KafkaBrokers)
	case "amqp":
		return events.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
	default:
		return events.NewLogNotifier(logger), nil
	}
}
