package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/md-rashed-zaman/clinicbook/libs/lock"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/grpcapi"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/reference"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	cfg, err := loadSettings()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("booking-service stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg settings, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	otelCfg, err := otelx.ConfigFromEnv(cfg.Service)
	if err != nil {
		return err
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(reg)

	var (
		checks  []runtime.ReadyCheck
		store   storage.Store
		catalog reference.Catalog
	)

	if cfg.ClinicConfigFile != "" {
		static, err := reference.LoadFile(cfg.ClinicConfigFile)
		if err != nil {
			return err
		}
		logger.Info("clinic reference loaded", "file", cfg.ClinicConfigFile, "clinics", static.ClinicIDs())
		catalog = static
	}

	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultOptions())
		if err != nil {
			logger.Error("db connection failed", "err", err)
			return err
		}
		defer pool.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		if cfg.KafkaBrokers != "" {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		}

		outboxRepo := outbox.NewRepository()
		store = storage.NewPostgresStore(pool, outboxRepo, cfg.LockWait)
		if catalog == nil {
			catalog = reference.NewPostgresCatalog(pool)
		}
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: cfg.OutboxPollEvery,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
	} else {
		logger.Warn("DATABASE_URL not set; appointments are kept in memory only")
		store = storage.NewMemoryStore(cfg.LockWait)
	}

	var (
		locker  lock.Locker = lock.NewKeyed()
		limiter httpx.Middleware
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		locker = lock.NewRedis(rdb, lock.RedisOptions{Prefix: "clinicbook:lock"})
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateWindow, "clinicbook:rl").Middleware(logger, true)
	} else {
		limiter = httpx.NewRateLimiter(cfg.RateLimit, cfg.RateWindow).Middleware()
	}

	engine := booking.New(catalog, store, locker, bookingMetrics, logger, booking.Config{LockWait: cfg.LockWait})

	grpcSrv := grpcx.NewServer(logger)
	grpcapi.Register(grpcSrv, grpcapi.NewServer(engine, logger))
	healthpb.RegisterHealthServer(grpcSrv, health.NewServer())
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	grpcErr := make(chan error, 1)
	go func() { grpcErr <- grpcx.Serve(ctx, logger, grpcSrv, lis, cfg.ShutdownGrace) }()

	router := chi.NewRouter()
	router.Mount("/api/v1", handlers.NewBookingHandler(engine, logger, cfg.LockWait).Routes())

	mux := runtime.NewBaseMuxWithReady(2*time.Second, checks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/api/v1/", httpx.Chain(router,
		limiter,
		httpx.WithBodyLimit(cfg.MaxBodyBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	))
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	httpErr := runtime.ServeHTTP(ctx, logger, srv, cfg.ShutdownGrace)
	cancel()
	if err := <-grpcErr; err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Join(httpErr, err)
	}
	return httpErr
}
