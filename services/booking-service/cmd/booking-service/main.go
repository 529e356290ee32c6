package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/mentorslots/libs/config"
	"github.com/md-rashed-zaman/mentorslots/libs/db"
	"github.com/md-rashed-zaman/mentorslots/libs/grpcx"
	"github.com/md-rashed-zaman/mentorslots/libs/httpx"
	"github.com/md-rashed-zaman/mentorslots/libs/kafkax"
	otelx "github.com/md-rashed-zaman/mentorslots/libs/otel"
	"github.com/md-rashed-zaman/mentorslots/libs/runtime"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("booking-service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8083")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	storeTimeout, err := config.Duration("STORE_TIMEOUT", 3*time.Second)
	if err != nil {
		return err
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return err
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return err
	}
	rateLimit, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return err
	}
	offsetsTTL, err := config.Duration("REMINDER_OFFSETS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return err
	}
	fallbackOffsets, ok := policy.ParseOffsets(config.String("DEFAULT_REMINDER_OFFSETS_MINUTES", "60,30,10,1"))
	if !ok {
		logger.Warn("DEFAULT_REMINDER_OFFSETS_MINUTES unusable, using built-in defaults")
		fallbackOffsets = policy.DefaultOffsets()
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns), StatementTimeout: storeTimeout})
	if err != nil {
		return err
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		version, _ := db.MigrationVersion(ctx, pool)
		logger.Info("database migrated", "version", version)
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
	}

	outboxRepo := outbox.NewRepository()
	store := storage.NewStore(pool, outboxRepo)
	offsets := policy.NewCachedProvider(policy.NewSettingsProvider(store, logger, fallbackOffsets), rdb, offsetsTTL, logger)

	finder := availability.NewFinder(store, logger, availability.FinderConfig{StoreTimeout: storeTimeout})
	committer := booking.NewCommitter(store, offsets, logger, booking.Config{StoreTimeout: storeTimeout})

	brokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	publisherDone := runtime.Go(ctx, publisher.Run)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewSessionHandler(finder, committer, store, logger).Register(mux)

	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rateLimitMW = httpx.NewRedisLimiter(rdb, httpx.RedisLimitOptions{
			PerWindow: rateLimit,
			Window:    time.Minute,
			FailOpen:  config.Bool("RATE_LIMIT_FAIL_OPEN", true),
			Logger:    logger,
		}).Middleware()
		logger.Info("rate limiting enabled (redis)", "per_minute", rateLimit)
	} else {
		rateLimitMW = httpx.NewRateLimiter(float64(rateLimit)/60, rateLimit).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", rateLimit)
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			Origins: config.List("CORS_ALLOWED_ORIGINS", ""),
			MaxAge:  10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer()
	health := grpcx.RegisterHealth(grpcSrv, service)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		return err
	}

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	<-publisherDone
	logger.Info("booking-service stopped")
	return nil
}
