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
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/channel"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/dispatch"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/handlers"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/storage"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/sweep"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "reminder-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("reminder-service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8084")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9084")
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
	sendTimeout, err := config.Duration("SEND_TIMEOUT", 10*time.Second)
	if err != nil {
		return err
	}
	interval, err := config.Duration("SWEEP_INTERVAL", 2*time.Minute)
	if err != nil {
		return err
	}
	horizon, err := config.Duration("SWEEP_HORIZON", 24*time.Hour)
	if err != nil {
		return err
	}
	batchSize, err := config.Int("SWEEP_BATCH_SIZE", 500)
	if err != nil {
		return err
	}
	concurrency, err := config.Int("SWEEP_CONCURRENCY", 8)
	if err != nil {
		return err
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

	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(concurrency + 2), StatementTimeout: storeTimeout})
	if err != nil {
		return err
	}
	defer pool.Close()

	// booking-service owns the schema; enable this only for single-binary dev setups.
	if config.Bool("MIGRATE_ON_START", false) {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	channels, closeChannels, err := buildChannels(logger)
	if err != nil {
		return err
	}
	defer closeChannels()
	router := channel.NewRouter(channels...)
	logger.Info("notification channels", "order", router.Names())

	store := storage.NewStore(pool)
	dispatcher := dispatch.NewDispatcher(router, store, logger, dispatch.Config{
		SendTimeout:  sendTimeout,
		StoreTimeout: storeTimeout,
	})
	sweeper := sweep.NewSweeper(store, dispatcher, logger, sweep.Config{
		Interval:     interval,
		Horizon:      horizon,
		BatchSize:    batchSize,
		Concurrency:  concurrency,
		StoreTimeout: storeTimeout,
	})
	sweepDone := runtime.Go(ctx, sweeper.Run)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	if addr := config.String("BOOKING_GRPC_ADDR", ""); addr != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "booking", Check: grpcx.HealthReadyCheck(addr, "booking-service")})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewReminderHandler(sweeper, store, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<16),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, "reminders"),
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
	<-sweepDone
	logger.Info("reminder-service stopped")
	return nil
}
