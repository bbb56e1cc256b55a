package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appCart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/config"
	domainCart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/inventory"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/notify"
	obsinfra "github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/redisstore"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-cart/internal/presentation/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		LogFile: cfg.LogFile,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := zaplogger.New(logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID))
	if err := cfg.Validate(); err != nil {
		systemLogger.Error("config_invalid", observability.F("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := oteltrace.InitProvider(ctx, oteltrace.ProviderConfig{
		ServiceName: cfg.ServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		systemLogger.Error("tracing_init_failed", observability.F("error", err))
		os.Exit(1)
	}

	metrics := prometrics.New(prometheus.DefaultRegisterer, "", "")
	if err := metrics.Register(observability.Counters, observability.Histograms); err != nil {
		systemLogger.Error("metrics_register_failed", observability.F("error", err))
		os.Exit(1)
	}

	tel := obsinfra.New(
		obsinfra.WithTracer(oteltrace.New(cfg.ServiceName)),
		obsinfra.WithLogger(zaplogger.New(baseLogger)),
		obsinfra.WithMetrics(metrics),
	)

	storage, closeStorage, err := openStorage(ctx, cfg, tel.Logger())
	if err != nil {
		systemLogger.Error("storage_open_failed",
			observability.F("storage", cfg.Storage),
			observability.F("error", err),
		)
		os.Exit(1)
	}
	defer closeStorage()

	inventoryClient, err := inventory.NewClient(cfg.InventoryURL, cfg.InventoryTimeout, tel)
	if err != nil {
		systemLogger.Error("inventory_client_failed", observability.F("error", err))
		os.Exit(1)
	}

	feed := notify.NewFeed(0)
	bus := notify.NewBus(cfg.NotifyBuffer, tel)
	bus.Subscribe("toast_feed", feed.Handle)
	bus.Subscribe("log_sink", notify.LogSink(tel.Logger()))
	bus.Start(ctx)

	opts := []appCart.Option{appCart.WithKey(cfg.CartKey)}
	if cfg.ResetOnCorrupt {
		opts = append(opts, appCart.WithResetOnCorrupt())
	}
	store, err := appCart.NewStore(ctx, storage, inventoryClient, bus, tel, opts...)
	if err != nil {
		systemLogger.Error("cart_load_failed", observability.F("error", err))
		bus.Stop(context.Background())
		os.Exit(1)
	}

	handler := httppresentation.NewHandler(store, feed, tel,
		httppresentation.WithCORS(cfg.CORSAllowOrigins),
	)
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Mount("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("storage", cfg.Storage),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", observability.F("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	bus.Stop(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		systemLogger.Warn("tracing_shutdown_error", observability.F("error", err))
	}
}

func openStorage(ctx context.Context, cfg config.Config, logger observability.Logger) (domainCart.Storage, func(), error) {
	switch cfg.Storage {
	case config.StorageRedis:
		s := redisstore.New(cfg.RedisAddr, logger)
		if err := s.Initialize(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StoragePostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.NewStorage(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		return memory.NewStorage(), func() {}, nil
	}
}
