package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KretovDmitry/nairabulk-orders/internal/auth"
	"github.com/KretovDmitry/nairabulk-orders/internal/config"
	"github.com/KretovDmitry/nairabulk-orders/internal/events"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/order"
	"github.com/KretovDmitry/nairabulk-orders/internal/orders"
	"github.com/KretovDmitry/nairabulk-orders/internal/status"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage/gcs"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage/memory"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage/postgres"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage/redis"
	"github.com/KretovDmitry/nairabulk-orders/pkg/accesslog"
	"github.com/KretovDmitry/nairabulk-orders/pkg/limiter"
	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
	"github.com/KretovDmitry/nairabulk-orders/pkg/unzip"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nanmu42/gzip"
)

// Version indicates the current version of the application.
var Version = "1.0.0"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Server run context.
	serverCtx, serverStopCtx := context.WithCancel(context.Background())
	defer serverStopCtx()

	// Load application configurations.
	cfg := config.MustLoad()

	// Create root logger tagged with server version.
	logger := logger.New(cfg).With(serverCtx, "version", Version)
	defer func() { _ = logger.Sync() }()

	// Open the configured storage backend.
	store, closeStore, err := openStorage(serverCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore.Close(); err != nil {
			logger.Errorf("close storage: %s", err)
		}
	}()

	// Connect to the event broker, if any.
	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Errorf("close event publisher: %s", err)
		}
	}()

	// Init admin authentication.
	accounts, err := auth.NewConfiguredAccounts(cfg.Admin.Accounts)
	if err != nil {
		return fmt.Errorf("failed to load admin accounts: %w", err)
	}
	if accounts.Len() == 0 {
		logger.Warn("no admin accounts configured, the admin panel is unreachable")
	}

	authService, err := auth.NewService(accounts, logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to init auth service: %w", err)
	}

	// Init service status, read once at start.
	statusStore, err := status.NewStore(store, logger)
	if err != nil {
		return fmt.Errorf("failed to init service status store: %w", err)
	}
	statusSwitch := status.NewSwitch(serverCtx, statusStore)
	logger.Infof("Service open: %t", statusSwitch.IsOpen())

	// Init repository for orders service.
	ordersRepo, err := orders.NewRepository(store, order.NewIDGenerator(time.Now), logger)
	if err != nil {
		return fmt.Errorf("failed to init orders repository: %w", err)
	}

	// Init orders service.
	ordersService, err := orders.NewService(ordersRepo, statusSwitch, authService, publisher, logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to init orders service: %w", err)
	}

	// Create root router.
	router := initRootRouter(cfg, logger, ordersService.Limits().MaxSizeBytes)

	// Init and group handlers for auth routes.
	auth.HandlerWithOptions(authService, auth.ChiServerOptions{
		BaseURL:          "/api/admin",
		BaseRouter:       router,
		ErrorHandlerFunc: auth.ErrorHandlerFunc,
	})

	// Init handlers for order routes.
	submitLimiter := limiter.New(cfg.RateLimit.Interval, cfg.RateLimit.Burst)
	orders.HandlerWithOptions(orders.NewAPI(ordersService, logger), orders.ChiServerOptions{
		BaseURL:            "/api",
		BaseRouter:         router,
		ErrorHandlerFunc:   orders.ErrorHandlerFunc,
		SubmitMiddlewares:  []orders.MiddlewareFunc{submitLimiter.Middleware},
		AdminMiddlewares:   []orders.MiddlewareFunc{authService.Middleware},
		MaxAttachmentBytes: ordersService.Limits().MaxSizeBytes,
	})

	// Build HTTP server.
	hs := &http.Server{
		Addr:              cfg.HTTPServer.Address,
		ReadHeaderTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:       cfg.HTTPServer.IdleTimeout,
		Handler:           router,
	}

	// Graceful shutdown.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT,
			syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)

		signal := <-sig

		logger.With(serverCtx, "signal", signal.String()).
			Infof("Shutting down server with %s timeout",
				cfg.HTTPServer.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
		defer cancel()

		if err := hs.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("graceful shutdown failed: %s", err)
		}
		serverStopCtx()
	}()

	// Start the HTTP server with graceful shutdown.
	logger.Infof("Server %v is running at %v with %s storage",
		Version, cfg.HTTPServer.Address, cfg.Storage.Backend)
	if err = hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("run server failed: %w", err)
	}

	// Wait for server context to be stopped or force exit if timeout exceeded.
	select {
	case <-serverCtx.Done():
	case <-time.After(cfg.HTTPServer.ShutdownTimeout):
		return errors.New("graceful shutdown timed out.. forcing exit")
	}

	return nil
}

func initRootRouter(cfg *config.Config, logger logger.Logger, maxAttachment int64) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(accesslog.Handler(logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Encoding", accesslog.RequestIDHeader},
		ExposedHeaders:   []string{accesslog.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(gzip.DefaultHandler().WrapHandler)
	// One attachment plus the form fields.
	router.Use(unzip.MiddlewareWithLimit(logger, maxAttachment+1<<20))

	return router
}

// openStorage returns the backend selected by configuration and the
// resource to release on exit.
func openStorage(ctx context.Context, cfg *config.Config, logger logger.Logger) (storage.Store, io.Closer, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		store, db, err := postgres.Open(ctx, cfg.Storage.Postgres.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, db, nil

	case config.BackendRedis:
		store, client, err := redis.Open(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, nil, err
		}
		return store, client, nil

	case config.BackendGCS:
		store, client, err := gcs.Open(ctx, cfg.Storage.GCS)
		if err != nil {
			return nil, nil, err
		}
		return store, client, nil

	case config.BackendMemory:
		logger.Warn("using in-memory storage, orders are lost on restart")
		return memory.New(), closerFunc(func() error { return nil }), nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.Events.AMQPURL == "" {
		return events.Nop{}, nil
	}

	p, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to init event publisher: %w", err)
	}

	return p, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
