package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loyalty-points-system/internal/adapters/auth/opa"
	httphandler "loyalty-points-system/internal/adapters/http"
	"loyalty-points-system/internal/adapters/messaging/kafka"
	"loyalty-points-system/internal/adapters/messaging/mock"
	"loyalty-points-system/internal/adapters/storage/memory"
	"loyalty-points-system/internal/adapters/storage/postgres"
	"loyalty-points-system/internal/adapters/storage/redis"
	"loyalty-points-system/internal/app"
	"loyalty-points-system/internal/config"
	"loyalty-points-system/internal/core/ports"
	"loyalty-points-system/internal/observability"
)

const serviceName = "loyalty-ledger"

type closableBroker interface {
	ports.MessageBroker
	Close()
}

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	// --- 1. Configuration and Logging ---
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fallbackLogger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.App.Env)
	logger.Info("Application starting", "env", cfg.App.Env, "port", cfg.Server.Port, "storage", cfg.Storage.Driver)

	// --- 2. Validate critical config ---
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// --- 3. Observability ---
	if cfg.Jaeger.PortGrpc != "" {
		shutdownTracer, err := observability.InitTracer(cfg.Jaeger.PortGrpc, serviceName)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Warn("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	// --- 4. Dependencies ---
	ctx := context.Background()

	var store ports.Store
	switch cfg.Storage.Driver {
	case "memory":
		mem := memory.New()
		if cfg.App.FixturesPath != "" {
			if err := mem.LoadFixtures(cfg.App.FixturesPath); err != nil {
				logger.Error("Failed to load fixtures", "error", err)
				os.Exit(1)
			}
		}
		store = mem
		logger.Warn("Using in-memory storage; state is lost on restart")
	default:
		repo, err := postgres.NewRepository(ctx, cfg.Postgres.DSN, cfg.Postgres.Migrate)
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
		logger.Info("Connected to PostgreSQL")
	}

	// Kafka
	var broker closableBroker
	if cfg.Kafka.Enabled {
		kb, err := kafka.NewBroker(ctx, strings.Split(cfg.Kafka.BootstrapServers, ","), cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Error("Failed to create Kafka broker", "error", err)
			os.Exit(1)
		}
		broker = kb
		logger.Info("Kafka broker created", "topic", cfg.Kafka.Topic)
	} else {
		broker = mock.NewBroker(logger)
		logger.Warn("Kafka disabled; ledger events are only logged")
	}
	defer broker.Close()

	// Redis
	var rateLimiter *httphandler.RateLimiterMiddleware
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("Failed to close Redis client", "error", err)
			}
		}()
		limiterRepo := redis.NewRateLimiterAdapter(rdb, redis.Algorithm(cfg.RateLimit.Algorithm))
		rateLimiter = httphandler.NewRateLimiterMiddleware(limiterRepo, cfg.RateLimit.Requests, cfg.RateLimit.Window(), logger)
		logger.Info("Connected to Redis", "algorithm", cfg.RateLimit.Algorithm)
	}

	// Authentication
	var authenticate func(http.Handler) http.Handler
	if cfg.OIDC.URL != "" {
		authenticator, err := httphandler.NewOIDCAuthenticator(ctx, cfg.OIDC.URL, cfg.OIDC.ClientID)
		if err != nil {
			logger.Error("Failed to create OIDC authenticator", "error", err)
			os.Exit(1)
		}
		authenticate = authenticator.Middleware
	} else {
		authenticate = httphandler.JWTMiddleware([]byte(cfg.JWT.JWTSecret), logger)
	}

	// --- 5. Service Layer ---
	ledgerService := app.NewLedgerService(store, broker, logger)
	ledgerHandler := httphandler.NewLedgerHandler(ledgerService, logger)

	// --- 6. HTTP Router ---
	r := chi.NewRouter()

	// Public middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		observability.NewLoggerMiddleware(logger),
		observability.NewMetricsMiddleware(serviceName),
		observability.NewTracingMiddleware(serviceName),
	)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if p, ok := store.(pinger); ok {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(pingCtx); err != nil {
				logger.Warn("Health check failed", "error", err)
				status, code = "unhealthy", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"service": serviceName,
		}); err != nil {
			logger.Error("Failed to write health response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes: /api/v1/*
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate)
		if rateLimiter != nil {
			r.Use(rateLimiter.Handler)
		}
		if cfg.OPA.URL != "" {
			r.Use(opa.NewMiddleware(cfg.OPA.URL, httphandler.ClaimsFromContext, logger).Authorize)
		}
		ledgerHandler.Routes(r)
	})

	// --- 7. HTTP Server ---
	srv := &http.Server{
		Addr:         ":" + strings.TrimPrefix(cfg.Server.Port, ":"),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exited properly")
}
