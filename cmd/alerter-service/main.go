package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"loyalty-points-system/internal/config"
	"loyalty-points-system/internal/observability"
)

// AlertWebhook is the subset of the Alertmanager webhook payload the alerter reads.
type AlertWebhook struct {
	Alerts []struct {
		Status string `json:"status"`
		Labels struct {
			Alertname string `json:"alertname"`
			Severity  string `json:"severity"`
			Operation string `json:"operation"`
		} `json:"labels"`
		Annotations struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
		} `json:"annotations"`
		StartsAt time.Time `json:"startsAt"`
	} `json:"alerts"`
}

// alertHandler logs each ledger alert; critical ones that are still firing log at error level.
func alertHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var webhook AlertWebhook
		if err := json.NewDecoder(r.Body).Decode(&webhook); err != nil {
			logger.Error("Failed to decode webhook", "error", err)
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}

		for _, alert := range webhook.Alerts {
			level := slog.LevelWarn
			switch {
			case alert.Status == "resolved":
				level = slog.LevelInfo
			case alert.Labels.Severity == "critical":
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "ledger alert",
				"status", alert.Status,
				"alertname", alert.Labels.Alertname,
				"severity", alert.Labels.Severity,
				"operation", alert.Labels.Operation,
				"summary", alert.Annotations.Summary,
				"description", alert.Annotations.Description,
				"starts_at", alert.StartsAt,
			)
		}
		w.WriteHeader(http.StatusOK)
	}
}

func newRouter(logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.NewLoggerMiddleware(logger))

	r.Post("/alert", alertHandler(logger))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "OK"}); err != nil {
			logger.Error("Failed to write health response", "error", err)
		}
	})
	return r
}

func main() {
	// --- Configuration and Logging ---
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
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
	logger.Info("The alerter-service is launched", "env", cfg.App.Env, "port", cfg.Server.PortAlerter)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.PortAlerter,
		Handler:           newRouter(logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
