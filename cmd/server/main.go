package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/finsense/feed-engine/internal/broker"
	"github.com/finsense/feed-engine/internal/detect"
	"github.com/finsense/feed-engine/internal/feed"
	"github.com/finsense/feed-engine/internal/market"
	"github.com/finsense/feed-engine/internal/metrics"
	"github.com/finsense/feed-engine/internal/sanctions"
	"github.com/finsense/feed-engine/internal/store"
	"github.com/finsense/feed-engine/internal/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	symbols := []string{"AAPL", "TSLA"}
	if raw := os.Getenv("SYMBOLS"); raw != "" {
		symbols = strings.Split(raw, ",")
	}

	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Audit archive ---
	var archive store.Archive
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresArchive(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("audit schema setup failed", "err", err)
			os.Exit(1)
		}
		archive = pg
		slog.Info("connected to PostgreSQL, audit archive enabled")
	} else {
		slog.Warn("DATABASE_URL not set, audit records will not persist")
	}

	// --- Sanctions registry ---
	var registry sanctions.Registry = sanctions.NewMemoryRegistry()
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		registry = sanctions.NewRedisRegistry(context.Background(), rdb)
		slog.Info("Redis sanctions mirror enabled")
	}

	// --- Core state and service ---
	state := market.New(symbols)
	detector := detect.New()
	marketBroker := broker.New("market", broker.DefaultCapacity)
	alertBroker := broker.New("alerts", broker.DefaultCapacity)
	svc := stream.NewService(state, detector, registry, marketBroker, alertBroker,
		archive, os.Getenv("WEBHOOK_TOKEN"))

	ctx, cancelHubs := context.WithCancel(context.Background())
	defer cancelHubs()

	// --- WebSocket hubs ---
	marketHub := stream.NewWSHub("market", marketBroker)
	alertHub := stream.NewWSHub("alerts", alertBroker)
	go marketHub.Run(ctx)
	go alertHub.Run(ctx)

	// --- Simulated feeds ---
	orchestrator := feed.New(svc, feed.DefaultConfig())
	if os.Getenv("FEEDS") != "off" {
		orchestrator.Start(ctx)
		defer orchestrator.Stop()
	} else {
		slog.Info("simulated feeds disabled, ingestion is webhook-only")
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for dashboard cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Webhook-Token")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"feed-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// WebSocket endpoints for real-time streams.
	r.Get("/ws/market", marketHub.HandleWS)
	r.Get("/ws/alerts", alertHub.HandleWS)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("feed-engine listening", "port", port, "symbols", symbols)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down feed-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("feed-engine stopped")
}
