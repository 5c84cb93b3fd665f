package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Sreeharicse/Metal-management-system/internal/access"
	"github.com/Sreeharicse/Metal-management-system/internal/auth"
	"github.com/Sreeharicse/Metal-management-system/internal/catalog"
	"github.com/Sreeharicse/Metal-management-system/internal/config"
	"github.com/Sreeharicse/Metal-management-system/internal/keymutex"
	"github.com/Sreeharicse/Metal-management-system/internal/metrics"
	"github.com/Sreeharicse/Metal-management-system/internal/store"
	"github.com/Sreeharicse/Metal-management-system/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// Seed the catalog gauge from whatever is already persisted.
	if metals, err := st.ListMetals(context.Background()); err == nil {
		metrics.ListedMetals.Set(float64(len(metals)))
	}

	// --- Per-metal lock arena ---
	locks := keymutex.New(cfg.LockTimeout)

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Services ---
	catalogSvc := catalog.NewService(st, locks)
	accessSvc := access.NewService(st)
	tradeSvc := trade.NewService(st, locks, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"metal-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade broadcasts.
		r.Get("/ws", wsHub.HandleWS)

		// Everything else requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.JWTSecret))

			// Metal catalog.
			r.Get("/metals", catalogSvc.ListMetals)
			r.Post("/metals", catalogSvc.CreateMetal)
			r.Get("/metals/{metalID}", catalogSvc.GetMetal)
			r.Patch("/metals/{metalID}", catalogSvc.UpdateMetal)
			r.Delete("/metals/{metalID}", catalogSvc.DeleteMetal)
			r.Put("/metals/{metalID}/stock", catalogSvc.SetStock)

			// Access workflow.
			r.Post("/access/requests", accessSvc.RequestAccess)
			r.Get("/access/requests", accessSvc.ListPendingRequests)
			r.Post("/access/requests/{requestID}/approve", accessSvc.ApproveRequest)
			r.Post("/access/requests/{requestID}/reject", accessSvc.RejectRequest)
			r.Delete("/access/grants", accessSvc.RevokeAccess)
			r.Get("/access/grants/{userID}", accessSvc.ListGrants)

			// Trade execution and queries.
			r.Post("/trade", tradeSvc.ExecuteTrade)
			r.Get("/holdings/{userID}", tradeSvc.ListHoldings)
			r.Get("/transactions", tradeSvc.ListTransactions)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("metal-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down metal-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("metal-engine stopped")
}
