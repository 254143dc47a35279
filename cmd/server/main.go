// pagelab - interactive page server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/ashureev/pagelab/internal/api"
	"github.com/ashureev/pagelab/internal/cache"
	"github.com/ashureev/pagelab/internal/config"
	"github.com/ashureev/pagelab/internal/demo"
	"github.com/ashureev/pagelab/internal/identity"
	"github.com/ashureev/pagelab/internal/middleware"
	"github.com/ashureev/pagelab/internal/probe"
	"github.com/ashureev/pagelab/internal/runtime"
	"github.com/ashureev/pagelab/internal/store"
	"github.com/ashureev/pagelab/internal/transport"
	"github.com/ashureev/pagelab/web"
)

func main() {
	logger := newLogger(slog.LevelInfo)
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "page", cfg.Manifest.Name)

	// Initialize dependencies.
	repo, err := store.Open(cfg.StoreDriver, cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "driver", cfg.StoreDriver)

	dataCache := cache.New(logger)
	catalog, err := demo.New(cfg.Manifest, dataCache, cfg.CacheTTL)
	if err != nil {
		slog.Error("Failed to build page", "error", err)
		os.Exit(1)
	}

	conns := transport.NewConns()
	mgr := runtime.NewManager(catalog.Page, repo, runtime.Options{
		PageName:    cfg.Manifest.Name,
		Config:      cfg.Manifest.Page,
		QueueSize:   cfg.EventQueueSize,
		MaxReruns:   cfg.MaxReruns,
		HistorySize: cfg.HistorySize,
		Logger:      logger,
		OnClose:     conns.CloseSession,
	})

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, mgr, cfg.Manifest)
	healthHandler := api.NewHealthHandler(baseHandler)
	sessionHandler := api.NewSessionHandler(baseHandler)
	wsHandler := transport.NewHandler(mgr, conns, cfg.AllowedOrigins(), cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/session", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.ClientHandler())

	// No WriteTimeout: WebSocket connections are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime.StartReaper(ctx, repo, mgr, cfg.SessionTTL, cfg.ReaperInterval)

	var healthProbe *probe.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("Failed to listen for health probe", "error", err, "port", cfg.GRPCPort)
			os.Exit(1)
		}
		healthProbe = probe.New(repo, logger)
		healthProbe.Watch(ctx, 10*time.Second)
		go func() {
			if err := healthProbe.Serve(lis); err != nil {
				slog.Error("Health probe failed", "error", err)
			}
		}()
	} else {
		slog.Info("Health probe disabled (GRPC_PORT empty)")
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	if healthProbe != nil {
		healthProbe.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	mgr.CloseAll()
	slog.Info("Server stopped successfully")
}

// newLogger writes text logs to an interactive terminal and JSON otherwise.
func newLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
