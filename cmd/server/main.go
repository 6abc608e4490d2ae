// pairchat - real-time private messaging server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/pairchat/internal/api"
	"github.com/ashureev/pairchat/internal/auth"
	"github.com/ashureev/pairchat/internal/config"
	"github.com/ashureev/pairchat/internal/gateway"
	"github.com/ashureev/pairchat/internal/health"
	"github.com/ashureev/pairchat/internal/identity"
	"github.com/ashureev/pairchat/internal/middleware"
	"github.com/ashureev/pairchat/internal/registry"
	"github.com/ashureev/pairchat/internal/relay"
	"github.com/ashureev/pairchat/internal/session"
	"github.com/ashureev/pairchat/internal/store"
	"github.com/ashureev/pairchat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreDriver)

	// Users always live in SQLite; messages follow STORE_DRIVER.
	db, err := store.NewSQLite(cfg.DBPath, cfg.MaxMessageLength)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	if err := db.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	var messages store.MessageStore = db
	if cfg.StoreDriver == config.DriverBadger {
		badgerStore, err := store.NewBadgerMessageStore(cfg.BadgerPath, cfg.MaxMessageLength, logger)
		if err != nil {
			return fmt.Errorf("initialize badger message store: %w", err)
		}
		defer func() {
			if closeErr := badgerStore.Close(); closeErr != nil {
				slog.Error("Failed to close badger message store", "error", closeErr)
			}
		}()
		messages = badgerStore
		slog.Info("Badger message store opened", "path", cfg.BadgerPath)
	}

	// Initialize services.
	tokens := session.NewTokens([]byte(cfg.JWTSecret), cfg.JWTExpire)
	reg := registry.New()
	rel := relay.New(messages, db, reg,
		relay.WithAppendTimeout(cfg.AppendTimeout),
		relay.WithMaxMessageLength(cfg.MaxMessageLength),
		relay.WithLogger(logger),
	)
	authSvc := auth.NewService(db, tokens, 0)

	// Initialize handlers.
	apiHandler := api.NewHandler(authSvc, db, messages, rel, reg)
	wsHandler := gateway.NewAdmission(tokens, reg, rel, gateway.Options{
		AllowedOrigin: strings.TrimRight(cfg.FrontendURL, "/"),
		IsDev:         cfg.IsDevelopment(),
		OutboxSize:    cfg.OutboxSize,
		WriteTimeout:  cfg.WriteTimeout,
		SendTimeout:   cfg.AppendTimeout * 2,
	}, logger)

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	apiHandler.RegisterRoutes(r, identity.Middleware(tokens))

	// WebSocket endpoint; admission verifies the credential itself.
	r.Get("/ws", wsHandler.ServeHTTP)

	// Serve embedded client (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Only headers are bounded: websocket connections are long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway.StartHeartbeat(ctx, reg, cfg.HeartbeatInterval)

	errChan := make(chan error, 2)

	var healthSrv *health.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen on gRPC port %s: %w", cfg.GRPCPort, err)
		}
		healthSrv = health.NewServer(messages, cfg.HeartbeatInterval, logger)
		go healthSrv.Watch(ctx)
		go func() {
			if err := healthSrv.Serve(lis); err != nil {
				errChan <- fmt.Errorf("gRPC health server: %w", err)
			}
		}()
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errChan:
		return err
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	reg.CloseAll("server shutting down")

	if healthSrv != nil {
		healthSrv.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(cfg.FrontendURL, "/")}
}
