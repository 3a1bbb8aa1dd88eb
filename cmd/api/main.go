// Package main is the entry point for the webhook inbox API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relaymesh/whatsapp-inbox/internal/config"
	"github.com/relaymesh/whatsapp-inbox/internal/events"
	"github.com/relaymesh/whatsapp-inbox/internal/handler"
	"github.com/relaymesh/whatsapp-inbox/internal/ingest"
	"github.com/relaymesh/whatsapp-inbox/internal/middleware"
	"github.com/relaymesh/whatsapp-inbox/internal/seed"
	"github.com/relaymesh/whatsapp-inbox/internal/store"
	"github.com/relaymesh/whatsapp-inbox/pkg/logger"
	"github.com/relaymesh/whatsapp-inbox/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting webhook inbox server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "whatsapp-inbox", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the message store. The handle is constructed here and passed
	// down; nothing else in the process holds connection state.
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open message store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close(context.Background())

	// Connect to NATS for event fanout when configured
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.Connect(ctx, events.Config{
			URL:   cfg.NATSURL,
			Token: cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer publisher.Close()
	}

	// Initialize ingestion and handlers
	ingestor := ingest.NewIngestor(st, publisher, log)

	healthHandler := handler.NewHealthHandler(st)
	conversationHandler := handler.NewConversationHandler(st, log)
	webhookHandler := handler.NewWebhookHandler(ingestor, cfg.VerifyToken, seed.Payloads(), log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/conversations", conversationHandler.List)
		r.Get("/conversations/{id}", conversationHandler.Get)

		r.Get("/webhook", webhookHandler.Verify)
		r.Post("/webhook", webhookHandler.Receive)
		r.Post("/initialize-database", webhookHandler.InitializeDatabase)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// openStore constructs the configured store implementation. The memory
// driver serves local development without a MongoDB deployment.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store, data will not survive restarts")
		return store.NewMemory(), nil
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		st, err := store.NewMongo(connectCtx, cfg.MongoURI, cfg.DBName, log)
		if err != nil {
			return nil, err
		}
		log.Info("connected to MongoDB", zap.String("db", cfg.DBName))
		return st, nil
	}
}
