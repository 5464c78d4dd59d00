// Package main is the entry point for the API server.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/threadline-chat/messenger-platform/internal/config"
	"github.com/threadline-chat/messenger-platform/internal/handler"
	"github.com/threadline-chat/messenger-platform/internal/middleware"
	"github.com/threadline-chat/messenger-platform/internal/publish"
	"github.com/threadline-chat/messenger-platform/internal/service"
	"github.com/threadline-chat/messenger-platform/internal/store"
	"github.com/threadline-chat/messenger-platform/internal/transport"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
	"github.com/threadline-chat/messenger-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "messenger-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect the event bus
	var bus transport.Bus
	busReady := func() bool { return true }
	switch cfg.BusBackend {
	case config.BusBackendMemory:
		bus = transport.NewMemoryBus()
		log.Info("using in-process event bus")
	default:
		natsBus, err := transport.ConnectNATS(ctx, transport.NATSConfig{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		busReady = natsBus.IsConnected

		// Presence membership is served from this process.
		registry := transport.NewPresenceRegistry(natsBus, log)
		if err := registry.Start(); err != nil {
			log.Error("failed to start presence registry", zap.Error(err))
			os.Exit(1)
		}
		defer registry.Stop()

		bus = natsBus
	}
	defer bus.Close()

	// Initialize storage, publisher and services
	st := store.NewMemoryStore()
	publisher := publish.New(bus, log)
	conversationSvc := service.NewConversationService(st, publisher, log)
	messageSvc := service.NewMessageService(st, publisher, log)
	seenSvc := service.NewSeenService(st, publisher, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(map[string]handler.ReadinessProbe{
		"bus": busReady,
	})
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(messageSvc, log)
	seenHandler := handler.NewSeenHandler(seenSvc, log)
	userHandler := handler.NewUserHandler(st, log)
	channelAuthHandler := handler.NewChannelAuthHandler(cfg.ChannelAppKey, cfg.ChannelAuthSecret, log)
	streamHandler := handler.NewStreamHandler(bus, conversationSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Registration stays outside the authenticated group.
		r.With(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).
			Post("/users", userHandler.Register)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			// Channel subscription auth
			r.Post("/channels/auth", channelAuthHandler.Authorize)

			// User directory
			r.Get("/users", userHandler.List)

			// Messages
			r.Post("/messages", messageHandler.Send)

			// Conversations
			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", conversationHandler.Create)
				r.Get("/", conversationHandler.List)

				r.Route("/{conversationID}", func(r chi.Router) {
					r.Get("/", conversationHandler.Get)
					r.Delete("/", conversationHandler.Delete)

					// Membership
					r.Post("/members", conversationHandler.AddMember)
					r.Delete("/members/{userID}", conversationHandler.RemoveMember)

					// Messages and seen receipts
					r.Get("/messages", messageHandler.List)
					r.Post("/seen", seenHandler.MarkSeen)

					// Streaming
					r.Get("/stream", streamHandler.Stream)
				})
			})
		})
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
