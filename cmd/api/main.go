// Package main is the entry point for the messaging gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/config"
	"github.com/capitalize-ai/messaging-gateway/internal/flow"
	"github.com/capitalize-ai/messaging-gateway/internal/handler"
	"github.com/capitalize-ai/messaging-gateway/internal/media"
	"github.com/capitalize-ai/messaging-gateway/internal/middleware"
	natsclient "github.com/capitalize-ai/messaging-gateway/internal/nats"
	"github.com/capitalize-ai/messaging-gateway/internal/realtime"
	"github.com/capitalize-ai/messaging-gateway/internal/service"
	"github.com/capitalize-ai/messaging-gateway/internal/store"
	"github.com/capitalize-ai/messaging-gateway/internal/whatsapp"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
	"github.com/capitalize-ai/messaging-gateway/pkg/tracing"
)

const serviceName = "messaging-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var log *logger.Logger
	if cfg.IsDevelopment() {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("gateway stopped with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting messaging gateway", zap.String("store", cfg.StoreDriver))

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.FlowsFile != "" {
		defs, err := flow.LoadFile(cfg.FlowsFile)
		if err != nil {
			return fmt.Errorf("failed to load flows: %w", err)
		}
		if err := flow.Seed(ctx, st, defs); err != nil {
			return fmt.Errorf("failed to seed flows: %w", err)
		}
		log.Info("flows seeded", zap.Int("count", len(defs)), zap.String("file", cfg.FlowsFile))
	}

	provider := whatsapp.NewClient(whatsapp.Config{
		BaseURL:       cfg.WhatsAppBaseURL,
		APIVersion:    cfg.WhatsAppAPIVersion,
		PhoneNumberID: cfg.WhatsAppPhoneID,
		AccessToken:   cfg.WhatsAppAccessToken,
		Timeout:       cfg.WhatsAppTimeout,
		MaxMediaBytes: cfg.MediaMaxBytes,
	})

	disk, err := media.NewDisk(cfg.MediaRoot, cfg.MediaPublicPrefix)
	if err != nil {
		return fmt.Errorf("failed to prepare media storage: %w", err)
	}
	fetcher := media.NewFetcher(provider, disk, cfg.MediaFetchTimeout)

	// Realtime sinks: the in-process websocket hub always, NATS when configured.
	hub := realtime.NewHub(log)
	sinks := []realtime.Sink{hub}
	var broker handler.BrokerStatus
	if cfg.NATSURL != "" {
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     serviceName,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()
		broker = nc

		jetStream := cfg.NATSJetStream
		if jetStream {
			if err := natsclient.NewStreamManager(nc).EnsureStream(ctx); err != nil {
				log.Warn("JetStream unavailable, publishing on core NATS", zap.Error(err))
				jetStream = false
			}
		}
		sinks = append(sinks, natsclient.NewSink(nc, jetStream))
	}
	publisher := realtime.NewBroadcaster(log, cfg.RealtimePublishTimeout, sinks...)

	// Services
	engine := flow.NewEngine(st, log)
	dispatcher := service.NewDispatcher(provider, st, publisher, log)
	resolver := service.NewResolver(st, st)
	inboundSvc := service.NewInboundService(resolver, st, fetcher, publisher, engine, dispatcher, log)
	conversationSvc := service.NewConversationService(st, engine, log)
	messageSvc := service.NewMessageService(st, dispatcher, log)

	// Handlers
	healthHandler := handler.NewHealthHandler(st, broker)
	webhookHandler := handler.NewWebhookHandler(inboundSvc, cfg.WhatsAppVerifyToken, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, messageSvc, log)
	flowHandler := handler.NewFlowHandler(conversationSvc, log)
	mediaHandler := handler.NewMediaHandler(disk, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Provider webhook
	r.With(middleware.WebhookRateLimit(cfg.WebhookRateLimit, time.Minute)).Get("/webhook", webhookHandler.Verify)
	r.Post("/webhook", webhookHandler.Receive)

	// Stored inbound media
	prefix := "/" + strings.Trim(cfg.MediaPublicPrefix, "/")
	r.Get(prefix+"/*", mediaHandler.Serve)

	// Operator realtime feed
	r.With(middleware.Auth(cfg.JWTSecret), middleware.RequireScope(cfg.OperatorScope)).Get("/ws", hub.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequireScope(cfg.OperatorScope))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Get("/messages", conversationHandler.Messages)
				r.Post("/messages", conversationHandler.Send)
				r.Post("/read", conversationHandler.MarkRead)
				r.Put("/bot", conversationHandler.UpdateBot)
				r.Patch("/bot", conversationHandler.UpdateBot)
			})
		})

		r.Route("/flows", func(r chi.Router) {
			r.Get("/", flowHandler.List)
			r.Get("/{id}/nodes", flowHandler.Nodes)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	if cfg.StoreDriver != config.StorePostgres {
		log.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	}

	if cfg.DBMigrate {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("database migrations applied")
	}

	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return pg, nil
}
