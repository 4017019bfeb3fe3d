// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
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

	"github.com/taskscope/envchat/internal/config"
	"github.com/taskscope/envchat/internal/firestore"
	"github.com/taskscope/envchat/internal/handler"
	"github.com/taskscope/envchat/internal/llm"
	"github.com/taskscope/envchat/internal/middleware"
	"github.com/taskscope/envchat/internal/service"
	"github.com/taskscope/envchat/pkg/logger"
	"github.com/taskscope/envchat/pkg/tracing"
)

func main() {
	configCheck := flag.Bool("config-check", false, "construct everything without requiring credentials, then exit")
	flag.Parse()

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
		tp, err := tracing.InitTracer(ctx, "envchat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing")
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Initialize document store client. Missing credentials are fatal here
	// unless this is a config-check run.
	store, err := firestore.NewClient(ctx, firestore.Config{
		ProjectID:         cfg.FirebaseProjectID,
		CredentialsJSON:   cfg.FirebaseCredentialsJSON,
		CacheTTL:          cfg.CacheTTL,
		AllowUnconfigured: *configCheck,
	}, log)
	if err != nil {
		log.Error("failed to create document store client", zap.Error(err))
		os.Exit(1)
	}

	// Initialize LLM client
	var llmClient llm.Client
	switch {
	case cfg.DefaultProvider == "anthropic" && cfg.AnthropicAPIKey != "":
		llmClient, err = llm.NewClient(llm.ProviderAnthropic, llm.Options{APIKey: cfg.AnthropicAPIKey})
	case cfg.OpenAIAPIKey != "":
		llmClient, err = llm.NewClient(llm.ProviderOpenAI, llm.Options{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
	default:
		err = fmt.Errorf("no model provider API key configured")
	}
	if err != nil {
		if *configCheck {
			log.Warn("model provider not configured")
		} else {
			log.Error("failed to create LLM client", zap.Error(err))
			os.Exit(1)
		}
	}

	// Initialize services and handlers
	chatSvc := service.NewChatService(store, llmClient, cfg.OpenAIModel, log)
	healthHandler := handler.NewHealthHandler(store)
	environmentHandler := handler.NewEnvironmentHandler(chatSvc, log)
	chatHandler := handler.NewChatHandler(chatSvc, cfg.StreamTimeout, log)

	if *configCheck {
		log.Info("configuration check passed")
		return
	}

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/environments/{envID}", func(r chi.Router) {
			r.Get("/", environmentHandler.Get)
			r.Post("/chat", chatHandler.Start)
			r.Post("/conversations/{convID}/chat", chatHandler.Continue)
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
