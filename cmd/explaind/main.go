package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/charlesblakely0701-star/post-explainer/internal/config"
	logpkg "github.com/charlesblakely0701-star/post-explainer/internal/logger"
	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
	"github.com/charlesblakely0701-star/post-explainer/internal/transport/brave"
	geminiProv "github.com/charlesblakely0701-star/post-explainer/internal/transport/gemini"
	"github.com/charlesblakely0701-star/post-explainer/internal/transport/httpapi"
	"github.com/charlesblakely0701-star/post-explainer/internal/transport/imagefetch"
	openaiProv "github.com/charlesblakely0701-star/post-explainer/internal/transport/openai"
	"github.com/charlesblakely0701-star/post-explainer/internal/transport/tavily"
	explainuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/explain"
	healthuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/health"
	searchuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/search"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/synthesis"
	"github.com/charlesblakely0701-star/post-explainer/internal/version"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting explaind API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("providers", cfg.ProviderOrder()),
	)

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	ctx := context.Background()

	searchSvc := buildSearch(cfg, logger)
	synthSvc := buildSynthesis(ctx, cfg, logger)

	images := imagefetch.New(
		time.Duration(cfg.Image.TimeoutSec)*time.Second,
		cfg.Image.MaxSizeBytes,
	)

	cache := explainuc.NewCache(time.Duration(cfg.Cache.TTLSec) * time.Second)

	explainSvc := explainuc.New(searchSvc, synthSvc, images, cache, explainuc.Options{
		CompareTimeout: time.Duration(cfg.Synthesis.CompareTimeout) * time.Second,
	})

	healthSvc := healthuc.New(synthSvc, searchSvc)

	server := httpapi.NewServer(explainSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		// WriteTimeout must cover the longest stream, not one response write.
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildSearch assembles the search aggregator: Tavily primary, Brave
// secondary when a key is configured.
func buildSearch(cfg config.Config, logger *zap.Logger) *searchuc.Service {
	timeout := time.Duration(cfg.Search.TimeoutSec) * time.Second

	primary := tavily.New(&tavily.Config{
		APIKey:  cfg.Search.TavilyAPIKey,
		Timeout: timeout,
	})

	var secondary searchuc.Backend
	if cfg.Search.BraveAPIKey != "" {
		secondary = brave.New(&brave.Config{
			APIKey:  cfg.Search.BraveAPIKey,
			Timeout: timeout,
		})
	}

	logger.Info("Search backends created",
		zap.String("primary", primary.Name()),
		zap.Bool("secondary", secondary != nil),
	)

	return searchuc.New(primary, secondary, searchuc.Options{
		MaxResults:        cfg.Search.MaxResults,
		ResultsPerQuery:   cfg.Search.ResultsPerQuery,
		MinPrimaryResults: cfg.Search.MinPrimaryResults,
		Timeout:           timeout,
	})
}

// buildSynthesis assembles the provider chain in configured priority
// order. Providers without an API key are skipped.
func buildSynthesis(ctx context.Context, cfg config.Config, logger *zap.Logger) *synthesis.Service {
	var providers []synthesis.Provider

	for _, name := range cfg.ProviderOrder() {
		provCfg := cfg.Synthesis.Providers[name]
		if provCfg.APIKey == "" {
			continue
		}

		switch name {
		case "openai":
			providers = append(providers, openaiProv.New(&openaiProv.Config{
				APIKey:      provCfg.APIKey,
				BaseURL:     provCfg.BaseURL,
				Models:      provCfg.Models,
				MaxTokens:   cfg.Synthesis.MaxTokens,
				Temperature: cfg.Synthesis.Temperature,
				Vision:      provCfg.Vision,
				Logger:      logger,
			}))
		case "gemini":
			p, err := geminiProv.New(ctx, &geminiProv.Config{
				APIKey:      provCfg.APIKey,
				Models:      provCfg.Models,
				MaxTokens:   cfg.Synthesis.MaxTokens,
				Temperature: cfg.Synthesis.Temperature,
				Vision:      provCfg.Vision,
				Logger:      logger,
			})
			if err != nil {
				logger.Fatal("Failed to create gemini provider", zap.Error(err))
			}
			providers = append(providers, p)
		default:
			logger.Fatal("Unknown synthesis provider", zap.String("provider", name))
		}
	}

	if len(providers) == 0 {
		logger.Fatal("No synthesis provider configured")
	}

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	logger.Info("Synthesis providers created", zap.Strings("order", names))

	return synthesis.New(providers, synthesis.Options{
		Timeout:       time.Duration(cfg.Synthesis.TimeoutSec) * time.Second,
		StreamTimeout: time.Duration(cfg.Synthesis.StreamTimeout) * time.Second,
	})
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
