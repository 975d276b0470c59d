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

	"github.com/agrodocs/consulta/internal/config"
	"github.com/agrodocs/consulta/internal/db"
	dbRedis "github.com/agrodocs/consulta/internal/db/redis"
	"github.com/agrodocs/consulta/internal/domain"
	logpkg "github.com/agrodocs/consulta/internal/logger"
	"github.com/agrodocs/consulta/internal/metrics"
	budgetrepo "github.com/agrodocs/consulta/internal/repository/budget"
	"github.com/agrodocs/consulta/internal/repository/embcache"
	qdrantidx "github.com/agrodocs/consulta/internal/repository/index/qdrant"
	"github.com/agrodocs/consulta/internal/repository/index/redisearch"
	"github.com/agrodocs/consulta/internal/transport/bedrock"
	chiTransport "github.com/agrodocs/consulta/internal/transport/chi"
	"github.com/agrodocs/consulta/internal/transport/ollama"
	openaiEmb "github.com/agrodocs/consulta/internal/transport/openai"
	"github.com/agrodocs/consulta/internal/transport/openaichat"
	answeruc "github.com/agrodocs/consulta/internal/usecase/answer"
	embeddinguc "github.com/agrodocs/consulta/internal/usecase/embedding"
	healthuc "github.com/agrodocs/consulta/internal/usecase/health"
	retrieveuc "github.com/agrodocs/consulta/internal/usecase/retrieve"
	"github.com/agrodocs/consulta/internal/version"
)

// defaultModels is used when a provider entry omits the model name.
var defaultModels = map[string]string{
	"openai":  "gpt-4o-mini",
	"groq":    "llama3-8b-8192",
	"xai":     "grok-2-latest",
	"ollama":  "llama3.1:8b",
	"bedrock": "anthropic.claude-3-5-sonnet-20241022-v2:0",
}

func main() {
	// API keys usually live in a local .env; absence is fine.
	_ = godotenv.Load()

	// Load configuration based on ENV
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

	logger.Info("Starting consulta API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_backend", cfg.Index.Backend),
	)

	ctx := context.Background()

	// The key-value store backs the embedding cache and budget counters.
	// Required for the redisearch backend, optional alongside qdrant.
	var store db.Store
	if len(cfg.Database.Addrs) > 0 {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer s.Close()

		if err := s.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")
		store = s
	}

	// Chunk index backend
	var index domain.ChunkIndex
	switch cfg.Index.Backend {
	case "redisearch":
		index = redisearch.New(store, redisearch.Config{
			KeyPrefix:       cfg.Storage.KeyPrefix,
			Collection:      cfg.Storage.Collection,
			VectorDim:       cfg.Embedding.Dimensions,
			Algorithm:       cfg.Index.Algorithm,
			HNSWM:           cfg.Index.HNSWM,
			HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
		})
	case "qdrant":
		qs, err := qdrantidx.New(cfg.Qdrant.Addr, qdrantidx.Config{
			Collection: cfg.Storage.Collection,
			VectorDim:  cfg.Embedding.Dimensions,
		})
		if err != nil {
			logger.Fatal("Failed to connect to qdrant", zap.Error(err))
		}
		defer func() { _ = qs.Close() }()
		index = qs
	default:
		logger.Fatal("Unknown index backend", zap.String("backend", cfg.Index.Backend))
	}
	logger.Info("Chunk index ready",
		zap.String("backend", cfg.Index.Backend),
		zap.String("collection", cfg.Storage.Collection),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()

	// Single BudgetTracker shared by the embedder chain.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			cfg.Embedding.Provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		if store != nil {
			// Connect persistence store — loads current counters from DB.
			budgetStore := budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour)
			budget.WithStore(ctx, budgetStore)
		}
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	embedder := buildEmbedder(cfg.Embedding, store, budgetChecker, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	providers, err := buildProviders(ctx, cfg.Generation, logger)
	if err != nil {
		logger.Fatal("Failed to build generation providers", zap.Error(err))
	}

	// Create use case services
	planner := retrieveuc.NewPlanner(cfg.Retrieval.Aliases, cfg.Retrieval.Keywords)
	retriever := retrieveuc.New(index, embedder, planner).
		WithTopK(cfg.Retrieval.TopK).
		WithLogger(logger)

	answers := answeruc.New(retriever, providers, answeruc.Config{
		Provider: cfg.Generation.Provider,
		Priority: cfg.Generation.Priority,
	}).
		WithMaxContext(cfg.Retrieval.MaxContext).
		WithLogger(logger)

	// Health service
	healthSvc := healthuc.New(index, newEmbeddingHealthChecker(embedder))

	// Create chi server
	server := chiTransport.NewServer(answers, index, healthSvc, logger).
		WithManifestPath(cfg.Storage.ManifestPath)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.RegisterRoutes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
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

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> RateLimited -> Instrumented
func buildEmbedder(
	embCfg config.EmbeddingConfig,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		User:       embCfg.User,
		Provider:   embCfg.Provider,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if store != nil {
		ttl := time.Duration(embCfg.CacheTTLSec) * time.Second
		embedder = embcache.New(base, store, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	// Rate limited (one token per API request)
	embedder = embeddinguc.NewRateLimitedEmbedder(embedder, embCfg.QPS, embCfg.Burst)

	// Instrumented (budget + metrics)
	return embeddinguc.NewInstrumentedEmbedder(
		embedder, embCfg.Provider, embCfg.Model, budget, logger,
	)
}

// buildProviders turns the generation config into the answer service's
// provider table. Availability mirrors credential presence: keyed APIs
// need their key, bedrock needs a region, ollama only needs a reachable
// endpoint and stays available as the local fallback.
func buildProviders(
	ctx context.Context,
	genCfg config.GenerationConfig,
	logger *zap.Logger,
) (map[string]answeruc.Provider, error) {
	providers := make(map[string]answeruc.Provider, len(genCfg.Providers))

	for name, pCfg := range genCfg.Providers {
		model := pCfg.Model
		if model == "" {
			model = defaultModels[name]
		}

		switch name {
		case "openai":
			gen := openaichat.NewGenerator(&openaichat.Config{
				APIKey:      pCfg.APIKey,
				BaseURL:     pCfg.BaseURL,
				Provider:    name,
				Temperature: genCfg.Temperature,
				Logger:      logger,
			})
			providers[name] = answeruc.Provider{Generator: gen, Model: model, Available: pCfg.APIKey != ""}

		case "groq":
			baseURL := pCfg.BaseURL
			if baseURL == "" {
				baseURL = openaichat.GroqBaseURL
			}
			gen := openaichat.NewGenerator(&openaichat.Config{
				APIKey:      pCfg.APIKey,
				BaseURL:     baseURL,
				Provider:    name,
				System:      openaichat.GroqSystemMessage,
				Temperature: genCfg.Temperature,
				Logger:      logger,
			})
			providers[name] = answeruc.Provider{Generator: gen, Model: model, Available: pCfg.APIKey != ""}

		case "xai":
			baseURL := pCfg.BaseURL
			if baseURL == "" {
				baseURL = openaichat.XAIBaseURL
			}
			gen := openaichat.NewGenerator(&openaichat.Config{
				APIKey:      pCfg.APIKey,
				BaseURL:     baseURL,
				Provider:    name,
				Temperature: genCfg.Temperature,
				Logger:      logger,
			})
			providers[name] = answeruc.Provider{Generator: gen, Model: model, Available: pCfg.APIKey != ""}

		case "ollama":
			gen := ollama.NewGenerator(&ollama.Config{
				Endpoint:    pCfg.BaseURL,
				Temperature: genCfg.Temperature,
				Logger:      logger,
			})
			providers[name] = answeruc.Provider{Generator: gen, Model: model, Available: true}

		case "bedrock":
			if pCfg.Region == "" {
				logger.Warn("Bedrock provider configured without a region, skipping")
				continue
			}
			client, err := bedrock.NewClient(ctx, pCfg.Region)
			if err != nil {
				return nil, fmt.Errorf("bedrock client: %w", err)
			}
			gen := bedrock.New(client, bedrock.Config{
				MaxTokens:   genCfg.MaxTokens,
				Temperature: genCfg.Temperature,
				Logger:      logger,
			})
			providers[name] = answeruc.Provider{Generator: gen, Model: model, Available: true}

		default:
			logger.Warn("Unknown generation provider in config, skipping", zap.String("provider", name))
		}
	}

	return providers, nil
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

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.NewContext(r.Context(), reqLogger)

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
