// Command consulta-ingest loads extracted page records from a JSONL file
// and indexes them as embedded chunks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agrodocs/consulta/internal/config"
	"github.com/agrodocs/consulta/internal/db"
	dbRedis "github.com/agrodocs/consulta/internal/db/redis"
	"github.com/agrodocs/consulta/internal/domain"
	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/record"
	"github.com/agrodocs/consulta/internal/domain/segment"
	"github.com/agrodocs/consulta/internal/interchange"
	logpkg "github.com/agrodocs/consulta/internal/logger"
	"github.com/agrodocs/consulta/internal/metrics"
	budgetrepo "github.com/agrodocs/consulta/internal/repository/budget"
	"github.com/agrodocs/consulta/internal/repository/embcache"
	qdrantidx "github.com/agrodocs/consulta/internal/repository/index/qdrant"
	"github.com/agrodocs/consulta/internal/repository/index/redisearch"
	openaiEmb "github.com/agrodocs/consulta/internal/transport/openai"
	embeddinguc "github.com/agrodocs/consulta/internal/usecase/embedding"
	ingestuc "github.com/agrodocs/consulta/internal/usecase/ingest"
	"github.com/agrodocs/consulta/internal/version"
)

func main() {
	var (
		recordsPath = flag.String("records", "", "input records JSONL (required)")
		chunksPath  = flag.String("chunks", "", "also write segmented chunks to this JSONL file")
		collection  = flag.String("collection", "", "index collection (default: config value)")
		batchSize   = flag.Int("batch-size", 0, "chunks per embedding batch (default: config value)")
		workers     = flag.Int("workers", 4, "concurrent embed-and-store workers")
		embedQPS    = flag.Float64("embed-qps", 0, "embedding requests per second (default: config value)")
		metricsPort = flag.Int("metrics-port", 0, "serve /metrics on this port while running (0 = off)")
		drop        = flag.Bool("drop", false, "drop the index and its chunks before writing")
	)
	flag.Parse()

	if *recordsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: consulta-ingest -records <records.jsonl> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// API keys usually live in a local .env; absence is fine.
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

	// Flag overrides
	if *collection != "" {
		cfg.Storage.Collection = *collection
	}
	if *batchSize > 0 {
		cfg.Chunking.BatchSize = *batchSize
	}
	if *embedQPS > 0 {
		cfg.Embedding.QPS = *embedQPS
	}
	if *workers < 1 {
		*workers = 1
	}

	logger.Info("Starting consulta ingest",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("records", *recordsPath),
		zap.String("collection", cfg.Storage.Collection),
		zap.String("index_backend", cfg.Index.Backend),
		zap.Int("workers", *workers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIngestMetrics()
	if *metricsPort > 0 {
		go serveMetrics(*metricsPort, logger)
	}

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

	embedder, budget := buildEmbedder(ctx, cfg, store, logger)

	seg, err := segment.New(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)
	if err != nil {
		logger.Fatal("Invalid chunking settings", zap.Error(err))
	}

	svc := ingestuc.New(index, embedder, seg).
		WithBatchSize(cfg.Chunking.BatchSize).
		WithCollection(cfg.Storage.Collection).
		WithLogger(logger)

	start := time.Now()

	// Stage 1: read records
	logger.Info("Stage 1/4: reading records", zap.String("path", *recordsPath))
	var records []record.Record
	if err := interchange.ReadRecords(*recordsPath, func(r record.Record) error {
		records = append(records, r)
		return nil
	}); err != nil {
		logger.Fatal("Failed to read records", zap.Error(err))
	}
	logger.Info("Records loaded", zap.Int("count", len(records)))

	// Stage 2: segment
	logger.Info("Stage 2/4: segmenting",
		zap.Int("chunk_size", cfg.Chunking.ChunkSize),
		zap.Int("overlap", cfg.Chunking.Overlap),
	)
	chunks, err := svc.Segment(records)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyCorpus) {
			logger.Error("No extractable content in records file, nothing written")
			os.Exit(1)
		}
		logger.Fatal("Segmentation failed", zap.Error(err))
	}
	logger.Info("Segmentation done", zap.Int("chunks", len(chunks)))

	if *chunksPath != "" {
		if err := writeChunksFile(*chunksPath, chunks); err != nil {
			logger.Fatal("Failed to write chunks file", zap.Error(err))
		}
		logger.Info("Chunks written", zap.String("path", *chunksPath))
	}

	// Stage 3: embed and index
	if *drop {
		logger.Info("Dropping index", zap.String("collection", cfg.Storage.Collection))
		if err := index.Drop(ctx); err != nil {
			logger.Fatal("Failed to drop index", zap.Error(err))
		}
	}
	if err := index.Ensure(ctx); err != nil {
		logger.Fatal("Failed to ensure index", zap.Error(err))
	}

	batches := svc.Batches(chunks)
	logger.Info("Stage 3/4: indexing",
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", cfg.Chunking.BatchSize),
		zap.Int("workers", *workers),
	)
	written, failed, tokens := writeAll(ctx, svc, batches, *workers, logger)

	// Stage 4: report and manifest
	elapsed := time.Since(start)
	rate := float64(written) / elapsed.Seconds()
	logger.Info("Stage 4/4: done",
		zap.Int("records", len(records)),
		zap.Int("chunks", len(chunks)),
		zap.Int("written", written),
		zap.Int("failed", failed),
		zap.Int("total_tokens", tokens),
		zap.Duration("elapsed", elapsed),
		zap.Float64("chunks_per_sec", rate),
	)
	if budget != nil {
		u := budget.Usage()
		logger.Info("Embedding budget after run",
			zap.Int64("daily_used", u.DailyUsed),
			zap.Int64("daily_remaining", u.DailyRemaining),
			zap.Int64("monthly_used", u.MonthlyUsed),
			zap.Int64("monthly_remaining", u.MonthlyRemaining),
		)
	}

	manifestPath := cfg.Storage.ManifestPath
	if manifestPath == "" {
		manifestPath = filepath.Join(filepath.Dir(*recordsPath), "ingest-manifest.json")
	}
	man := interchange.Manifest{
		RunID:         uuid.NewString(),
		Collection:    cfg.Storage.Collection,
		FinishedAt:    time.Now().UTC(),
		Records:       len(records),
		ChunksWritten: written,
		TotalTokens:   tokens,
		Files:         recordFiles(records),
	}
	if err := interchange.WriteManifest(manifestPath, man); err != nil {
		logger.Warn("Failed to write ingest manifest", zap.Error(err))
	} else {
		logger.Info("Manifest written", zap.String("path", manifestPath), zap.String("run_id", man.RunID))
	}

	if failed > 0 || ctx.Err() != nil {
		os.Exit(1)
	}
}

// writeAll pushes batches through a worker pool. Each worker gets a fresh
// usage context per batch and the totals are merged atomically; a failing
// batch is logged and counted, not fatal, since deterministic chunk IDs
// make a re-run overwrite whatever did land.
func writeAll(
	ctx context.Context,
	svc *ingestuc.Service,
	batches [][]chunk.Chunk,
	workers int,
	logger *zap.Logger,
) (written, failed, tokens int) {
	var (
		wg           sync.WaitGroup
		writtenCount atomic.Int64
		failedCount  atomic.Int64
		tokenCount   atomic.Int64
	)

	batchCh := make(chan []chunk.Chunk)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for batch := range batchCh {
				uctx, usage := domain.NewContextWithUsage(ctx)
				n, err := svc.WriteBatch(uctx, batch)
				writtenCount.Add(int64(n))
				tokenCount.Add(int64(usage.TotalTokens))
				if err != nil {
					failedCount.Add(int64(len(batch) - n))
					logger.Error("Batch failed",
						zap.Int("worker", id),
						zap.Int("batch_size", len(batch)),
						zap.Error(err),
					)
				}
			}
		}(w)
	}

feed:
	for _, batch := range batches {
		select {
		case <-ctx.Done():
			logger.Warn("Ingest interrupted, draining workers")
			break feed
		case batchCh <- batch:
		}
	}
	close(batchCh)
	wg.Wait()

	return int(writtenCount.Load()), int(failedCount.Load()), int(tokenCount.Load())
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> RateLimited
// -> Instrumented. The budget tracker comes back separately (nil when no
// budget is configured) so the run report can log what is left.
func buildEmbedder(
	ctx context.Context, cfg config.Config, store db.Store, logger *zap.Logger,
) (*embeddinguc.InstrumentedEmbedder, *embeddinguc.BudgetTracker) {
	embCfg := cfg.Embedding

	var budget *embeddinguc.BudgetTracker
	budgetCfg := embCfg.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			embCfg.Provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		if store != nil {
			budget.WithStore(ctx, budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour))
		}
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		User:       embCfg.User,
		Provider:   embCfg.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if store != nil {
		ttl := time.Duration(embCfg.CacheTTLSec) * time.Second
		embedder = embcache.New(base, store, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	embedder = embeddinguc.NewRateLimitedEmbedder(embedder, embCfg.QPS, embCfg.Burst)

	return embeddinguc.NewInstrumentedEmbedder(
		embedder, embCfg.Provider, embCfg.Model, budgetChecker, logger,
	), budget
}

func writeChunksFile(path string, chunks []chunk.Chunk) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := interchange.NewChunkWriter(f)
	for _, c := range chunks {
		if err := w.Write(c); err != nil {
			_ = f.Close()
			return fmt.Errorf("write chunk: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush chunks: %w", err)
	}
	return f.Close()
}

// recordFiles lists the distinct source filenames, sorted.
func recordFiles(records []record.Record) []string {
	seen := make(map[string]struct{}, len(records))
	var files []string
	for _, r := range records {
		name := r.Meta().Filename
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		files = append(files, name)
	}
	sort.Strings(files)
	return files
}

func serveMetrics(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("Serving ingest metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Warn("Metrics server stopped", zap.Error(err))
	}
}
