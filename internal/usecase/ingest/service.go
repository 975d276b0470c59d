// Package ingest turns extracted page records into indexed chunks:
// segmentation, batch vectorization and index writes.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agrodocs/consulta/internal/domain"
	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/record"
	"github.com/agrodocs/consulta/internal/domain/segment"
	"github.com/agrodocs/consulta/internal/metrics"
)

// DefaultBatchSize is how many chunks one embed-and-store batch carries.
const DefaultBatchSize = 128

// Summary reports what one ingest run did.
type Summary struct {
	Records     int
	Chunks      int
	Written     int
	Batches     int
	TotalTokens int
}

// Service orchestrates the write side of the pipeline.
type Service struct {
	index      Index
	embedder   BatchEmbedder
	seg        segment.Segmenter
	batchSize  int
	collection string
	logger     *zap.Logger
}

// New creates an ingest service.
func New(index Index, embedder BatchEmbedder, seg segment.Segmenter) *Service {
	return &Service{
		index:      index,
		embedder:   embedder,
		seg:        seg,
		batchSize:  DefaultBatchSize,
		collection: "pdf_chunks",
		logger:     zap.NewNop(),
	}
}

// WithBatchSize overrides the chunks-per-batch limit.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// WithCollection sets the collection label used in logs and metrics.
func (s *Service) WithCollection(name string) *Service {
	if name != "" {
		s.collection = name
	}
	return s
}

// WithLogger sets the pipeline logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// Segment splits records into chunks. Records with blank content are
// skipped; chunk indexes count per record from zero. A run that yields
// no chunks at all is an empty corpus.
func (s *Service) Segment(records []record.Record) ([]chunk.Chunk, error) {
	var chunks []chunk.Chunk
	skipped := 0

	for _, rec := range records {
		metrics.IngestRecordsTotal.WithLabelValues(s.collection).Inc()

		if strings.TrimSpace(rec.Content()) == "" {
			skipped++
			continue
		}

		var splitErr error
		idx := 0
		s.seg.Split(rec.Content(), func(p segment.Piece) bool {
			c, err := chunk.New(p.Text, chunk.Meta{
				Meta:        rec.Meta(),
				ChunkIndex:  idx,
				StartOffset: p.Start,
				EndOffset:   p.End,
				ChunkSize:   s.seg.ChunkSize(),
				Overlap:     s.seg.Overlap(),
			})
			if err != nil {
				splitErr = fmt.Errorf("chunk %s p%d c%d: %w", rec.Meta().Filename, rec.Meta().Page, idx, err)
				return false
			}
			chunks = append(chunks, c)
			idx++
			return true
		})
		if splitErr != nil {
			return nil, splitErr
		}
	}

	if skipped > 0 {
		s.logger.Info("skipped blank records", zap.Int("count", skipped))
	}
	if len(chunks) == 0 {
		return nil, domain.ErrEmptyCorpus
	}
	return chunks, nil
}

// Batches groups chunks into embed-and-store units of the configured size.
func (s *Service) Batches(chunks []chunk.Chunk) [][]chunk.Chunk {
	if len(chunks) == 0 {
		return nil
	}

	batches := make([][]chunk.Chunk, 0, (len(chunks)+s.batchSize-1)/s.batchSize)
	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}
	return batches
}

// WriteBatch embeds one batch of chunks and upserts it. Returns how many
// chunks were written.
func (s *Service) WriteBatch(ctx context.Context, batch []chunk.Chunk) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	start := time.Now()

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content()
	}

	res, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		metrics.IngestChunksTotal.WithLabelValues(s.collection, "failed").Add(float64(len(batch)))
		return 0, fmt.Errorf("embed batch of %d: %w", len(batch), err)
	}
	if len(res.Embeddings) != len(batch) {
		metrics.IngestChunksTotal.WithLabelValues(s.collection, "failed").Add(float64(len(batch)))
		return 0, fmt.Errorf("embed batch returned %d vectors for %d chunks", len(res.Embeddings), len(batch))
	}

	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	if err := s.index.Upsert(ctx, batch, res.Embeddings); err != nil {
		metrics.IngestChunksTotal.WithLabelValues(s.collection, "failed").Add(float64(len(batch)))
		return 0, fmt.Errorf("upsert batch of %d: %w", len(batch), err)
	}

	metrics.IngestChunksTotal.WithLabelValues(s.collection, "indexed").Add(float64(len(batch)))
	metrics.IngestBatchDuration.WithLabelValues(s.collection).Observe(time.Since(start).Seconds())
	return len(batch), nil
}

// Write pushes chunks through sequential batches. On a failing batch it
// returns how many chunks earlier batches wrote; those stay indexed, and
// deterministic chunk IDs make a re-run overwrite them in place.
func (s *Service) Write(ctx context.Context, chunks []chunk.Chunk) (int, error) {
	written := 0
	for i, batch := range s.Batches(chunks) {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, err := s.WriteBatch(ctx, batch)
		written += n
		if err != nil {
			return written, fmt.Errorf("batch %d: %w", i, err)
		}
	}
	return written, nil
}

// Run ensures the index, segments the records and writes every chunk.
func (s *Service) Run(ctx context.Context, records []record.Record) (Summary, error) {
	sum := Summary{Records: len(records)}

	if err := s.index.Ensure(ctx); err != nil {
		return sum, fmt.Errorf("ensure index: %w", err)
	}

	chunks, err := s.Segment(records)
	if err != nil {
		return sum, err
	}
	sum.Chunks = len(chunks)
	sum.Batches = len(s.Batches(chunks))

	uctx, usage := domain.NewContextWithUsage(ctx)
	sum.Written, err = s.Write(uctx, chunks)
	sum.TotalTokens = usage.TotalTokens
	if err != nil {
		return sum, err
	}

	s.logger.Info("ingest finished",
		zap.String("collection", s.collection),
		zap.Int("records", sum.Records),
		zap.Int("chunks", sum.Chunks),
		zap.Int("written", sum.Written),
		zap.Int("total_tokens", sum.TotalTokens),
	)
	return sum, nil
}
