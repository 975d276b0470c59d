package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/agrodocs/consulta/internal/domain/record"
)

// Meta places a chunk inside its source record. Offsets are rune
// positions into the record content; ChunkIndex counts emitted chunks
// per record starting at zero.
type Meta struct {
	record.Meta
	ChunkIndex  int
	StartOffset int
	EndOffset   int
	ChunkSize   int
	Overlap     int
}

// Chunk is one indexable span of text with its provenance (immutable
// value object).
type Chunk struct {
	content string
	meta    Meta
}

// New validates and creates a Chunk.
func New(content string, meta Meta) (Chunk, error) {
	if content == "" {
		return Chunk{}, fmt.Errorf("chunk content is empty")
	}
	if meta.Filename == "" {
		return Chunk{}, fmt.Errorf("chunk filename is required")
	}
	if meta.ChunkIndex < 0 {
		return Chunk{}, fmt.Errorf("chunk index must not be negative, got %d", meta.ChunkIndex)
	}
	if meta.EndOffset <= meta.StartOffset {
		return Chunk{}, fmt.Errorf("chunk span [%d,%d) is empty", meta.StartOffset, meta.EndOffset)
	}
	return Chunk{content: content, meta: meta}, nil
}

// Content returns the chunk text.
func (c Chunk) Content() string { return c.content }

// Meta returns the chunk provenance.
func (c Chunk) Meta() Meta { return c.meta }

// ID returns the deterministic identity of the chunk position. Re-running
// ingestion over unchanged input yields the same IDs, so writes replace
// rather than duplicate.
func (c Chunk) ID() string {
	return Identity(c.meta.Filename, c.meta.Page, c.meta.ChunkIndex, c.meta.StartOffset, c.meta.EndOffset)
}

// Identity hashes the chunk position fields. The field order and the
// separator are stable across releases; changing either silently orphans
// every previously indexed chunk.
func Identity(filename string, page, chunkIndex, startOffset, endOffset int) string {
	seed := fmt.Sprintf("%s|p%d|c%d|%d|%d", filename, page, chunkIndex, startOffset, endOffset)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
