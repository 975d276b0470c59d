// Package interchange reads and writes the JSONL files that move text
// between pipeline stages: extracted records in, segmented chunks out.
// One JSON object per line; blank lines are skipped.
package interchange

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/record"
)

// maxLineBytes bounds a single JSONL line. Records carry whole extracted
// pages, which can run far past bufio's default 64 KiB token limit.
const maxLineBytes = 16 * 1024 * 1024

type recordMeta struct {
	Source       string  `json:"source"`
	Filename     string  `json:"filename"`
	Page         int     `json:"page"`
	TotalPages   int     `json:"total_pages"`
	ModifiedTime float64 `json:"modified_time"`
}

type recordEnvelope struct {
	Content  string     `json:"content"`
	Metadata recordMeta `json:"metadata"`
}

type chunkMeta struct {
	recordMeta
	ChunkIndex   int `json:"chunk_index"`
	StartOffset  int `json:"start_offset"`
	EndOffset    int `json:"end_offset"`
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

type chunkEnvelope struct {
	Content  string    `json:"content"`
	Metadata chunkMeta `json:"metadata"`
}

// DecodeRecords streams records from r in input order, calling fn for
// each one. A malformed or invalid line fails the whole stream with its
// line number. fn returning an error stops the stream.
func DecodeRecords(r io.Reader, fn func(record.Record) error) error {
	return scanLines(r, func(line int, data []byte) error {
		var env recordEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := record.New(env.Content, record.Meta{
			Source:       env.Metadata.Source,
			Filename:     env.Metadata.Filename,
			Page:         env.Metadata.Page,
			TotalPages:   env.Metadata.TotalPages,
			ModifiedTime: env.Metadata.ModifiedTime,
		})
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		return fn(rec)
	})
}

// ReadRecords opens path and streams its records through fn.
func ReadRecords(path string, fn func(record.Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()
	if err := DecodeRecords(f, fn); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// DecodeChunks streams chunks from r in input order, calling fn for
// each one.
func DecodeChunks(r io.Reader, fn func(chunk.Chunk) error) error {
	return scanLines(r, func(line int, data []byte) error {
		var env chunkEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		c, err := chunk.New(env.Content, chunk.Meta{
			Meta: record.Meta{
				Source:       env.Metadata.Source,
				Filename:     env.Metadata.Filename,
				Page:         env.Metadata.Page,
				TotalPages:   env.Metadata.TotalPages,
				ModifiedTime: env.Metadata.ModifiedTime,
			},
			ChunkIndex:   env.Metadata.ChunkIndex,
			StartOffset:  env.Metadata.StartOffset,
			EndOffset:    env.Metadata.EndOffset,
			ChunkSize:    env.Metadata.ChunkSize,
			Overlap:      env.Metadata.ChunkOverlap,
		})
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		return fn(c)
	})
}

// ReadChunks opens path and streams its chunks through fn.
func ReadChunks(path string, fn func(chunk.Chunk) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open chunks file: %w", err)
	}
	defer f.Close()
	if err := DecodeChunks(f, fn); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func scanLines(r io.Reader, fn func(line int, data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := fn(line, data); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("line %d: %w", line+1, err)
	}
	return nil
}

// ChunkWriter appends chunks to a JSONL stream.
type ChunkWriter struct {
	buf *bufio.Writer
	enc *json.Encoder
}

// NewChunkWriter wraps w for chunk output. Call Flush when done.
func NewChunkWriter(w io.Writer) *ChunkWriter {
	buf := bufio.NewWriter(w)
	return &ChunkWriter{buf: buf, enc: json.NewEncoder(buf)}
}

// Write appends one chunk as a single JSON line.
func (w *ChunkWriter) Write(c chunk.Chunk) error {
	m := c.Meta()
	env := chunkEnvelope{
		Content: c.Content(),
		Metadata: chunkMeta{
			recordMeta: recordMeta{
				Source:       m.Source,
				Filename:     m.Filename,
				Page:         m.Page,
				TotalPages:   m.TotalPages,
				ModifiedTime: m.ModifiedTime,
			},
			ChunkIndex:   m.ChunkIndex,
			StartOffset:  m.StartOffset,
			EndOffset:    m.EndOffset,
			ChunkSize:    m.ChunkSize,
			ChunkOverlap: m.Overlap,
		},
	}
	return w.enc.Encode(env)
}

// Flush writes any buffered lines to the underlying writer.
func (w *ChunkWriter) Flush() error {
	return w.buf.Flush()
}
