package redisearch

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/agrodocs/consulta/internal/db"
	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/search/result"
)

// buildHashFields flattens a chunk and its vector into HSET fields.
// Indexed fields (filename, page, chunk_index, __content, __vector) sit next
// to plain provenance fields the index never touches.
func buildHashFields(c chunk.Chunk, vec []float32) map[string]string {
	meta := c.Meta()
	return map[string]string{
		"filename":      meta.Filename,
		"page":          strconv.Itoa(meta.Page),
		"chunk_index":   strconv.Itoa(meta.ChunkIndex),
		"source":        meta.Source,
		"total_pages":   strconv.Itoa(meta.TotalPages),
		"start_offset":  strconv.Itoa(meta.StartOffset),
		"end_offset":    strconv.Itoa(meta.EndOffset),
		"chunk_size":    strconv.Itoa(meta.ChunkSize),
		"chunk_overlap": strconv.Itoa(meta.Overlap),
		"modified_time": strconv.FormatFloat(meta.ModifiedTime, 'f', -1, 64),
		"__content":     c.Content(),
		"__vector":      vectorToBytes(vec),
	}
}

// parseEntry maps a search hit's hash fields into a result.
func parseEntry(id string, entry db.SearchEntry) result.Result {
	return result.New(
		id,
		entry.Score,
		entry.Fields["__content"],
		entry.Fields["filename"],
		parseIntField(entry.Fields, "page"),
		parseIntField(entry.Fields, "chunk_index"),
	)
}

func parseIntField(fields map[string]string, name string) int {
	n, err := strconv.Atoi(fields[name])
	if err != nil {
		return 0
	}
	return n
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
