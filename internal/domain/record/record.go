package record

import "fmt"

// Meta identifies the source unit a record was extracted from.
// Page is 1-based; ModifiedTime is the source file mtime in unix seconds.
type Meta struct {
	Source       string
	Filename     string
	Page         int
	TotalPages   int
	ModifiedTime float64
}

// Record is one unit of extracted source text (immutable value object).
// Typically one per page; produced by the external extractor.
type Record struct {
	content string
	meta    Meta
}

// New validates and creates a Record.
func New(content string, meta Meta) (Record, error) {
	if meta.Filename == "" {
		return Record{}, fmt.Errorf("record filename is required")
	}
	if meta.Page < 1 {
		return Record{}, fmt.Errorf("record page must be 1-based, got %d", meta.Page)
	}
	if meta.TotalPages > 0 && meta.Page > meta.TotalPages {
		return Record{}, fmt.Errorf("record page %d exceeds total pages %d", meta.Page, meta.TotalPages)
	}
	return Record{content: content, meta: meta}, nil
}

// Content returns the extracted text.
func (r Record) Content() string { return r.content }

// Meta returns the source metadata.
func (r Record) Meta() Meta { return r.meta }
