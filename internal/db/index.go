package db

import (
	"errors"
	"strconv"
	"strings"
)

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

const (
	// DistanceL2 is Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
	// DistanceIP is inner product distance.
	DistanceIP DistanceMetric = "IP"
	// DistanceCosine is cosine distance.
	DistanceCosine DistanceMetric = "COSINE"
)

// VectorAlgorithm selects the indexing algorithm for vector fields in FT.CREATE.
type VectorAlgorithm string

const (
	// VectorHNSW uses the HNSW algorithm.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat uses the FLAT (brute-force) algorithm.
	VectorFlat VectorAlgorithm = "FLAT"
)

// IndexFieldType enumerates supported FT index field types.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is a tag field.
	IndexFieldTag
	// IndexFieldText is a text field.
	IndexFieldText
	// IndexFieldVector is a vector field.
	IndexFieldVector
)

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name  string
	Alias string // AS alias in FT.CREATE SCHEMA
	Type  IndexFieldType

	// TAG options
	TagSeparator string

	// VECTOR options
	VectorAlgo        VectorAlgorithm
	VectorDim         int
	VectorDistance    DistanceMetric
	VectorM           int // HNSW M parameter: max edges per node
	VectorEFConstruct int // HNSW EF_CONSTRUCTION: build-time dynamic list size
	VectorBlockSize   int // FLAT BLOCK_SIZE
}

// IndexDefinition is a complete FT index definition used by FT.CREATE.
// Documents are stored as hashes; the vector field holds the embedding
// as a binary blob.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool)
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return errors.New("field name is required at index " + strconv.Itoa(i))
		}
		key := f.Name
		if f.Alias != "" {
			key = f.Alias
		}
		if seen[key] {
			return errors.New("duplicate field name: " + key)
		}
		seen[key] = true

		if f.Type == IndexFieldVector && f.VectorDim <= 0 {
			return errors.New("vector field requires positive DIM")
		}
	}

	return nil
}

// String returns a debug representation resembling the FT.CREATE command.
func (idx *IndexDefinition) String() string {
	parts := []string{"FT.CREATE", idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		parts = append(parts, "PREFIX")
		parts = append(parts, idx.Prefixes...)
	}
	parts = append(parts, "SCHEMA")
	for i := range idx.Fields {
		f := &idx.Fields[i]
		parts = append(parts, f.Name)
		if f.Alias != "" {
			parts = append(parts, "AS", f.Alias)
		}
		switch f.Type {
		case IndexFieldTag:
			parts = append(parts, "TAG")
		case IndexFieldNumeric:
			parts = append(parts, "NUMERIC")
		case IndexFieldText:
			parts = append(parts, "TEXT")
		case IndexFieldVector:
			parts = append(parts, "VECTOR", string(f.VectorAlgo))
		}
	}
	return strings.Join(parts, " ")
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
