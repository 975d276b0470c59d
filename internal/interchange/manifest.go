package interchange

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Manifest records the outcome of one ingestion run. The ingest CLI writes
// it after a successful run; the stats endpoint reports it as last_ingest.
type Manifest struct {
	RunID         string    `json:"run_id"`
	Collection    string    `json:"collection"`
	FinishedAt    time.Time `json:"finished_at"`
	Records       int       `json:"records"`
	ChunksWritten int       `json:"chunks_written"`
	TotalTokens   int       `json:"total_tokens"`
	Files         []string  `json:"files"`
}

// WriteManifest writes the manifest to path as indented JSON.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads an ingestion manifest from path.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}
