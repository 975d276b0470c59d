package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the consulta service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Index      IndexConfig      `yaml:"index"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	Storage    StorageConfig    `yaml:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig selects the vector index backend and its build parameters.
type IndexConfig struct {
	Backend         string `yaml:"backend"`   // redisearch, qdrant (default: redisearch)
	Algorithm       string `yaml:"algorithm"` // hnsw, flat (default: hnsw)
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// QdrantConfig holds settings for the qdrant backend.
type QdrantConfig struct {
	Addr string `yaml:"addr"` // host:port of the gRPC endpoint
}

// StorageConfig holds key layout and artifact settings.
type StorageConfig struct {
	KeyPrefix    string `yaml:"key_prefix"`
	Collection   string `yaml:"collection"`
	ManifestPath string `yaml:"manifest_path"` // last ingest manifest, read by /api/v1/stats
}

// ChunkingConfig holds document segmentation settings.
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size"` // runes per chunk
	Overlap   int `yaml:"overlap"`    // runes carried into the next chunk
	BatchSize int `yaml:"batch_size"` // chunks per embedding batch during ingest
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider    string       `yaml:"provider"` // label for budgets and metrics
	Model       string       `yaml:"model"`
	Dimensions  int          `yaml:"dimensions"`
	APIKey      string       `yaml:"api_key"`
	BaseURL     string       `yaml:"base_url"`
	User        string       `yaml:"user"`
	QPS         float64      `yaml:"qps"`           // 0 = unlimited
	Burst       int          `yaml:"burst"`         // rate limiter burst (default: 1)
	CacheTTLSec int          `yaml:"cache_ttl_sec"` // 0 = cache entries never expire
	Budget      BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// GenerationConfig holds answer synthesis settings.
type GenerationConfig struct {
	Provider    string                       `yaml:"provider"` // explicit provider; empty = probe priority order
	Priority    []string                     `yaml:"priority"`
	MaxTokens   int                          `yaml:"max_tokens"`
	Temperature float32                      `yaml:"temperature"`
	Providers   map[string]GenProviderConfig `yaml:"providers"`
}

// GenProviderConfig holds per-provider generation settings.
type GenProviderConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Region  string `yaml:"region"` // bedrock only
}

// RetrievalConfig holds query planning and search settings.
type RetrievalConfig struct {
	TopK       int               `yaml:"top_k"`
	MaxContext int               `yaml:"max_context"` // passages handed to the generator
	Aliases    map[string]string `yaml:"aliases"`     // product mention -> filename
	Keywords   []string          `yaml:"keywords"`    // terms promoted to content filters
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.Backend == "" {
		c.Index.Backend = "redisearch"
	}
	if c.Index.Algorithm == "" {
		c.Index.Algorithm = "hnsw"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "consulta:"
	}
	if c.Storage.Collection == "" {
		c.Storage.Collection = "pdf_chunks"
	}
	if c.Chunking.ChunkSize <= 0 {
		c.Chunking.ChunkSize = 2000
	}
	if c.Chunking.Overlap <= 0 {
		c.Chunking.Overlap = 200
	}
	if c.Chunking.BatchSize <= 0 {
		c.Chunking.BatchSize = 128
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.Burst <= 0 {
		c.Embedding.Burst = 1
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 700
	}
	if c.Generation.Temperature <= 0 {
		c.Generation.Temperature = 0.2
	}
	if len(c.Generation.Priority) == 0 {
		c.Generation.Priority = []string{"openai", "groq", "ollama"}
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 6
	}
	if c.Retrieval.MaxContext <= 0 {
		c.Retrieval.MaxContext = 6
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Index.Backend {
	case "redisearch":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redisearch backend")
		}
	case "qdrant":
		if c.Qdrant.Addr == "" {
			return fmt.Errorf("qdrant.addr is required for the qdrant backend")
		}
	default:
		return fmt.Errorf("index.backend must be \"redisearch\" or \"qdrant\", got %q", c.Index.Backend)
	}
	if c.Index.Algorithm != "hnsw" && c.Index.Algorithm != "flat" {
		return fmt.Errorf("index.algorithm must be \"hnsw\" or \"flat\", got %q", c.Index.Algorithm)
	}
	if c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf(
			"chunking.overlap must be smaller than chunking.chunk_size, got %d >= %d",
			c.Chunking.Overlap, c.Chunking.ChunkSize,
		)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action,
		)
	}
	if p := c.Generation.Provider; p != "" {
		if _, ok := c.Generation.Providers[p]; !ok {
			return fmt.Errorf("generation.provider %q has no entry under generation.providers", p)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
