package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Store      StoreConfig      `yaml:"store"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Indexer    IndexerConfig    `yaml:"indexer,omitempty"`
	Retry      RetryConfig      `yaml:"retry,omitempty"`
	Log        LogConfig        `yaml:"log,omitempty"`
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "openai" | "ollama"

	// OpenAI-compatible endpoint (OpenAI, OpenRouter, Ollama's /v1, LM Studio...)
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	Dimensions int           `yaml:"dimensions,omitempty"` // 0 = learn from first vector
	BatchSize  int           `yaml:"batch_size"`
	CacheSize  int           `yaml:"cache_size"` // query embedding LRU entries, 0 disables
	Timeout    time.Duration `yaml:"timeout"`
}

// GenerationConfig holds text completion configuration
type GenerationConfig struct {
	Provider    string        `yaml:"provider"` // "openai" | "ollama"
	APIKey      string        `yaml:"api_key,omitempty"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Stream      bool          `yaml:"stream,omitempty"` // SSE streaming for the openai provider
	Timeout     time.Duration `yaml:"timeout"`
}

// StoreConfig locates the persisted collection
type StoreConfig struct {
	// Path to the SQLite database file
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

// ChunkingConfig sets the character window used by the chunker
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig holds single-query search configuration
type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	MinScore  float64 `yaml:"min_score"` // relevance floor, an explicit 0 disables
	MaxTokens int     `yaml:"max_tokens"`
	Persona   string  `yaml:"persona"`
	Template  string  `yaml:"template,omitempty"`
	// NoContextAnswer is returned when no chunk clears MinScore
	NoContextAnswer string `yaml:"no_context_answer"`
}

// ExtractionConfig holds multi-field extraction configuration
type ExtractionConfig struct {
	FieldsFile      string  `yaml:"fields_file,omitempty"`
	TopK            int     `yaml:"top_k"`
	MinScore        float64 `yaml:"min_score"`
	Workers         int     `yaml:"workers"`
	Persona         string  `yaml:"persona"`
	Template        string  `yaml:"template,omitempty"`
	NoContextAnswer string  `yaml:"no_context_answer"`
}

// IndexerConfig holds index build configuration
type IndexerConfig struct {
	MaxWorkers  int           `yaml:"max_workers,omitempty"` // concurrent embedding batches
	LockTimeout time.Duration `yaml:"lock_timeout,omitempty"`
	Include     []string      `yaml:"include,omitempty"` // doublestar patterns, default **/*.pdf
	Exclude     []string      `yaml:"exclude,omitempty"`
}

// RetryConfig bounds retries at the embedding/generation boundary
type RetryConfig struct {
	Attempts   int           `yaml:"attempts,omitempty"`
	Backoff    time.Duration `yaml:"backoff,omitempty"`
	MaxBackoff time.Duration `yaml:"max_backoff,omitempty"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

const (
	DefaultPersona = "You are a careful legal assistant summarizing case documents. " +
		"Answer only from the context provided. Do not use outside knowledge and do not make things up. " +
		"If the answer cannot be determined from the context, say: Unknown."
	DefaultQueryPersona = "You are a helpful assistant answering questions about the provided documents. " +
		"You only answer based on the data provided. You don't use your internal knowledge and you don't make things up. " +
		"If you don't know the answer, just say: I don't know."
	DefaultNoContextAnswer = "Unable to find matching results."
)

// Load loads configuration from the default config file.
// Default location: ~/.briefly/config/briefly.yaml. A missing default file
// yields the built-in defaults.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		if IsConfigNotFound(err) {
			return Default()
		}
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns ~/.briefly/config/briefly.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".briefly", "config", "briefly.yaml"), nil
}

// Default returns the built-in configuration with env overrides applied.
func Default() (*Config, error) {
	cfg := seeded()
	return &cfg, cfg.finalize()
}

// seeded pre-fills the values for which zero is a meaningful setting, so
// that only an absent key picks up the default.
func seeded() Config {
	return Config{
		Chunking:  ChunkingConfig{Overlap: 100},
		Retrieval: RetrievalConfig{MinScore: 0.7},
	}
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			defaultPath, _ := DefaultPath()
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := seeded()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finalize() error {
	c.applyEnv()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with --config\n"+
		"  3. Run 'briefly init' to write a commented template",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	_, ok := err.(*ConfigNotFoundError)
	return ok
}

// expandPath expands ~ and $HOME to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// applyEnv overrides file values with BRIEFLY_* variables. Unset variables
// leave the file value alone.
func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(dst *float64, key string) {
		if v, ok := os.LookupEnv(key); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*dst = f
			}
		}
	}

	setString(&c.Embedding.Provider, "BRIEFLY_EMBEDDING_PROVIDER")
	setString(&c.Embedding.APIKey, "BRIEFLY_EMBEDDING_API_KEY")
	setString(&c.Embedding.BaseURL, "BRIEFLY_EMBEDDING_BASE_URL")
	setString(&c.Embedding.Model, "BRIEFLY_EMBEDDING_MODEL")

	setString(&c.Generation.Provider, "BRIEFLY_GENERATION_PROVIDER")
	setString(&c.Generation.APIKey, "BRIEFLY_GENERATION_API_KEY")
	setString(&c.Generation.BaseURL, "BRIEFLY_GENERATION_BASE_URL")
	setString(&c.Generation.Model, "BRIEFLY_GENERATION_MODEL")
	// The original scripts read OPENROUTER_API_KEY from .env.
	if c.Generation.APIKey == "" {
		setString(&c.Generation.APIKey, "OPENROUTER_API_KEY")
	}

	setString(&c.Store.Path, "BRIEFLY_STORE_PATH")
	setString(&c.Store.Collection, "BRIEFLY_COLLECTION")

	setInt(&c.Chunking.Size, "BRIEFLY_CHUNK_SIZE")
	setInt(&c.Chunking.Overlap, "BRIEFLY_CHUNK_OVERLAP")
	setInt(&c.Retrieval.TopK, "BRIEFLY_TOP_K")
	setFloat(&c.Retrieval.MinScore, "BRIEFLY_MIN_SCORE")
	setInt(&c.Extraction.Workers, "BRIEFLY_EXTRACT_WORKERS")
	setString(&c.Log.Level, "BRIEFLY_LOG_LEVEL")
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "ollama"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "all-minilm"
	}
	if c.Embedding.BaseURL == "" {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.BaseURL = "https://api.openai.com/v1"
		case "ollama":
			c.Embedding.BaseURL = "http://localhost:11434"
		}
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.CacheSize == 0 {
		c.Embedding.CacheSize = 256
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = 30 * time.Second
	}

	if c.Generation.Provider == "" {
		c.Generation.Provider = "openai"
	}
	if c.Generation.BaseURL == "" {
		switch c.Generation.Provider {
		case "openai":
			c.Generation.BaseURL = "https://openrouter.ai/api/v1"
		case "ollama":
			c.Generation.BaseURL = "http://localhost:11434"
		}
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "meta-llama/llama-3.3-70b-instruct"
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = 512
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = 120 * time.Second
	}

	if c.Store.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Store.Path = filepath.Join(home, ".briefly", "data", "briefly.db")
		} else {
			c.Store.Path = filepath.Join("chroma_db", "briefly.db")
		}
	}
	c.Store.Path = expandPath(c.Store.Path)
	if c.Store.Collection == "" {
		c.Store.Collection = "documents"
	}

	if c.Chunking.Size == 0 {
		c.Chunking.Size = 300
	}

	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 3
	}
	if c.Retrieval.MaxTokens == 0 {
		c.Retrieval.MaxTokens = 150
	}
	if c.Retrieval.Persona == "" {
		c.Retrieval.Persona = DefaultQueryPersona
	}
	if c.Retrieval.NoContextAnswer == "" {
		c.Retrieval.NoContextAnswer = DefaultNoContextAnswer
	}

	if c.Extraction.TopK == 0 {
		c.Extraction.TopK = 5
	}
	if c.Extraction.Workers == 0 {
		c.Extraction.Workers = 1
	}
	if c.Extraction.Persona == "" {
		c.Extraction.Persona = DefaultPersona
	}
	if c.Extraction.NoContextAnswer == "" {
		c.Extraction.NoContextAnswer = "Unknown"
	}
	if c.Extraction.FieldsFile != "" {
		c.Extraction.FieldsFile = expandPath(c.Extraction.FieldsFile)
	}

	if c.Indexer.MaxWorkers == 0 {
		c.Indexer.MaxWorkers = 4
	}
	if len(c.Indexer.Include) == 0 {
		c.Indexer.Include = []string{"**/*.pdf"}
	}

	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.Backoff == 0 {
		c.Retry.Backoff = 200 * time.Millisecond
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = 5 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	switch c.Generation.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported generation provider: %s", c.Generation.Provider)
	}

	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 1024 {
		return fmt.Errorf("embedding.batch_size must be between 1 and 1024, got: %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions cannot be negative, got: %d", c.Embedding.Dimensions)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got: %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got: %d", c.Chunking.Size, c.Chunking.Overlap)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got: %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval.min_score must be in [0, 1], got: %v", c.Retrieval.MinScore)
	}
	if c.Extraction.TopK <= 0 {
		return fmt.Errorf("extraction.top_k must be positive, got: %d", c.Extraction.TopK)
	}
	if c.Extraction.MinScore < 0 || c.Extraction.MinScore > 1 {
		return fmt.Errorf("extraction.min_score must be in [0, 1], got: %v", c.Extraction.MinScore)
	}
	if c.Extraction.Workers <= 0 {
		return fmt.Errorf("extraction.workers must be positive, got: %d", c.Extraction.Workers)
	}
	if c.Indexer.MaxWorkers <= 0 {
		return fmt.Errorf("indexer.max_workers must be positive, got: %d", c.Indexer.MaxWorkers)
	}
	if strings.TrimSpace(c.Store.Collection) == "" {
		return fmt.Errorf("store.collection is required")
	}

	return nil
}

// SaveToFile saves the configuration to a specific file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

const defaultConfigTemplate = `# Briefly Configuration
#
# Default location: $HOME/.briefly/config/briefly.yaml
# Every value can also be set with a BRIEFLY_* environment variable or a .env file.

embedding:
  # Provider: "ollama" or "openai" (any OpenAI-compatible /embeddings endpoint)
  provider: ollama
  base_url: http://localhost:11434
  model: all-minilm
  batch_size: 32
  timeout: 30s

generation:
  # Provider: "openai" (OpenAI, OpenRouter, ...) or "ollama"
  provider: openai
  base_url: https://openrouter.ai/api/v1
  model: meta-llama/llama-3.3-70b-instruct
  # api_key: set BRIEFLY_GENERATION_API_KEY or OPENROUTER_API_KEY instead
  max_tokens: 512
  timeout: 120s

store:
  path: $HOME/.briefly/data/briefly.db
  collection: documents

chunking:
  size: 300
  overlap: 100

retrieval:
  top_k: 3
  min_score: 0.7

extraction:
  # fields_file: $HOME/.briefly/config/fields.yaml
  top_k: 5
  workers: 1
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
