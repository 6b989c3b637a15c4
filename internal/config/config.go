// Package config provides unified configuration loading for the RAG engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the RAG engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	MasterKey     string              `yaml:"master_key"` // base64, 32 bytes decoded
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Completion    CompletionConfig    `yaml:"completion"`
	Chunking      ChunkingConfig      `yaml:"chunking"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Cache         CacheConfig         `yaml:"cache"`
	Blob          BlobConfig          `yaml:"blob"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	CORSOrigins      []string      `yaml:"cors_origins"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Type      string        `yaml:"type"` // openai, nomic, jina
	Endpoint  string        `yaml:"endpoint"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// CompletionProviderConfig describes one completion provider.
type CompletionProviderConfig struct {
	Type         string `yaml:"type"` // openai, anthropic, groq, mistral
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"api_key"`
	FastModel    string `yaml:"fast_model"`
	QualityModel string `yaml:"quality_model"`
}

// CompletionConfig holds the completion provider chain and stream budgets.
type CompletionConfig struct {
	Primary           CompletionProviderConfig   `yaml:"primary"`
	Fallbacks         []CompletionProviderConfig `yaml:"fallbacks"`
	CallTimeout       time.Duration              `yaml:"call_timeout"`
	InactivityTimeout time.Duration              `yaml:"inactivity_timeout"`
	MaxTokens         int                        `yaml:"max_tokens"`
	Temperature       float64                    `yaml:"temperature"`
	ContextBudget     int                        `yaml:"context_budget"` // characters
}

// ChunkingConfig holds chunker settings.
type ChunkingConfig struct {
	Size     int  `yaml:"size"`     // characters
	Overlap  int  `yaml:"overlap"`  // characters
	Adaptive bool `yaml:"adaptive"` // per-document-class parameters
}

// JobsConfig holds ingestion scheduler settings.
type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	SoftDeadline time.Duration `yaml:"soft_deadline"`
}

// CacheConfig holds query-embedding cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory, redis, off
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BlobConfig holds blob store settings.
type BlobConfig struct {
	Type string       `yaml:"type"` // fs or s3
	FS   FSBlobConfig `yaml:"fs"`
	S3   S3BlobConfig `yaml:"s3"`
}

// FSBlobConfig holds filesystem blob store settings.
type FSBlobConfig struct {
	Root string `yaml:"root"`
}

// S3BlobConfig holds S3-compatible blob store settings.
type S3BlobConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8091,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			QueryTimeout:     90 * time.Second,
			CORSOrigins:      []string{"*"},
		},
		Database: DatabaseConfig{
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Type:      "openai",
			Endpoint:  "https://api.openai.com/v1",
			Model:     "text-embedding-3-small",
			Dimension: 768,
			BatchSize: 50,
			Timeout:   30 * time.Second,
		},
		Completion: CompletionConfig{
			Primary: CompletionProviderConfig{
				Type:         "openai",
				Endpoint:     "https://api.openai.com/v1",
				FastModel:    "gpt-4o-mini",
				QualityModel: "gpt-4o",
			},
			CallTimeout:       60 * time.Second,
			InactivityTimeout: 30 * time.Second,
			MaxTokens:         1024,
			Temperature:       0.2,
			ContextBudget:     12000,
		},
		Chunking: ChunkingConfig{
			Size:     3200,
			Overlap:  600,
			Adaptive: false,
		},
		Jobs: JobsConfig{
			Workers:      runtime.NumCPU(),
			QueueSize:    64,
			SoftDeadline: 10 * time.Minute,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        10 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Blob: BlobConfig{
			Type: "fs",
			FS: FSBlobConfig{
				Root: "/var/lib/rag-engine/blobs",
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "rag-engine",
		},
	}
}

// Validate checks the configuration for errors. The service refuses to start
// on a missing or malformed master key.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if _, err := c.MasterKeyBytes(); err != nil {
		return err
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}

	if c.Embedding.BatchSize < 1 || c.Embedding.BatchSize > 50 {
		return fmt.Errorf("embedding batch_size must be between 1 and 50, got %d", c.Embedding.BatchSize)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Chunking.Size)
	}

	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunk overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}

	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs workers must be at least 1, got %d", c.Jobs.Workers)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" && c.Cache.Driver != "off" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Blob.Type != "fs" && c.Blob.Type != "s3" {
		return fmt.Errorf("invalid blob store type: %s", c.Blob.Type)
	}

	return nil
}

// MasterKeyBytes decodes the configured master key and enforces its length.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	if c.MasterKey == "" {
		return nil, fmt.Errorf("master key is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAG_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("RAG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("RAG_MASTER_KEY"); v != "" {
		cfg.MasterKey = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("RAG_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("RAG_EMBEDDING_TYPE"); v != "" {
		cfg.Embedding.Type = v
	}

	if v := os.Getenv("RAG_EMBEDDING_ENDPOINT"); v != "" {
		cfg.Embedding.Endpoint = v
	}

	if v := os.Getenv("RAG_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("RAG_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("RAG_EMBEDDING_DIMENSION"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimension = d
		}
	}

	if v := os.Getenv("RAG_COMPLETION_TYPE"); v != "" {
		cfg.Completion.Primary.Type = v
	}

	if v := os.Getenv("RAG_COMPLETION_ENDPOINT"); v != "" {
		cfg.Completion.Primary.Endpoint = v
	}

	if v := os.Getenv("RAG_COMPLETION_API_KEY"); v != "" {
		cfg.Completion.Primary.APIKey = v
	}

	if v := os.Getenv("RAG_COMPLETION_FAST_MODEL"); v != "" {
		cfg.Completion.Primary.FastModel = v
	}

	if v := os.Getenv("RAG_COMPLETION_QUALITY_MODEL"); v != "" {
		cfg.Completion.Primary.QualityModel = v
	}

	if v := os.Getenv("RAG_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Jobs.Workers = n
		}
	}

	if v := os.Getenv("RAG_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chunking.Size = n
		}
	}

	if v := os.Getenv("RAG_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chunking.Overlap = n
		}
	}

	if v := os.Getenv("RAG_CHUNK_ADAPTIVE"); v == "true" {
		cfg.Chunking.Adaptive = true
	}

	if v := os.Getenv("RAG_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}

	if v := os.Getenv("RAG_BLOB_TYPE"); v != "" {
		cfg.Blob.Type = v
	}

	if v := os.Getenv("RAG_BLOB_ROOT"); v != "" {
		cfg.Blob.FS.Root = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
