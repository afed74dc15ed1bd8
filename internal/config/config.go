package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

const envPrefix = "HOMEBASE"

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// DatabaseURL selects the Postgres store. When empty the SQLite file at
	// SQLitePath is used instead.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/homebase.db"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey        string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string  `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingRPS        float64 `envconfig:"EMBEDDING_RPS" default:"5"`
	EmbeddingCacheSize  int     `envconfig:"EMBEDDING_CACHE_SIZE" default:"1024"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"150"`
	MinChunkSize int `envconfig:"MIN_CHUNK_SIZE" default:"100"`

	SearchLimit         int           `envconfig:"SEARCH_LIMIT" default:"15"`
	LexicalLimit        int           `envconfig:"LEXICAL_LIMIT" default:"20"`
	VectorLimit         int           `envconfig:"VECTOR_LIMIT" default:"10"`
	SimilarityThreshold float64       `envconfig:"SIMILARITY_THRESHOLD" default:"0.3"`
	LexicalTimeout      time.Duration `envconfig:"LEXICAL_TIMEOUT" default:"5s"`
	VectorTimeout       time.Duration `envconfig:"VECTOR_TIMEOUT" default:"10s"`
	SearchLog           bool          `envconfig:"SEARCH_LOG" default:"true"`

	MaxUploadBytes    int64         `envconfig:"MAX_UPLOAD_BYTES" default:"52428800"`
	IngestConcurrency int           `envconfig:"INGEST_CONCURRENCY" default:"4"`
	WatchDir          string        `envconfig:"WATCH_DIR" default:"documents"`
	WatchDebounce     time.Duration `envconfig:"WATCH_DEBOUNCE" default:"1s"`
	BackfillInterval  time.Duration `envconfig:"BACKFILL_INTERVAL" default:"30s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects combinations the chunker and retriever cannot work with.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be between 0 and %d", c.ChunkSize-1)
	}
	if c.MinChunkSize < 0 || c.MinChunkSize > c.ChunkSize {
		return fmt.Errorf("min chunk size must be between 0 and %d", c.ChunkSize)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return errors.New("similarity threshold must be between 0 and 1")
	}
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		return errors.New("either DATABASE_URL or SQLITE_PATH must be set")
	}
	return nil
}

func (c *Config) HasPostgres() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasS3() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// ChunkConfig returns the chunker settings.
func (c *Config) ChunkConfig() service.ChunkConfig {
	cfg := service.DefaultChunkConfig()
	cfg.ChunkSize = c.ChunkSize
	cfg.ChunkOverlap = c.ChunkOverlap
	cfg.MinChunkSize = c.MinChunkSize
	return cfg
}

// RetrieverConfig returns the retrieval tunables without a store or embedder.
func (c *Config) RetrieverConfig() service.RetrieverConfig {
	cfg := service.DefaultRetrieverConfig()
	cfg.Limit = c.SearchLimit
	cfg.LexicalLimit = c.LexicalLimit
	cfg.VectorLimit = c.VectorLimit
	cfg.SimilarityThreshold = c.SimilarityThreshold
	cfg.LexicalTimeout = c.LexicalTimeout
	cfg.VectorTimeout = c.VectorTimeout
	return cfg
}
