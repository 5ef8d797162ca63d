package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	// VectorBackend selects the index implementation: "pgvector" keeps
	// chunks in Postgres, "filesearch" delegates to a managed service.
	VectorBackend      string `envconfig:"VECTOR_BACKEND" default:"pgvector"`
	FileSearchEndpoint string `envconfig:"FILESEARCH_ENDPOINT"`
	FileSearchAPIKey   string `envconfig:"FILESEARCH_API_KEY"`
	FileSearchIndex    string `envconfig:"FILESEARCH_INDEX" default:"noesis-entries"`

	MatchThreshold float32 `envconfig:"MATCH_THRESHOLD" default:"0.45"`
	MatchCount     int     `envconfig:"MATCH_COUNT" default:"4"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"noesis-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("NOESIS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
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

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) UsesFileSearch() bool {
	return c.VectorBackend == "filesearch" && c.FileSearchEndpoint != ""
}
