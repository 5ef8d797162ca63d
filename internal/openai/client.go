package openai

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/noesis-ai/noesis/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultEmbeddingDimensions = 1536
	// DefaultMaxInputChars is the maximum embeddable input length; longer
	// input is truncated before the provider call, not rejected, so that the
	// mutation path stays resilient to oversized content.
	DefaultMaxInputChars = 16_000
)

// ErrWrongDimensions is returned when an embedding has unexpected dimensions
var ErrWrongDimensions = errors.New("embedding has unexpected dimensions")

// EmbeddingAPI defines the interface for the raw embedding backend call
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// Embedding is the result of embedding one piece of text.
type Embedding struct {
	Vector     []float32
	Model      string
	Dimensions int
}

// Client wraps the OpenAI API client behind the embedding provider contract.
type Client struct {
	api           EmbeddingAPI
	model         string
	dimensions    int
	maxInputChars int
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(apiKey string, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	MaxInputChars       int
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	maxInput := cfg.MaxInputChars
	if maxInput <= 0 {
		maxInput = DefaultMaxInputChars
	}
	return &Client{
		api:           NewOpenAIAdapter(cfg.APIKey, model),
		model:         string(model),
		dimensions:    dimensions,
		maxInputChars: maxInput,
	}
}

// NewClientWithAPI creates a Client around an explicit backend (for tests).
func NewClientWithAPI(api EmbeddingAPI, model string, dimensions int) *Client {
	return &Client{
		api:           api,
		model:         model,
		dimensions:    dimensions,
		maxInputChars: DefaultMaxInputChars,
	}
}

// GenerateEmbedding embeds the given text. Empty or whitespace-only input
// is rejected with a validation error; oversized input is silently
// truncated. Provider errors are returned unwrapped so callers can
// classify them.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) (*Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyEmbeddingInput
	}

	if runes := []rune(text); len(runes) > c.maxInputChars {
		log.Printf("embedding input truncated from %d to %d characters", len(runes), c.maxInputChars)
		text = string(runes[:c.maxInputChars])
	}

	vector, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, err
	}

	if c.dimensions > 0 && len(vector) != c.dimensions {
		return nil, ErrWrongDimensions
	}

	return &Embedding{
		Vector:     vector,
		Model:      c.model,
		Dimensions: len(vector),
	}, nil
}

// Model returns the configured embedding model identifier.
func (c *Client) Model() string {
	return c.model
}

// Dimensions returns the configured embedding dimensionality.
func (c *Client) Dimensions() int {
	return c.dimensions
}
