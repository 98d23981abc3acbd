package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Dimensions is the fixed width of the paper embedding space.
const Dimensions = 1536

// Config holds embedding provider settings.
type Config struct {
	BaseURL string
	Token   string
	Model   string
}

// Client derives query vectors from free text via an OpenAI-compatible
// embedding API.
type Client struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// NewClient builds the langchaingo-backed embedding client.
// Token "none" works for local OpenAI-compatible services without auth.
func NewClient(config Config) (*Client, error) {
	token := config.Token
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.Model),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("wrap embedder: %w", err)
	}

	return &Client{
		embedder: embedder,
		logger:   slog.Default().With("component", "embedding-client"),
	}, nil
}

// EmbedText generates the vector embedding for one query string.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	c.logger.Debug("generating query embedding", "length", len(text))

	vectors, err := c.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		c.logger.Error("embedding request failed", "err", err)
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	if len(vectors[0]) != Dimensions {
		return nil, fmt.Errorf("embedder returned %d dimensions, want %d", len(vectors[0]), Dimensions)
	}

	return vectors[0], nil
}
