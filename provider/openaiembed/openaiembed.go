// Package openaiembed adapts an OpenAI-compatible embeddings endpoint to the
// engine's EmbeddingProvider contract.
package openaiembed

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mnemonlabs/mnemon"
)

const defaultTimeout = 30 * time.Second

// Client is an OpenAI-compatible embedding provider.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

var _ mnemon.EmbeddingProvider = (*Client)(nil)

// New builds an embedding provider for the configured endpoint. An empty
// endpoint uses the OpenAI default.
func New(apiKey, endpoint, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return &Client{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: defaultTimeout,
	}
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &mnemon.ErrHTTP{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &mnemon.ErrLLM{Model: c.model, Message: "embedding endpoint returned no data"}
	}
	return resp.Data[0].Embedding, nil
}
