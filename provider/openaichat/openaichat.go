// Package openaichat adapts an OpenAI-compatible chat completion endpoint to
// the engine's Provider contract. Any backend speaking the same wire format
// works by pointing BaseURL at it.
package openaichat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mnemonlabs/mnemon"
)

const defaultTimeout = 2 * time.Minute

// Client is an OpenAI-compatible chat completion provider.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ mnemon.Provider = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithTimeout caps each completion request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a chat provider for the configured endpoint. An empty endpoint
// uses the OpenAI default.
func New(apiKey, endpoint, model string, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	c := &Client{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: defaultTimeout,
		logger:  slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends a completion request and maps the reply back to the engine's
// types. HTTP-level failures come back as ErrHTTP so the retry wrapper can
// recognize rate limits.
func (c *Client) Chat(ctx context.Context, req mnemon.ChatRequest) (mnemon.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	oreq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toWire(req.Messages),
	}
	for _, t := range req.Tools {
		oreq.Tools = append(oreq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, oreq)
	if err != nil {
		return mnemon.ChatResponse{}, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return mnemon.ChatResponse{}, &mnemon.ErrLLM{Model: c.model, Message: "completion returned no choices"}
	}

	choice := resp.Choices[0]
	out := mnemon.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: mnemon.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if fc := choice.Message.FunctionCall; fc != nil {
		out.FunctionCall = &mnemon.ToolCall{Name: fc.Name, Arguments: fc.Arguments}
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, mnemon.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func toWire(msgs []mnemon.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Text,
		}
		switch m.Role {
		case mnemon.RoleUser:
			om.Name = m.Name
		case mnemon.RoleTool:
			om.ToolCallID = m.ToolCallID
			om.Name = m.Name
		case mnemon.RoleAssistant:
			for _, call := range m.ToolCalls {
				om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
		}
		out = append(out, om)
	}
	return out
}

func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &mnemon.ErrHTTP{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &mnemon.ErrHTTP{Status: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
