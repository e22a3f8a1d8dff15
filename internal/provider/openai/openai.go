// Package openai adapts the OpenAI chat and embedding APIs to
// ports.LLM and ports.Embedder.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/ports"
)

// Client wraps an openai.Client and the chat/embedding model names to
// use, implementing both ports.LLM and ports.Embedder.
type Client struct {
	api            openai.Client
	chatModel      string
	embeddingModel string
	embeddingDims  int
}

// Config carries the provider settings read from the environment at
// composition time.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDims  int
}

func New(cfg Config, opts ...option.RequestOption) *Client {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		api:            openai.NewClient(reqOpts...),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		embeddingDims:  cfg.EmbeddingDims,
	}
}

var _ ports.LLM = (*Client)(nil)
var _ ports.Embedder = (*Client)(nil)

// Complete sends a single system+user turn and returns the assistant's
// text, honoring any CompleteOptions (temperature).
func (c *Client) Complete(ctx context.Context, systemPrompt, prompt string, opts ...ports.CompleteOption) (string, error) {
	var o ports.CompleteOptions
	for _, opt := range opts {
		opt(&o)
	}

	params := openai.ChatCompletionNewParams{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	}
	if o.Temperature != nil {
		params.Temperature = openai.Float(*o.Temperature)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", domain.NewTransientBackendError("openai", err, 0)
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewTransientBackendError("openai", fmt.Errorf("empty choices"), 0)
	}
	return resp.Choices[0].Message.Content, nil
}

// StructuredComplete constrains the completion to schema via OpenAI's
// strict JSON-schema response format, then unmarshals into out.
func (c *Client) StructuredComplete(ctx context.Context, systemPrompt, prompt string, schema map[string]any, out any, opts ...ports.CompleteOption) error {
	var o ports.CompleteOptions
	for _, opt := range opts {
		opt(&o)
	}

	params := openai.ChatCompletionNewParams{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "structured_output",
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		},
	}
	if o.Temperature != nil {
		params.Temperature = openai.Float(*o.Temperature)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.NewTransientBackendError("openai", err, 0)
	}
	if len(resp.Choices) == 0 {
		return domain.NewTransientBackendError("openai", fmt.Errorf("empty choices"), 0)
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		return domain.NewPermanentBackendError("openai", fmt.Errorf("decode structured response: %w", err))
	}
	return nil
}

// Embed returns one embedding per input text, in order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if c.embeddingDims > 0 {
		params.Dimensions = openai.Int(int64(c.embeddingDims))
	}

	resp, err := c.api.Embeddings.New(ctx, params)
	if err != nil {
		return nil, domain.NewTransientBackendError("openai", err, 0)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}

func (c *Client) Dimensions() int {
	return c.embeddingDims
}
