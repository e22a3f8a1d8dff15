// Package ollama is an Ollama-backed ports.Embedder, calling the local
// /api/embeddings HTTP endpoint one text at a time.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cognipipe/cognipipe/internal/domain"
)

// Client is an Ollama-backed ports.Embedder.
type Client struct {
	baseURL string
	model   string
	dims    int
	client  *http.Client
}

func New(baseURL, model string, dims int) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		dims:    dims,
		client:  &http.Client{},
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewTransientBackendError("ollama", err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewTransientBackendError("ollama", fmt.Errorf("status %d", resp.StatusCode), 0)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.NewPermanentBackendError("ollama", fmt.Errorf("decode embed response: %w", err))
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Embed calls the Ollama embeddings endpoint once per text, in order.
// Ollama's HTTP API has no native batch embedding call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text [%d]: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (c *Client) Dimensions() int {
	return c.dims
}
