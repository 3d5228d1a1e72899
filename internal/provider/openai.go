// Package provider implements the OpenAI-compatible HTTP client used for
// chat completion (tagging, inference) and embedding generation.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseSize limits response bodies (10 MB). Protects against OOM from
// malformed or huge responses.
const maxResponseSize = 10 * 1024 * 1024

// Config holds the connection settings for an OpenAI-compatible endpoint.
type Config struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
	// EmbedDims, when non-zero, is validated against every returned vector.
	EmbedDims int
	Timeout   time.Duration
}

func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	config Config
	client *http.Client
}

// NewClient creates a Client for the configured endpoint.
func NewClient(config Config) *Client {
	config.defaults()
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends a single-turn completion request and returns the response
// text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := c.doPost(ctx, "/chat/completions", chatRequest{
		Model:    c.config.ChatModel,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("provider: decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider: completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input text, in input order regardless
// of the order the endpoint reports them in.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := c.doPost(ctx, "/embeddings", embedRequest{
		Model: c.config.EmbedModel,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("provider: decode embeddings: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("provider: embeddings: got %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("provider: embeddings: index %d out of range", item.Index)
		}
		if c.config.EmbedDims > 0 && len(item.Embedding) != c.config.EmbedDims {
			return nil, fmt.Errorf("provider: embeddings: got %d dimensions, want %d", len(item.Embedding), c.config.EmbedDims)
		}
		vecs[item.Index] = item.Embedding
	}
	for i, vec := range vecs {
		if vec == nil {
			return nil, fmt.Errorf("provider: embeddings: missing vector for input %d", i)
		}
	}
	return vecs, nil
}

// doPost sends an authenticated POST and returns the response body, mapping
// non-2xx statuses to errors.
func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("provider: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("provider: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("provider: %s returned %d: %s", path, resp.StatusCode, truncate(data, 200))
	}
	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
