// Package llm talks to OpenAI-compatible embedding and chat completion endpoints.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pagemind/config"
	"github.com/mohammad-safakhou/pagemind/internal/httpclient"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a single chat completion call.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider is the remote model surface the pipeline depends on.
type Provider interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// NewProvider creates a provider based on configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "openai":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Type)
	}
}

// OpenAIProvider implements Provider for OpenAI and API-compatible servers.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	http    *httpclient.Client
}

func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	// per-call deadlines come from the caller's context
	timeout := cfg.CompletionTimeout
	if cfg.EmbeddingTimeout > timeout {
		timeout = cfg.EmbeddingTimeout
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    httpclient.New(timeout, cfg.MaxRetries, 300*time.Millisecond),
	}
}

func (p *OpenAIProvider) headers() (map[string]string, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}
	return map[string]string{"Authorization": "Bearer " + p.apiKey}, nil
}

// Embed returns the embedding for text. Empty text is sent as-is.
func (p *OpenAIProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	headers, err := p.headers()
	if err != nil {
		return nil, err
	}
	req := struct {
		Model string `json:"model"`
		Input string `json:"input"`
	}{Model: model, Input: text}
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := p.http.DoJSON(ctx, "POST", p.baseURL+"/embeddings", headers, req, &out); err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embeddings: empty response")
	}
	return out.Data[0].Embedding, nil
}

// Complete runs a chat completion and returns the first choice's content.
func (p *OpenAIProvider) Complete(ctx context.Context, in CompletionRequest) (string, error) {
	headers, err := p.headers()
	if err != nil {
		return "", err
	}
	type chatReq struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	body := chatReq{Model: in.Model, Messages: in.Messages, Temperature: in.Temperature, MaxTokens: in.MaxTokens}
	if err := p.http.DoJSON(ctx, "POST", p.baseURL+"/chat/completions", headers, body, &out); err != nil {
		return "", fmt.Errorf("chat completions: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completions: no choices")
	}
	return out.Choices[0].Message.Content, nil
}
