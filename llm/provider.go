package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoChoices is returned when a completion response carries no message.
	ErrNoChoices = errors.New("llm: no choices in response")

	// ErrRequestFailed wraps non-retryable API errors and exhausted retries.
	ErrRequestFailed = errors.New("llm: request failed")
)

// Provider is the interface for LLM interactions. Only chat completion is
// needed here; no component computes embeddings.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider" toml:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model    string `json:"model" yaml:"model" toml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key" toml:"api_key"`

	// Timeout bounds a single HTTP request. Zero means 120s.
	Timeout time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	// MaxRetries bounds retries on 429/5xx. Zero means 6; negative disables retries.
	MaxRetries int `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
}

// vendor describes how to reach an OpenAI-compatible endpoint.
type vendor struct {
	baseURL string
	prefix  string
}

// vendors maps provider names to their default endpoints. Gemini's
// OpenAI-compatible surface has no /v1 prefix.
var vendors = map[string]vendor{
	"ollama":     {baseURL: "http://localhost:11434", prefix: "/v1"},
	"lmstudio":   {baseURL: "http://localhost:1234", prefix: "/v1"},
	"openai":     {baseURL: "https://api.openai.com", prefix: "/v1"},
	"openrouter": {baseURL: "https://openrouter.ai/api", prefix: "/v1"},
	"groq":       {baseURL: "https://api.groq.com/openai", prefix: "/v1"},
	"xai":        {baseURL: "https://api.x.ai", prefix: "/v1"},
	"gemini":     {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", prefix: ""},
	"custom":     {prefix: "/v1"},
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("llm provider not specified")
	}
	v, ok := vendors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = v.baseURL
	}
	return newOpenAICompatClient(cfg, v.prefix), nil
}

// Complete sends a single system+user exchange at temperature 0 and
// returns the reply text.
func Complete(ctx context.Context, p Provider, system, user string, maxTokens int) (string, error) {
	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: user})

	resp, err := p.Chat(ctx, ChatRequest{Messages: msgs, Temperature: 0, MaxTokens: maxTokens})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
