package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces text from a chat transcript.
type Generator interface {
	// Complete returns the whole response at once.
	Complete(ctx context.Context, messages []ChatMessage) (string, error)

	// StreamComplete calls onChunk for every token in order and returns the
	// accumulated text. Errors raised before any token was received are
	// *StreamStartError. Returning an error from onChunk stops the stream.
	StreamComplete(ctx context.Context, messages []ChatMessage, onChunk func(chunk string) error) (string, error)
}

// Embedder turns one text into one vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// StreamStartError reports that the backend never started streaming.
type StreamStartError struct {
	Err error
}

func (e *StreamStartError) Error() string {
	return "llm stream not started: " + e.Err.Error()
}

func (e *StreamStartError) Unwrap() error {
	return e.Err
}

type GeneratorConfig struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type EmbedderConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// NewGenerator builds the generation backend named by cfg.Provider.
func NewGenerator(cfg GeneratorConfig) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai generator requires an api key")
		}
		return NewOpenAICompatibleClient(ClientConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			ChatModel: cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		}), nil
	case ProviderOllama:
		return NewOllamaClient(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			ChatModel: cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewEmbedder builds the embedding backend named by cfg.Provider.
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedder requires an api key")
		}
		return NewOpenAICompatibleClient(ClientConfig{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			EmbeddingModel: cfg.Model,
		}), nil
	case ProviderOllama:
		return NewOllamaClient(OllamaConfig{
			BaseURL:        cfg.BaseURL,
			EmbeddingModel: cfg.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
