package ai

import (
	"context"
	"fmt"
)

// Format is the output format requested from a provider
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatRuby     Format = "ruby"
)

// ParseFormat validates a --format flag value
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatMarkdown:
		return FormatMarkdown, nil
	case FormatJSON, FormatRuby:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported format %q (expected markdown, json or ruby)", s)
}

// Request is one completion request
type Request struct {
	System    string
	Prompt    string
	Format    Format
	MaxTokens int
}

// Response is a provider's answer
type Response struct {
	Text     string
	Provider ProviderName
	Model    string
	// Handoff is set when the provider wrote the prompt somewhere for a
	// human or editor to pick up instead of answering
	Handoff string
}

// Provider sends a completion request to an LLM backend. Calls block and
// are never retried.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() ProviderName
}

const defaultMaxTokens = 4096

// NewProvider creates the provider described by cfg. appRoot is where the
// cursor provider writes its hand-off file.
func NewProvider(ctx context.Context, cfg *Config, appRoot string) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIProvider(cfg), nil
	case ProviderAnthropic:
		return newAnthropicProvider(cfg), nil
	case ProviderGemini:
		return newGeminiProvider(ctx, cfg)
	case ProviderCursor:
		return newCursorProvider(appRoot), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}
