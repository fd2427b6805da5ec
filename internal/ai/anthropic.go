package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
)

type anthropicProvider struct {
	client *anthropic.Client
	model  string
}

func newAnthropicProvider(cfg *Config) *anthropicProvider {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
	}
}

func (p *anthropicProvider) Name() ProviderName {
	return ProviderAnthropic
}

// Complete calls the messages endpoint
func (p *anthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	msgReq := anthropic.MessagesRequest{
		Model: anthropic.Model(p.model),
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.Prompt)},
		}},
		MaxTokens: maxTokens(req),
	}
	if req.System != "" {
		msgReq.MultiSystem = []anthropic.MessageSystemPart{{Type: "text", Text: req.System}}
	}

	resp, err := p.client.CreateMessages(ctx, msgReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			text.WriteString(*block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from anthropic")
	}

	return &Response{
		Text:     text.String(),
		Provider: ProviderAnthropic,
		Model:    p.model,
	}, nil
}
