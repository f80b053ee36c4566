package generate

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicCompleter struct {
	client anthropic.Client
}

func newAnthropic(apiKey string, cfg Config) *anthropicCompleter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.AnthropicBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.AnthropicBaseURL))
	}
	return &anthropicCompleter{client: anthropic.NewClient(opts...)}
}

func (a *anthropicCompleter) defaultModel() string { return DefaultAnthropicModel }

func (a *anthropicCompleter) complete(ctx context.Context, c completion) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.Model),
		MaxTokens: int64(c.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(c.Prompt)),
		},
	}
	if c.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.System}}
	}
	if c.Temperature != nil {
		params.Temperature = anthropic.Float(*c.Temperature)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
