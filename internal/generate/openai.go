package generate

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type openAICompleter struct {
	client openai.Client
}

func newOpenAI(apiKey string, cfg Config) *openAICompleter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return &openAICompleter{client: openai.NewClient(opts...)}
}

func (o *openAICompleter) defaultModel() string { return DefaultOpenAIModel }

func (o *openAICompleter) complete(ctx context.Context, c completion) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if c.System != "" {
		messages = append(messages, openai.SystemMessage(c.System))
	}
	messages = append(messages, openai.UserMessage(c.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.Model),
		Messages: messages,
	}
	if c.Temperature != nil {
		params.Temperature = openai.Float(*c.Temperature)
	}
	if c.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.MaxTokens))
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return completion.Choices[0].Message.Content, nil
}
