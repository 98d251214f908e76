package autoreply

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkg/errors"
)

const (
	DefaultDeepSeekBaseURL = "https://api.deepseek.com"
	DefaultDeepSeekModel   = "deepseek-chat"
)

type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DeepSeek calls DeepSeek's OpenAI-compatible chat completions API.
type DeepSeek struct {
	client openai.Client
	model  string
}

func NewDeepSeek(cfg DeepSeekConfig, opts ...option.RequestOption) (*DeepSeek, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("deepseek: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDeepSeekBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultDeepSeekModel
	}

	opts = append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(1),
	}, opts...)

	return &DeepSeek{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (d *DeepSeek) Reply(ctx context.Context, req Request) (string, error) {
	if req.Message == "" {
		return "", ErrEmptyMessage
	}

	completion, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(d.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.systemPrompt()),
			openai.UserMessage(req.Message),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "deepseek chat completion")
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return finishReply(completion.Choices[0].Message.Content)
}
