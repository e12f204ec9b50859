// Package ai drives checkpoint batches through an OpenAI-compatible chat
// endpoint and maps the model's findings onto document issues.
package ai

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/swscloud/reviewd/internal/config"
	"github.com/swscloud/reviewd/internal/errors"
)

// ChatClient is the completion surface the driver depends on. Tests swap in
// a fake.
type ChatClient interface {
	ChatJSON(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// Client wraps an OpenAI-compatible endpoint (DashScope compatible mode by
// default).
type Client struct {
	inner *openai.Client
	model string
}

// NewClient builds a client from config. The API key must be set.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.AIAPIKey == "" {
		return nil, errors.New(errors.CategoryConfig, errors.SeverityFatal, "AI_API_KEY is required for AI review")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.AIAPIKey)}
	if cfg.AIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.AIBaseURL))
	}
	c := openai.NewClient(opts...)
	return &Client{inner: &c, model: cfg.AIModel}, nil
}

// ChatJSON sends one system+user exchange and returns the raw assistant
// text. With jsonMode the request carries a json_object response format;
// callers retry without it when a provider rejects the hint or returns
// unparseable output.
func (c *Client) ChatJSON(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.2),
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}

	completion, err := c.inner.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryAI, errors.SeverityError, "chat completion failed")
	}
	if len(completion.Choices) == 0 {
		return "", errors.New(errors.CategoryAI, errors.SeverityError, "chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
