package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/zeromicro/go-zero/core/logx"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chatter is the part of the client the trading strategies depend on.
type Chatter interface {
	ChatJSON(ctx context.Context, msgs []Message, target any) error
}

// Client talks to an OpenAI compatible endpoint.
type Client struct {
	config       *Config
	openaiClient *openai.Client
	retryHandler *RetryHandler
}

// ClientOption configures optional client behaviour.
type ClientOption func(*clientOptions)

type clientOptions struct {
	retry      *RetryHandler
	httpClient *http.Client
}

// WithRetryHandler injects a custom retry handler.
func WithRetryHandler(handler *RetryHandler) ClientOption {
	return func(opts *clientOptions) { opts.retry = handler }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(opts *clientOptions) { opts.httpClient = client }
}

// NewClient constructs a client from cfg.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("llm: config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var state clientOptions
	for _, opt := range opts {
		opt(&state)
	}
	retry := state.retry
	if retry == nil {
		retry = NewRetryHandler(RetryConfig{MaxRetries: cfg.MaxRetries})
	}

	oaOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		// Retries are handled by RetryHandler.
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		oaOpts = append(oaOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	if state.httpClient != nil {
		oaOpts = append(oaOpts, option.WithHTTPClient(state.httpClient))
	}
	clientVal := openai.NewClient(oaOpts...)

	cp := *cfg
	return &Client{config: &cp, openaiClient: &clientVal, retryHandler: retry}, nil
}

// Chat sends msgs and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, msgs []Message) (string, error) {
	return c.complete(ctx, msgs, false)
}

// ChatJSON asks for a JSON object answer and decodes it into target.
func (c *Client) ChatJSON(ctx context.Context, msgs []Message, target any) error {
	text, err := c.complete(ctx, msgs, true)
	if err != nil {
		return err
	}
	return DecodeJSON(text, target)
}

func (c *Client) complete(ctx context.Context, msgs []Message, jsonObject bool) (string, error) {
	if len(msgs) == 0 {
		return "", errors.New("llm: request requires at least one message")
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.config.DefaultModel),
		Messages: buildMessageParams(msgs),
	}
	if c.config.Temperature != nil {
		params.Temperature = openai.Float(*c.config.Temperature)
	}
	if jsonObject {
		val := shared.NewResponseFormatJSONObjectParam()
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &val}
	}

	start := time.Now()
	var completion *openai.ChatCompletion
	err := c.retryHandler.Do(ctx, func() error {
		resp, callErr := c.openaiClient.Chat.Completions.New(ctx, params)
		if callErr != nil {
			logx.WithContext(ctx).Errorf("llm: chat completion failed model=%s: %v", c.config.DefaultModel, callErr)
			return callErr
		}
		completion = resp
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("llm: completion returned no choices")
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	logx.WithContext(ctx).Debugf("llm: chat ok model=%s duration_ms=%d prompt_tokens=%d completion_tokens=%d",
		c.config.DefaultModel, time.Since(start).Milliseconds(),
		completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	return text, nil
}

func buildMessageParams(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			result = append(result, openai.SystemMessage(m.Content))
		case "assistant":
			result = append(result, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			result = append(result, openai.UserMessage(m.Content))
		}
	}
	return result
}

// DecodeJSON decodes the first JSON object in text, tolerating markdown
// code fences and surrounding prose.
func DecodeJSON(text string, target any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("llm: no json object in response %q", truncate(text, 120))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), target); err != nil {
		return fmt.Errorf("llm: decode structured response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
