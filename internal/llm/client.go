// Package llm talks to OpenAI-compatible chat APIs to turn audit findings
// into prioritized corrective actions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultTimeout = 120 * time.Second
	DefaultModel   = ModelGPT4oMini

	adviceMaxTokens   = 2048
	adviceTemperature = 0.1
)

// Models known to follow the JSON-array instructions well
const (
	ModelClaude35Sonnet = "anthropic/claude-3.5-sonnet"
	ModelClaude3Haiku   = "anthropic/claude-3-haiku"
	ModelGPT4oMini      = "openai/gpt-4o-mini"
	ModelGPT4o          = "openai/gpt-4o"
)

var errNoChoices = errors.New("no choices in response")

// Client sends advisory prompts to an OpenAI-compatible endpoint
type Client struct {
	api   openai.Client
	model string
}

// ClientOption tunes a Client before it is built
type ClientOption func(*clientSettings)

type clientSettings struct {
	baseURL string
	timeout time.Duration
	model   string
	retries int
}

func (s clientSettings) requestOptions(apiKey string) []option.RequestOption {
	return []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(s.baseURL),
		option.WithHTTPClient(&http.Client{Timeout: s.timeout}),
		option.WithMaxRetries(s.retries),
		option.WithHeader("HTTP-Referer", "https://github.com/rezonia/nfe-auditor"),
		option.WithHeader("X-Title", "NF-e Auditor"),
	}
}

// WithBaseURL points the client at another provider; empty keeps the default
func WithBaseURL(url string) ClientOption {
	return func(s *clientSettings) {
		if url != "" {
			s.baseURL = url
		}
	}
}

// WithTimeout bounds each HTTP exchange
func WithTimeout(timeout time.Duration) ClientOption {
	return func(s *clientSettings) {
		s.timeout = timeout
	}
}

// WithDefaultModel picks the model used when a call names none
func WithDefaultModel(model string) ClientOption {
	return func(s *clientSettings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithMaxRetries sets how often failed requests are retried
func WithMaxRetries(n int) ClientOption {
	return func(s *clientSettings) {
		s.retries = n
	}
}

// NewClient builds a client authenticated with apiKey
func NewClient(apiKey string, opts ...ClientOption) *Client {
	s := clientSettings{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		model:   DefaultModel,
		retries: 2,
	}
	for _, opt := range opts {
		opt(&s)
	}

	return &Client{
		api:   openai.NewClient(s.requestOptions(apiKey)...),
		model: s.model,
	}
}

// ChatText sends an optional system prompt plus one user prompt and returns
// the first reply. An empty model falls back to the client default.
func (c *Client) ChatText(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{
		Model:       model,
		MaxTokens:   param.NewOpt[int64](adviceMaxTokens),
		Temperature: param.NewOpt[float64](adviceTemperature),
	}
	if systemPrompt != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(systemPrompt))
	}
	params.Messages = append(params.Messages, openai.UserMessage(userPrompt))

	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errNoChoices
	}

	return completion.Choices[0].Message.Content, nil
}

// ExtractJSON pulls the JSON payload out of a model reply. Fenced blocks win,
// then the outermost array or object; anything else is returned trimmed.
func ExtractJSON(reply string) string {
	if body, ok := fenced(reply, "```json"); ok {
		return body
	}
	if body, ok := fenced(reply, "```"); ok {
		return body
	}

	reply = strings.TrimSpace(reply)
	open := strings.IndexAny(reply, "[{")
	if open == -1 {
		return reply
	}
	closer := "}"
	if reply[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(reply, closer); end > open {
		return reply[open : end+1]
	}
	return reply
}

// fenced returns the body of the first code block opened by marker. The rest
// of the opening line (a language tag) is skipped.
func fenced(reply, marker string) (string, bool) {
	start := strings.Index(reply, marker)
	if start == -1 {
		return "", false
	}
	start += len(marker)
	if nl := strings.IndexByte(reply[start:], '\n'); nl != -1 {
		start += nl + 1
	}
	end := strings.Index(reply[start:], "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(reply[start : start+end]), true
}
