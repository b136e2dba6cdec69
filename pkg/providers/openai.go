package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-3.5-turbo"

// OpenAIConfig configures the chat-completion adapter.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int

	// MockResponse, when set, is returned for every query and no request is
	// made.
	MockResponse string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAIQuerier answers ask_chatgpt steps with one chat completion.
type OpenAIQuerier struct {
	client openai.Client
	model  string
	mock   string
	log    *slog.Logger
}

// NewOpenAIQuerier creates the adapter. An empty API key is an error unless
// a mock response is configured.
func NewOpenAIQuerier(cfg OpenAIConfig) (*OpenAIQuerier, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	q := &OpenAIQuerier{model: model, mock: cfg.MockResponse, log: log}
	if q.mock != "" {
		log.Info("llm: mock response configured, OpenAI will not be called")
		return q, nil
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key is not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	q.client = openai.NewClient(opts...)
	log.Info("llm: OpenAI provider configured", "chat_model", model)
	return q, nil
}

// Query sends the system and user prompts and returns the first choice.
func (q *OpenAIQuerier) Query(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if q.mock != "" {
		return q.mock, nil
	}
	q.log.Debug("llm: sending chat completion request", "model", q.model)
	resp, err := q.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(q.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			q.log.Error("llm: chat completion failed", "status", apiErr.StatusCode, "error", err)
			return "", fmt.Errorf("chat completion: status %d: %w", apiErr.StatusCode, err)
		}
		q.log.Error("llm: chat completion failed", "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	q.log.Debug("llm: chat completion succeeded", "tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}
