package recommender

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultModel is the chat model prompted for recommendations.
	DefaultModel = "gpt-4o"

	// DefaultBaseURL is the OpenAI-compatible API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultTimeout bounds one completion request.
	DefaultTimeout = 90 * time.Second

	// MaxRetries is how often the client retries a failed completion.
	MaxRetries = 2
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("completion API key is required")

	// ErrEmptyCompletion is returned when the model sends no choices.
	ErrEmptyCompletion = errors.New("model returned no choices")
)

// Completer sends one system prompt to a chat model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterConfig configures an OpenAICompleter.
type CompleterConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAICompleter implements Completer with the OpenAI chat completions API.
type OpenAICompleter struct {
	client openaigo.Client
	model  string
}

// NewOpenAICompleter creates a completer. A nil httpClient uses one with
// cfg.Timeout.
func NewOpenAICompleter(cfg CompleterConfig, httpClient *http.Client) (*OpenAICompleter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	client := openaigo.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(MaxRetries),
		option.WithRequestTimeout(timeout),
	)
	return &OpenAICompleter{client: client, model: model}, nil
}

// Model returns the configured model name.
func (c *OpenAICompleter) Model() string {
	return c.model
}

// Complete sends prompt as the sole system message.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(c.model),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
