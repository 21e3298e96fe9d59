package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/storyloom/storyloom/pkg/config"
)

// OpenRouter is the planning LLM adapter. It speaks the OpenAI chat
// completions protocol, so any compatible endpoint works; OpenRouter is the
// default.
type OpenRouter struct {
	client      oai.Client
	model       string
	temperature float64
	maxTokens   int
}

var _ TextGenerator = (*OpenRouter)(nil)

// NewOpenRouter constructs the text adapter. SDK-internal retries are
// disabled; RetryPolicy owns the retry budget.
func NewOpenRouter(cfg *config.TextProviderConfig, apiKey string) (*OpenRouter, error) {
	if apiKey == "" {
		return nil, errors.New("apiKey must not be empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("model must not be empty")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.Timeout,
		}))
	}

	return &OpenRouter{
		client:      oai.NewClient(reqOpts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name implements TextGenerator.
func (p *OpenRouter) Name() string {
	return "openrouter"
}

// GenerateText implements TextGenerator.
func (p *OpenRouter) GenerateText(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", NewError("text", KindBadRequest, "prompt must not be empty", nil)
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
	}
	if p.temperature != 0 {
		params.Temperature = param.NewOpt(p.temperature)
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(p.maxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError("text", err)
	}

	if len(resp.Choices) == 0 {
		return "", NewError("text", KindUpstreamMalformed, "completion has no choices", nil)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", NewError("text", KindUpstreamMalformed, "completion content is empty", nil)
	}
	return content, nil
}

// classifyOpenAIError maps SDK errors onto the provider taxonomy. API errors
// carry a status code; everything else is transport trouble.
func classifyOpenAIError(provider string, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		e := NewStatusError(provider, apiErr.StatusCode, "chat completion rejected")
		e.Cause = err
		return e
	}
	return NewError(provider, KindTransient, "chat completion request failed", err)
}
