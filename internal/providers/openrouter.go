package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

const (
	OpenRouterID             = "openrouter"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterBackend talks to any OpenAI-compatible chat completions endpoint,
// OpenRouter by default. Model identifiers are "owner/name[:tier]".
type OpenRouterBackend struct {
	client  openai.Client
	baseURL string
}

// NewOpenRouterBackend creates a backend for the given endpoint.
func NewOpenRouterBackend(apiKey, baseURL string) *OpenRouterBackend {
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	return &OpenRouterBackend{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
		baseURL: baseURL,
	}
}

func newOpenRouterBackend(_ context.Context, cfg Config) (Backend, error) {
	return NewOpenRouterBackend(cfg.APIKey, cfg.BaseURL), nil
}

func (b *OpenRouterBackend) Identifier() string { return OpenRouterID }

// CacheKey scopes cached model listings to the endpoint.
func (b *OpenRouterBackend) CacheKey() string { return OpenRouterID + "|" + b.baseURL }

func (b *OpenRouterBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Input))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, withStatus(apiErr.StatusCode, err)
		}
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}

	in, out := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	c := &Completion{Text: resp.Choices[0].Message.Content}
	if in > 0 || out > 0 {
		c.InputTokens, c.OutputTokens = &in, &out
	}
	return c, nil
}

func (b *OpenRouterBackend) ListModels(ctx context.Context) ([]string, error) {
	iter := b.client.Models.ListAutoPaging(ctx)
	var ids []string
	for iter.Next() {
		ids = append(ids, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ParseModelInfo splits "owner/name[:tier]".
func (b *OpenRouterBackend) ParseModelInfo(model string) (*models.ModelInfo, bool) {
	owner, rest, ok := strings.Cut(strings.TrimSpace(model), "/")
	if !ok || owner == "" || rest == "" {
		return nil, false
	}
	name, tier, _ := strings.Cut(rest, ":")
	if name == "" {
		return nil, false
	}
	return &models.ModelInfo{
		ID:       model,
		Name:     name,
		Owner:    owner,
		Provider: OpenRouterID,
		Host:     hostOf(b.baseURL),
		Tier:     tier,
	}, true
}

func hostOf(baseURL string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	host, _, _ := strings.Cut(s, "/")
	return host
}
