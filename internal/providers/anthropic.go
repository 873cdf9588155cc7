package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

const (
	AnthropicID = "anthropic"

	defaultAnthropicMaxTokens = 4096
)

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	client  anthropic.Client
	baseURL string
}

// NewAnthropicBackend creates a backend; baseURL may be empty.
func NewAnthropicBackend(apiKey, baseURL string) *AnthropicBackend {
	opts := []aoption.RequestOption{
		aoption.WithAPIKey(strings.TrimSpace(apiKey)),
		aoption.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, aoption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &AnthropicBackend{client: anthropic.NewClient(opts...), baseURL: baseURL}
}

func newAnthropicBackend(_ context.Context, cfg Config) (Backend, error) {
	return NewAnthropicBackend(cfg.APIKey, cfg.BaseURL), nil
}

func (b *AnthropicBackend) Identifier() string { return AnthropicID }

func (b *AnthropicBackend) CacheKey() string { return AnthropicID + "|" + b.baseURL }

func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	maxTokens := int64(defaultAnthropicMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)),
		},
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, withStatus(apiErr.StatusCode, err)
		}
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	in, out := msg.Usage.InputTokens, msg.Usage.OutputTokens
	return &Completion{Text: text.String(), InputTokens: &in, OutputTokens: &out}, nil
}

func (b *AnthropicBackend) ListModels(ctx context.Context) ([]string, error) {
	iter := b.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
	var ids []string
	for iter.Next() {
		ids = append(ids, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ParseModelInfo accepts Claude model identifiers, with or without an
// "anthropic/" prefix.
func (b *AnthropicBackend) ParseModelInfo(model string) (*models.ModelInfo, bool) {
	name := strings.TrimPrefix(strings.TrimSpace(model), "anthropic/")
	if !strings.HasPrefix(name, "claude") {
		return nil, false
	}
	return &models.ModelInfo{
		ID:       name,
		Name:     name,
		Owner:    "anthropic",
		Provider: AnthropicID,
		Host:     "api.anthropic.com",
	}, true
}
