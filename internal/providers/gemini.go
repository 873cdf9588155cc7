package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

const GeminiID = "gemini"

// GeminiBackend calls the Gemini API through the genai client.
type GeminiBackend struct {
	cli *genai.Client
}

// NewGeminiBackend creates a Gemini API client.
func NewGeminiBackend(ctx context.Context, apiKey, baseURL string) (*GeminiBackend, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiBackend{cli: cli}, nil
}

func newGeminiBackend(ctx context.Context, cfg Config) (Backend, error) {
	return NewGeminiBackend(ctx, cfg.APIKey, cfg.BaseURL)
}

func (b *GeminiBackend) Identifier() string { return GeminiID }

func (b *GeminiBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := b.cli.Models.GenerateContent(ctx, req.Model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: req.Input}}}},
		cfg,
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, withStatus(apiErr.Code, err)
		}
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: no candidates", ErrEmptyResponse)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	c := &Completion{Text: text.String()}
	if u := resp.UsageMetadata; u != nil {
		in, out := int64(u.PromptTokenCount), int64(u.CandidatesTokenCount)
		c.InputTokens, c.OutputTokens = &in, &out
	}
	return c, nil
}

// ParseModelInfo accepts gemini and gemma identifiers, with or without a
// "google/" or "models/" prefix.
func (b *GeminiBackend) ParseModelInfo(model string) (*models.ModelInfo, bool) {
	name := strings.TrimSpace(model)
	name = strings.TrimPrefix(name, "google/")
	name = strings.TrimPrefix(name, "models/")
	if !strings.HasPrefix(name, "gemini") && !strings.HasPrefix(name, "gemma") {
		return nil, false
	}
	return &models.ModelInfo{
		ID:       name,
		Name:     name,
		Owner:    "google",
		Provider: GeminiID,
		Host:     "generativelanguage.googleapis.com",
	}, true
}
