package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

const MockID = "mock"

// MockBackend is a deterministic local backend for dry runs and tests.
type MockBackend struct {
	id string

	mu      sync.Mutex
	calls   int
	replies []string
	respond func(req Request) (*Completion, error)
}

type mockSettings struct {
	ID      string   `mapstructure:"id"`
	Reply   string   `mapstructure:"reply"`
	Replies []string `mapstructure:"replies"`
}

// NewMockBackend returns a backend that answers with replies in turn, or
// echoes the prompt when none are given.
func NewMockBackend(id string, replies ...string) *MockBackend {
	if id == "" {
		id = MockID
	}
	return &MockBackend{id: id, replies: replies}
}

// NewMockBackendFunc returns a backend that delegates to respond.
func NewMockBackendFunc(id string, respond func(req Request) (*Completion, error)) *MockBackend {
	b := NewMockBackend(id)
	b.respond = respond
	return b
}

func newMockBackendFactory(_ context.Context, cfg Config) (Backend, error) {
	var s mockSettings
	if err := decodeExtra(cfg.Extra, &s); err != nil {
		return nil, fmt.Errorf("decoding mock settings: %w", err)
	}
	replies := s.Replies
	if s.Reply != "" {
		replies = append([]string{s.Reply}, replies...)
	}
	id := s.ID
	if id == "" {
		id = cfg.Name
	}
	return NewMockBackend(id, replies...), nil
}

func (b *MockBackend) Identifier() string { return b.id }

// Calls returns how many times Complete was invoked.
func (b *MockBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *MockBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	n := b.calls
	b.calls++
	b.mu.Unlock()

	if b.respond != nil {
		return b.respond(req)
	}

	text := "mock response: " + firstLine(req.Input)
	if len(b.replies) > 0 {
		text = b.replies[n%len(b.replies)]
	}
	in := int64(len(strings.Fields(req.System + " " + req.Input)))
	out := int64(len(strings.Fields(text)))
	return &Completion{Text: text, InputTokens: &in, OutputTokens: &out}, nil
}

func (b *MockBackend) ListModels(context.Context) ([]string, error) {
	return []string{"mock/echo", "mock/fixed"}, nil
}

// ParseModelInfo accepts any identifier; "owner/name" sets the owner.
func (b *MockBackend) ParseModelInfo(model string) (*models.ModelInfo, bool) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, false
	}
	owner, name, ok := strings.Cut(model, "/")
	if !ok {
		owner, name = "mock", model
	}
	return &models.ModelInfo{
		ID:       model,
		Name:     name,
		Owner:    owner,
		Provider: b.id,
		Host:     "localhost",
	}, true
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
