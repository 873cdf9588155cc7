package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	copilot "github.com/github/copilot-sdk/go"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

const CopilotID = "copilot"

// CopilotBackend answers prompts through GitHub Copilot sessions. Each
// Complete call uses a fresh session so answers do not share context.
type CopilotBackend struct {
	client copilotClient

	startOnce sync.Once
	startErr  error
}

// CopilotBackendOptions lets tests replace the SDK client.
type CopilotBackendOptions struct {
	NewCopilotClient func(clientOptions *copilot.ClientOptions) copilotClient
}

// NewCopilotBackend creates the backend. The client is started lazily on the
// first call.
func NewCopilotBackend(options *CopilotBackendOptions) *CopilotBackend {
	clientOptions := &copilot.ClientOptions{
		LogLevel:  "error",
		AutoStart: copilot.Bool(false),
	}

	var client copilotClient
	if options == nil || options.NewCopilotClient == nil {
		client = newCopilotClient(clientOptions)
	} else {
		client = options.NewCopilotClient(clientOptions)
	}
	return &CopilotBackend{client: client}
}

func newCopilotBackendFactory(context.Context, Config) (Backend, error) {
	return NewCopilotBackend(nil), nil
}

func (b *CopilotBackend) Identifier() string { return CopilotID }

func (b *CopilotBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	b.startOnce.Do(func() {
		// AutoStart races when several goroutines hit a fresh client.
		b.startErr = b.client.Start(ctx)
	})
	if b.startErr != nil {
		return nil, fmt.Errorf("copilot failed to start: %w", b.startErr)
	}

	session, err := b.client.CreateSession(ctx, &copilot.SessionConfig{
		Model:               req.Model,
		OnPermissionRequest: denyAllTools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	var parts []string
	var mu sync.Mutex
	unsubscribe := session.On(func(event copilot.SessionEvent) {
		if event.Type == copilot.AssistantMessage && event.Data.Content != nil {
			mu.Lock()
			parts = append(parts, *event.Data.Content)
			mu.Unlock()
		}
	})
	defer unsubscribe()

	unsubscribe = session.On(logSessionEvent)
	defer unsubscribe()

	prompt := req.Input
	if strings.TrimSpace(req.System) != "" {
		prompt = req.System + "\n\n" + req.Input
	}

	final, err := session.SendAndWait(ctx, copilot.MessageOptions{Prompt: prompt})
	if err != nil {
		return nil, err
	}

	text := ""
	if final != nil && final.Data.Content != nil {
		text = *final.Data.Content
	} else {
		mu.Lock()
		text = strings.Join(parts, "")
		mu.Unlock()
	}
	return &Completion{Text: text}, nil
}

// Close stops the Copilot client.
func (b *CopilotBackend) Close() error {
	if err := b.client.Stop(); err != nil {
		slog.Info("failed to stop copilot client", "error", err)
		return err
	}
	return nil
}

// ParseModelInfo derives the model owner from its family name.
func (b *CopilotBackend) ParseModelInfo(model string) (*models.ModelInfo, bool) {
	name := strings.TrimSpace(model)
	if name == "" {
		return nil, false
	}
	return &models.ModelInfo{
		ID:       name,
		Name:     name,
		Owner:    ownerFromFamily(name),
		Provider: CopilotID,
		Host:     "api.githubcopilot.com",
	}, true
}

func ownerFromFamily(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "gpt"), strings.HasPrefix(lower, "o1"),
		strings.HasPrefix(lower, "o3"), strings.HasPrefix(lower, "o4"):
		return "openai"
	case strings.HasPrefix(lower, "claude"):
		return "anthropic"
	case strings.HasPrefix(lower, "gemini"):
		return "google"
	case strings.HasPrefix(lower, "grok"):
		return "xai"
	default:
		return "github"
	}
}

func logSessionEvent(event copilot.SessionEvent) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []any{"type", event.Type}
	attrs = addIf(attrs, "content", event.Data.Content)
	attrs = addIf(attrs, "deltaContent", event.Data.DeltaContent)
	attrs = addIf(attrs, "reasoningText", event.Data.ReasoningText)
	slog.Debug("copilot event", attrs...)
}

func addIf[T any](attrs []any, name string, v *T) []any {
	if v != nil {
		attrs = append(attrs, name, *v)
	}
	return attrs
}

// denyAllTools keeps benchmark answers text-only.
func denyAllTools(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
	return copilot.PermissionRequestResult{Kind: "denied-interactively-by-user"}, nil
}
