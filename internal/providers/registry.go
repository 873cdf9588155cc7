package providers

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/anushabukke/peerBench-sub002/internal/metrics"
	"github.com/anushabukke/peerBench-sub002/internal/projectconfig"
)

// Config is passed to a backend factory.
type Config struct {
	// Name is the provider id the backend was configured under.
	Name    string
	APIKey  string
	BaseURL string
	// Extra holds backend-specific settings, decoded by the backend.
	Extra map[string]any
}

// Factory builds a backend from its configuration.
type Factory func(ctx context.Context, cfg Config) (Backend, error)

// Spec describes a registered backend.
type Spec struct {
	ID string
	// APIKeyEnv is the environment variable read for the API key when the
	// project config does not name one. Empty means no key is needed.
	APIKeyEnv string
	New       Factory
}

// Registry maps provider identifiers to backend factories.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: map[string]Spec{}}
}

// DefaultRegistry returns a registry with every built-in backend.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Spec{ID: OpenRouterID, APIKeyEnv: "OPENROUTER_API_KEY", New: newOpenRouterBackend})
	r.Register(Spec{ID: AnthropicID, APIKeyEnv: "ANTHROPIC_API_KEY", New: newAnthropicBackend})
	r.Register(Spec{ID: GeminiID, APIKeyEnv: "GEMINI_API_KEY", New: newGeminiBackend})
	r.Register(Spec{ID: CopilotID, New: newCopilotBackendFactory})
	r.Register(Spec{ID: MockID, New: newMockBackendFactory})
	return r
}

// Register adds or replaces a backend.
func (r *Registry) Register(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.ID] = spec
}

// Lookup returns the backend registered under id.
func (r *Registry) Lookup(id string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[id]
	return s, ok
}

// Identifiers returns the registered identifiers, sorted.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NewBackend builds the backend registered under id.
func (r *Registry) NewBackend(ctx context.Context, id string, cfg Config) (Backend, error) {
	spec, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownProvider, id, r.Identifiers())
	}
	return spec.New(ctx, cfg)
}

// Build creates a Provider for id with connection, limiting and pricing
// settings resolved from the project config. A backend that needs an API key
// fails with ErrMissingAPIKey when none is set.
func (r *Registry) Build(ctx context.Context, id string, cfg *projectconfig.ProjectConfig, m *metrics.Metrics) (*Provider, error) {
	pc := cfg.Provider(id)
	backendID := id
	if pc.Type != "" {
		backendID = pc.Type
	}
	spec, ok := r.Lookup(backendID)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownProvider, backendID, r.Identifiers())
	}

	envName := spec.APIKeyEnv
	if pc.APIKeyEnv != "" {
		envName = pc.APIKeyEnv
	}
	var apiKey string
	if envName != "" {
		apiKey = os.Getenv(envName)
		if apiKey == "" {
			return nil, fmt.Errorf("%s: %w (set %s)", id, ErrMissingAPIKey, envName)
		}
	}

	backend, err := spec.New(ctx, Config{Name: id, APIKey: apiKey, BaseURL: pc.BaseURL, Extra: pc.Extra})
	if err != nil {
		return nil, fmt.Errorf("creating %s backend: %w", id, err)
	}

	pricing := make(map[string]Price, len(cfg.Pricing))
	for model, p := range cfg.Pricing {
		pricing[model] = Price{InputPerMillion: p.InputPerMillion, OutputPerMillion: p.OutputPerMillion}
	}

	return New(backend,
		WithName(id),
		WithRateLimit(pc.RateLimit, time.Duration(pc.RateLimitWindowMs)*time.Millisecond, pc.MaxInFlight),
		WithRetry(pc.MaxRetries, cfg.RetryDelay()),
		WithTimeout(cfg.RequestTimeout()),
		WithPricing(pricing),
		WithMetrics(m),
	), nil
}

// decodeExtra decodes backend-specific settings into out.
func decodeExtra(extra map[string]any, out any) error {
	if len(extra) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(extra)
}
