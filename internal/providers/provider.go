// Package providers forwards prompts to LLM backends under a per-instance
// rate limit with bounded retries.
package providers

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/anushabukke/peerBench-sub002/internal/metrics"
	"github.com/anushabukke/peerBench-sub002/internal/models"
	"github.com/anushabukke/peerBench-sub002/internal/ratelimit"
)

// Request is a single completion attempt sent to a backend.
type Request struct {
	Model       string
	System      string
	Input       string
	Temperature *float64
	MaxTokens   int
}

// Completion is what a backend returns for one attempt.
type Completion struct {
	Text         string
	InputTokens  *int64
	OutputTokens *int64
}

// Backend is one LLM API. Complete performs exactly one attempt; retrying,
// rate limiting and accounting are handled by Provider.
type Backend interface {
	Identifier() string
	Complete(ctx context.Context, req Request) (*Completion, error)
	ParseModelInfo(model string) (*models.ModelInfo, bool)
}

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Closer is implemented by backends holding resources beyond HTTP clients.
type Closer interface {
	Close() error
}

// ForwardOptions parameterizes Forward.
type ForwardOptions struct {
	Model       string
	System      string
	Temperature *float64
	MaxTokens   int
}

// ForwardResponse is the result of a successful Forward. StartedAt and
// CompletedAt bracket the successful attempt only.
type ForwardResponse struct {
	Data             string
	StartedAt        time.Time
	CompletedAt      time.Time
	InputTokensUsed  *int64
	OutputTokensUsed *int64
	InputCost        *float64
	OutputCost       *float64
}

// Price is USD per million tokens.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Provider wraps a Backend with rate limiting, retry and cost accounting.
// Each Provider owns its limiter state.
type Provider struct {
	name       string
	backend    Backend
	limiter    *ratelimit.Limiter
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	pricing    map[string]Price
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Provider.
type Option func(*Provider)

// WithName sets the identifier the provider reports in place of the
// backend's own, so several configured providers may share one backend type.
func WithName(name string) Option {
	return func(p *Provider) {
		p.name = name
	}
}

// WithRateLimit admits at most limit calls per window, and at most
// maxInFlight concurrent calls when maxInFlight > 0.
func WithRateLimit(limit int, window time.Duration, maxInFlight int) Option {
	return func(p *Provider) {
		p.limiter = ratelimit.New(limit, window, ratelimit.WithMaxInFlight(maxInFlight))
	}
}

// WithRetry sets the attempt budget and the base of the exponential backoff.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(p *Provider) {
		p.maxRetries = maxRetries
		p.retryDelay = baseDelay
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithPricing sets per-model prices used to fill cost fields.
func WithPricing(pricing map[string]Price) Option {
	return func(p *Provider) {
		p.pricing = pricing
	}
}

// WithMetrics records forward calls on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

// New wraps backend. Without options a Provider makes 3 attempts and does not
// rate limit.
func New(backend Backend, opts ...Option) *Provider {
	p := &Provider{
		backend:    backend,
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Identifier returns the configured provider name, or the backend
// identifier when the provider was built without one.
func (p *Provider) Identifier() string {
	return cmp.Or(p.name, p.backend.Identifier())
}

// ParseModelInfo normalizes a model identifier. ok is false when the
// provider does not support the model.
func (p *Provider) ParseModelInfo(model string) (*models.ModelInfo, bool) {
	info, ok := p.backend.ParseModelInfo(model)
	if ok && p.name != "" {
		info.Provider = p.name
	}
	return info, ok
}

// Close releases backend resources.
func (p *Provider) Close() error {
	if c, ok := p.backend.(Closer); ok {
		return c.Close()
	}
	return nil
}

// Forward sends input to the model, retrying transient failures. It fails
// fast with CodeUnauthorized on HTTP 401 and returns context errors as-is.
func (p *Provider) Forward(ctx context.Context, input string, opts ForwardOptions) (*ForwardResponse, error) {
	id := p.Identifier()
	startedAt := time.Now()
	req := Request{
		Model:       opts.Model,
		System:      opts.System,
		Input:       input,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			p.metrics.ObserveRetry(id)
			if err := p.sleep(ctx, p.backoff(attempt)); err != nil {
				return nil, err
			}
		}
		attempts++

		resp, err := p.attempt(ctx, req)
		if err == nil {
			p.metrics.ObserveForward(id, opts.Model, metrics.OutcomeSuccess, resp.CompletedAt.Sub(resp.StartedAt))
			p.metrics.AddTokens(id, opts.Model, resp.InputTokensUsed, resp.OutputTokensUsed)
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if IsUnauthorized(err) {
			p.metrics.ObserveForward(id, opts.Model, metrics.OutcomeFailure, 0)
			return nil, &ProviderError{
				Code:      CodeUnauthorized,
				Provider:  id,
				Model:     opts.Model,
				Attempts:  attempts,
				StartedAt: startedAt,
				Cause:     err,
			}
		}

		lastErr = err
		slog.Warn("Forward attempt failed", "provider", id, "model", opts.Model, "attempt", attempts, "error", err)
	}

	p.metrics.ObserveForward(id, opts.Model, metrics.OutcomeFailure, 0)
	if lastErr != nil {
		return nil, &ProviderError{
			Code:      CodeForwardFailed,
			Provider:  id,
			Model:     opts.Model,
			Attempts:  attempts,
			StartedAt: startedAt,
			Cause:     lastErr,
		}
	}
	return nil, &ProviderError{
		Code:      CodeMaxRetriesReached,
		Provider:  id,
		Model:     opts.Model,
		Attempts:  attempts,
		StartedAt: startedAt,
	}
}

func (p *Provider) attempt(ctx context.Context, req Request) (*ForwardResponse, error) {
	release, waited, err := p.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	if waited > 0 {
		p.metrics.ObserveRateLimitWait(p.Identifier(), waited)
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	c, err := p.backend.Complete(callCtx, req)
	if err != nil {
		return nil, err
	}
	if c == nil || strings.TrimSpace(c.Text) == "" {
		return nil, ErrEmptyResponse
	}
	completed := time.Now()

	resp := &ForwardResponse{
		Data:             c.Text,
		StartedAt:        started,
		CompletedAt:      completed,
		InputTokensUsed:  c.InputTokens,
		OutputTokensUsed: c.OutputTokens,
	}
	if price, ok := p.pricing[req.Model]; ok {
		if c.InputTokens != nil {
			v := float64(*c.InputTokens) * price.InputPerMillion / 1e6
			resp.InputCost = &v
		}
		if c.OutputTokens != nil {
			v := float64(*c.OutputTokens) * price.OutputPerMillion / 1e6
			resp.OutputCost = &v
		}
	}
	return resp, nil
}

// maxBackoff caps the delay between attempts.
const maxBackoff = time.Minute

// backoff returns the delay before the given (1-based) retry, doubling from
// retryDelay up to maxBackoff.
func (p *Provider) backoff(retry int) time.Duration {
	if p.retryDelay <= 0 {
		return 0
	}
	d := p.retryDelay
	for i := 1; i < retry; i++ {
		if d >= maxBackoff/2 {
			return maxBackoff
		}
		d *= 2
	}
	return min(d, maxBackoff)
}

// catalog caches model listings per provider endpoint.
var catalog = expirable.NewLRU[string, []models.ModelInfo](32, nil, 15*time.Minute)

// ListModels returns the models the backend offers, normalized through
// ParseModelInfo. Listings are cached for a few minutes.
func (p *Provider) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	lister, ok := p.backend.(ModelLister)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.Identifier(), errors.ErrUnsupported)
	}

	key := p.Identifier()
	if k, ok := p.backend.(interface{ CacheKey() string }); ok {
		key += "|" + k.CacheKey()
	}
	if cached, ok := catalog.Get(key); ok {
		return cached, nil
	}

	ids, err := lister.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s models: %w", p.Identifier(), err)
	}
	out := make([]models.ModelInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := p.ParseModelInfo(id); ok {
			out = append(out, *info)
		}
	}
	catalog.Add(key, out)
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
