// Package orchestration drives forwarding and scoring runs. A unit of work
// produces exactly one output file: a Task×Model pair when forwarding, a
// response file when scoring. Units run concurrently; items within a unit are
// processed in order.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anushabukke/peerBench-sub002/internal/cache"
	"github.com/anushabukke/peerBench-sub002/internal/contentid"
	"github.com/anushabukke/peerBench-sub002/internal/metrics"
	"github.com/anushabukke/peerBench-sub002/internal/models"
	"github.com/anushabukke/peerBench-sub002/internal/providers"
	"github.com/anushabukke/peerBench-sub002/internal/signing"
)

// Target is one model on one provider.
type Target struct {
	Provider *providers.Provider
	Model    string
}

func (t Target) String() string {
	return t.Provider.Identifier() + ":" + t.Model
}

// ForwardConfig parameterizes a forwarding run.
type ForwardConfig struct {
	// SystemPrompt overrides the per-type default. It may use template
	// expressions such as {{.PromptType}} or {{.Vars.lang}}.
	SystemPrompt string
	Vars         map[string]string

	MaxPrompts    int
	PromptFilters []string
	Temperature   *float64
	MaxTokens     int
	Tags          []string

	// Workers bounds concurrent units in ForwardAll. 0 means unbounded.
	Workers int
}

// TaskResult is the outcome of one forwarding unit.
type TaskResult struct {
	Task    *models.Task
	Target  Target
	Model   *models.ModelInfo
	Path    string
	Sidecar *signing.Sidecar
	Items   []models.ItemResult[models.PromptResponse]
}

// Failed returns the number of prompts that produced no response.
func (r *TaskResult) Failed() int {
	return models.CountFailed(r.Items)
}

// settings are shared by Forwarder and ScoringRunner.
type settings struct {
	outputDir string
	runID     string
	cache     *cache.Cache
	signer    *signing.Signer
	sinks     []Sink
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Forwarder or ScoringRunner.
type Option func(*settings)

// WithOutputDir sets where output files are written.
func WithOutputDir(dir string) Option {
	return func(s *settings) { s.outputDir = dir }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(s *settings) { s.runID = id }
}

// WithCache serves repeated forward requests from c.
func WithCache(c *cache.Cache) Option {
	return func(s *settings) { s.cache = c }
}

// WithSigner signs finalized files.
func WithSigner(signer *signing.Signer) Option {
	return func(s *settings) { s.signer = signer }
}

// WithSinks publishes finalized files to sinks.
func WithSinks(sinks ...Sink) Option {
	return func(s *settings) { s.sinks = append(s.sinks, sinks...) }
}

// WithMetrics records finalized files and scores on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithClock replaces time.Now, which names output files.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func newSettings(opts []Option) settings {
	s := settings{
		outputDir: ".",
		runID:     uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Forwarder sends task prompts to models and streams the responses to disk.
type Forwarder struct {
	notifier
	settings
}

// NewForwarder creates a Forwarder writing to the current directory.
func NewForwarder(opts ...Option) *Forwarder {
	return &Forwarder{settings: newSettings(opts)}
}

// RunID identifies every response written by this Forwarder.
func (f *Forwarder) RunID() string {
	return f.runID
}

// ForwardAll runs one unit per task and target. A failed unit never cancels
// its siblings. Results are in task-major order and omit failed units; the
// error is a *BatchError listing them.
func (f *Forwarder) ForwardAll(ctx context.Context, tasks []*models.Task, targets []Target, cfg ForwardConfig) ([]*TaskResult, error) {
	type unit struct {
		task   *models.Task
		target Target
	}
	var units []unit
	for _, task := range tasks {
		for _, target := range targets {
			units = append(units, unit{task: task, target: target})
		}
	}

	results := make([]*TaskResult, len(units))
	failures := make([]*UnitError, len(units))

	var g errgroup.Group
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for i, u := range units {
		g.Go(func() error {
			res, err := f.ProcessTask(ctx, u.task, u.target, cfg)
			if res != nil && (err == nil || res.Sidecar != nil) {
				results[i] = res
			}
			if err != nil {
				name := u.task.FileName + " -> " + u.target.String()
				slog.Error("Forwarding unit failed", "unit", name, "error", err)
				f.notifyProgress(ProgressEvent{EventType: EventUnitFailed, Unit: name, Err: err})
				failures[i] = &UnitError{Unit: name, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	var done []*TaskResult
	for _, r := range results {
		if r != nil {
			done = append(done, r)
		}
	}
	return done, batchError(len(units), failures)
}

// ProcessTask forwards the task's prompts to one model in order and streams
// a response record per successful prompt. Per-prompt failures are logged,
// recorded in the result, and skipped. When ctx is cancelled the remaining
// prompts are skipped, the file is still closed and finalized, and the
// context error is returned with the partial result.
func (f *Forwarder) ProcessTask(ctx context.Context, task *models.Task, target Target, cfg ForwardConfig) (*TaskResult, error) {
	info, ok := target.Provider.ParseModelInfo(target.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not serve %q", providers.ErrUnsupportedModel, target.Provider.Identifier(), target.Model)
	}

	prompts, err := FilterPrompts(task.Prompts, cfg.PromptFilters)
	if err != nil {
		return nil, err
	}
	prompts = limitPrompts(prompts, cfg.MaxPrompts)

	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	w, err := createOutput(f.outputDir, ResponseFileName(task, info, f.now(), cfg.Tags))
	if err != nil {
		return nil, err
	}
	path := w.Path()

	unit := filepath.Base(path)
	result := &TaskResult{Task: task, Target: target, Model: info, Path: path}
	f.notifyProgress(ProgressEvent{EventType: EventUnitStarted, Unit: unit, TotalItems: len(prompts)})

	var interrupted error
	for i := range prompts {
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}
		p := &prompts[i]
		f.notifyProgress(ProgressEvent{EventType: EventPromptStarted, Unit: unit, Item: p.DID, ItemNum: i + 1, TotalItems: len(prompts)})

		item := models.ItemResult[models.PromptResponse]{Index: i, ItemID: p.DID}
		resp, cached, err := f.forwardOne(ctx, task, p, target, info, cfg)
		if err == nil {
			err = w.Append(resp)
		}
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				interrupted = err
				break
			}
			slog.Warn("Prompt failed, skipping", "unit", unit, "prompt", p.DID, "error", err)
			item.Err = err
			f.notifyProgress(ProgressEvent{EventType: EventPromptFailed, Unit: unit, Item: p.DID, ItemNum: i + 1, TotalItems: len(prompts), Err: err})
		} else {
			item.Value = resp
			ev := EventPromptDone
			if cached {
				ev = EventPromptCached
			}
			f.notifyProgress(ProgressEvent{
				EventType:  ev,
				Unit:       unit,
				Item:       p.DID,
				ItemNum:    i + 1,
				TotalItems: len(prompts),
				Duration:   time.Duration(resp.LatencyMs()) * time.Millisecond,
			})
		}
		result.Items = append(result.Items, item)
	}

	if err := w.Close(); err != nil {
		return result, fmt.Errorf("closing %s: %w", path, err)
	}

	sc, err := signing.Finalize(path, f.signer)
	if err != nil {
		return result, err
	}
	result.Sidecar = sc
	f.metrics.ObserveFinalized(kindResponses, sc.Signed())
	f.notifyProgress(ProgressEvent{EventType: EventFileFinalized, Unit: unit, Details: map[string]any{"cid": sc.CID, "signed": sc.Signed()}})

	publish(context.WithoutCancel(ctx), &f.notifier, f.sinks, Artifact{
		Path:      path,
		Kind:      kindResponses,
		RunID:     f.runID,
		Records:   w.Count(),
		Failed:    result.Failed(),
		Provider:  info.Provider,
		Model:     info.ID,
		Sidecar:   sc,
		CreatedAt: f.now(),
	})

	if interrupted != nil {
		return result, interrupted
	}
	f.notifyProgress(ProgressEvent{EventType: EventUnitCompleted, Unit: unit, TotalItems: len(prompts), Details: map[string]any{"failed": result.Failed()}})
	return result, nil
}

func (f *Forwarder) forwardOne(ctx context.Context, task *models.Task, p *models.Prompt, target Target, info *models.ModelInfo, cfg ForwardConfig) (*models.PromptResponse, bool, error) {
	system, err := resolveSystemPrompt(cfg.SystemPrompt, task, p, cfg.Vars)
	if err != nil {
		return nil, false, fmt.Errorf("system prompt: %w", err)
	}

	key := cache.Key(cache.KeyInput{
		Provider:      target.Provider.Identifier(),
		Model:         target.Model,
		SystemPrompt:  system,
		PromptCID:     p.FullPrompt.CID,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		ProviderExtra: info.Host,
	})
	if hit, ok := f.cache.Get(key); ok {
		hit.Prompt = *p
		hit.RunID = f.runID
		hit.Cached = true
		f.metrics.ObserveForward(info.Provider, target.Model, metrics.OutcomeCached, 0)
		return hit, true, nil
	}

	res, err := target.Provider.Forward(ctx, p.FullPrompt.Data, providers.ForwardOptions{
		Model:       target.Model,
		System:      system,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, false, err
	}

	id, err := contentid.OfString(res.Data)
	if err != nil {
		return nil, false, fmt.Errorf("hashing response: %w", err)
	}

	resp := &models.PromptResponse{
		Prompt:           *p,
		Provider:         info.Provider,
		ModelID:          info.ID,
		ModelName:        info.Name,
		ModelOwner:       info.Owner,
		ModelHost:        info.Host,
		RunID:            f.runID,
		Data:             res.Data,
		CID:              id.CID,
		SHA256:           id.SHA256,
		StartedAt:        res.StartedAt.UnixMilli(),
		FinishedAt:       res.CompletedAt.UnixMilli(),
		SystemPrompt:     system,
		InputTokensUsed:  res.InputTokensUsed,
		OutputTokensUsed: res.OutputTokensUsed,
		InputCost:        res.InputCost,
		OutputCost:       res.OutputCost,
	}
	if err := f.cache.Put(key, resp); err != nil {
		slog.Warn("Caching response failed", "prompt", p.DID, "error", err)
	}
	return resp, false, nil
}
