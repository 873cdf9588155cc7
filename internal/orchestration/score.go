package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/anushabukke/peerBench-sub002/internal/jsonstream"
	"github.com/anushabukke/peerBench-sub002/internal/metrics"
	"github.com/anushabukke/peerBench-sub002/internal/models"
	"github.com/anushabukke/peerBench-sub002/internal/scorers"
	"github.com/anushabukke/peerBench-sub002/internal/signing"
)

// ScoreConfig parameterizes a scoring run.
type ScoreConfig struct {
	// ScorerID selects a scorer; empty auto-detects one per file.
	ScorerID string
	Params   map[string]any

	// Against is a second response file. Its responses are paired with the
	// scored ones by prompt DID and passed to pairwise scorers.
	Against string

	Tags    []string
	Workers int
}

// ScoreResult is the outcome of scoring one response file.
type ScoreResult struct {
	Source  string
	Path    string
	Scorer  string
	Sidecar *signing.Sidecar
	Items   []models.ItemResult[models.PromptScore]
}

// Failed returns the number of responses that produced no score.
func (r *ScoreResult) Failed() int {
	return models.CountFailed(r.Items)
}

// ScoringRunner grades response files and streams score files to disk.
type ScoringRunner struct {
	notifier
	settings

	registry *scorers.Registry
}

// NewScoringRunner creates a runner that resolves scorers from registry.
func NewScoringRunner(registry *scorers.Registry, opts ...Option) *ScoringRunner {
	return &ScoringRunner{settings: newSettings(opts), registry: registry}
}

// ScoreFiles scores each response file as its own unit. A file that fails,
// for example because no scorer accepts it, does not stop the others.
func (r *ScoringRunner) ScoreFiles(ctx context.Context, paths []string, cfg ScoreConfig) ([]*ScoreResult, error) {
	var pairs map[string]*models.PromptResponse
	if cfg.Against != "" {
		var err error
		if pairs, err = loadPairs(cfg.Against); err != nil {
			return nil, err
		}
	}

	results := make([]*ScoreResult, len(paths))
	failures := make([]*UnitError, len(paths))

	var g errgroup.Group
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for i, path := range paths {
		g.Go(func() error {
			res, err := r.processFile(ctx, path, cfg, pairs)
			if res != nil && res.Sidecar != nil {
				results[i] = res
			}
			if err != nil {
				slog.Error("Scoring unit failed", "file", path, "error", err)
				r.notifyProgress(ProgressEvent{EventType: EventUnitFailed, Unit: path, Err: err})
				failures[i] = &UnitError{Unit: path, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	var done []*ScoreResult
	for _, res := range results {
		if res != nil {
			done = append(done, res)
		}
	}
	return done, batchError(len(paths), failures)
}

// ProcessResponseFile reads a response file and scores it.
func (r *ScoringRunner) ProcessResponseFile(ctx context.Context, path string, cfg ScoreConfig) (*ScoreResult, error) {
	var pairs map[string]*models.PromptResponse
	if cfg.Against != "" {
		var err error
		if pairs, err = loadPairs(cfg.Against); err != nil {
			return nil, err
		}
	}
	return r.processFile(ctx, path, cfg, pairs)
}

func (r *ScoringRunner) processFile(ctx context.Context, path string, cfg ScoreConfig, pairs map[string]*models.PromptResponse) (*ScoreResult, error) {
	responses, err := jsonstream.ReadAll[models.PromptResponse](path)
	if err != nil {
		return nil, fmt.Errorf("reading responses: %w", err)
	}
	return r.ProcessResponses(ctx, path, responses, cfg, pairs)
}

// ProcessResponses scores responses read from source and writes one score
// record per response to the output directory. The scorer is resolved once
// against the first response. pairs maps prompt DID to the
// opposing response for pairwise scoring and may be nil.
func (r *ScoringRunner) ProcessResponses(ctx context.Context, source string, responses []models.PromptResponse, cfg ScoreConfig, pairs map[string]*models.PromptResponse) (*ScoreResult, error) {
	if len(responses) == 0 {
		return nil, ErrNoResponses
	}

	sample := &responses[0]
	scorer, err := r.registry.Resolve(cfg.ScorerID, sample, r.options(cfg, pairs, sample))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	w, err := createOutput(r.outputDir, ScoreFileName(source, scorer.Identifier(), r.now(), cfg.Tags))
	if err != nil {
		return nil, err
	}
	path := w.Path()

	unit := filepath.Base(path)
	result := &ScoreResult{Source: source, Path: path, Scorer: scorer.Identifier()}
	slog.Debug("Scoring responses", "source", source, "scorer", scorer.Identifier(), "count", len(responses))
	r.notifyProgress(ProgressEvent{EventType: EventUnitStarted, Unit: unit, TotalItems: len(responses), Details: map[string]any{"scorer": scorer.Identifier()}})

	var interrupted error
	for i := range responses {
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}
		resp := &responses[i]
		item := models.ItemResult[models.PromptScore]{Index: i, ItemID: resp.Prompt.DID}

		score, err := r.scoreOne(ctx, scorer, resp, r.options(cfg, pairs, resp))
		if err == nil {
			err = w.Append(score)
		}
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				interrupted = err
				break
			}
			slog.Warn("Scoring response failed, skipping", "unit", unit, "prompt", resp.Prompt.DID, "error", err)
			r.metrics.ObserveScore(scorer.Identifier(), metrics.OutcomeFailure, 0)
			item.Err = err
			r.notifyProgress(ProgressEvent{EventType: EventScoreFailed, Unit: unit, Item: resp.Prompt.DID, ItemNum: i + 1, TotalItems: len(responses), Err: err})
		} else {
			r.metrics.ObserveScore(scorer.Identifier(), metrics.OutcomeSuccess, score.Score)
			item.Value = score
			r.notifyProgress(ProgressEvent{
				EventType:  EventScoreDone,
				Unit:       unit,
				Item:       resp.Prompt.DID,
				ItemNum:    i + 1,
				TotalItems: len(responses),
				Details:    map[string]any{"score": score.Score},
			})
		}
		result.Items = append(result.Items, item)
	}

	if err := w.Close(); err != nil {
		return result, fmt.Errorf("closing %s: %w", path, err)
	}

	sc, err := signing.Finalize(path, r.signer)
	if err != nil {
		return result, err
	}
	result.Sidecar = sc
	r.metrics.ObserveFinalized(kindScores, sc.Signed())
	r.notifyProgress(ProgressEvent{EventType: EventFileFinalized, Unit: unit, Details: map[string]any{"cid": sc.CID, "signed": sc.Signed()}})

	publish(context.WithoutCancel(ctx), &r.notifier, r.sinks, Artifact{
		Path:      path,
		Kind:      kindScores,
		RunID:     r.runID,
		Records:   w.Count(),
		Failed:    result.Failed(),
		Provider:  sample.Provider,
		Model:     sample.ModelID,
		Scorer:    scorer.Identifier(),
		Sidecar:   sc,
		CreatedAt: r.now(),
	})

	if interrupted != nil {
		return result, interrupted
	}
	r.notifyProgress(ProgressEvent{EventType: EventUnitCompleted, Unit: unit, TotalItems: len(responses), Details: map[string]any{"failed": result.Failed()}})
	return result, nil
}

func (r *ScoringRunner) options(cfg ScoreConfig, pairs map[string]*models.PromptResponse, resp *models.PromptResponse) scorers.Options {
	return scorers.Options{Params: cfg.Params, ResponseB: pairs[resp.Prompt.DID]}
}

func (r *ScoringRunner) scoreOne(ctx context.Context, scorer scorers.Scorer, resp *models.PromptResponse, opts scorers.Options) (*models.PromptScore, error) {
	score, err := scorer.ScoreOne(ctx, resp, opts)
	if err != nil {
		return nil, err
	}
	if score == nil {
		return nil, scorers.ErrNotEligible
	}
	return score, nil
}

// loadPairs indexes a response file by prompt DID. When a prompt appears more
// than once the first response wins.
func loadPairs(path string) (map[string]*models.PromptResponse, error) {
	responses, err := jsonstream.ReadAll[models.PromptResponse](path)
	if err != nil {
		return nil, fmt.Errorf("reading paired responses: %w", err)
	}
	pairs := make(map[string]*models.PromptResponse, len(responses))
	for i := range responses {
		did := responses[i].Prompt.DID
		if _, ok := pairs[did]; !ok {
			pairs[did] = &responses[i]
		}
	}
	return pairs, nil
}
