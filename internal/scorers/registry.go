package scorers

import (
	"fmt"
	"slices"
	"sync"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

// Registry holds scorers in registration order. Auto-detection probes them in
// that order.
type Registry struct {
	mu      sync.RWMutex
	ordered []Scorer
	byID    map[string]Scorer
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]Scorer{}}
}

// DefaultRegistry registers multiple-choice, exact-match and, when judge is
// non-nil, llm-judge.
func DefaultRegistry(judge Judge, judgeModel string, judgeTemperature *float64) *Registry {
	r := NewRegistry()
	r.Register(NewMultipleChoiceScorer())
	r.Register(NewExactMatchScorer())
	if judge != nil {
		r.Register(NewLLMJudgeScorer(judge, judgeModel, judgeTemperature))
	}
	return r
}

// Register adds s, replacing any scorer with the same identifier in place.
func (r *Registry) Register(s Scorer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.Identifier()
	if _, ok := r.byID[id]; ok {
		for i, existing := range r.ordered {
			if existing.Identifier() == id {
				r.ordered[i] = s
			}
		}
	} else {
		r.ordered = append(r.ordered, s)
	}
	r.byID[id] = s
}

func (r *Registry) Lookup(id string) (Scorer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownScorer, id)
	}
	return s, nil
}

func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.ordered))
	for _, s := range r.ordered {
		ids = append(ids, s.Identifier())
	}
	return ids
}

// Detect returns the first scorer that accepts sample. When the sample's
// prompt declares its scorers only those are probed, in declared order;
// otherwise every registered scorer is probed in registration order.
func (r *Registry) Detect(sample *models.PromptResponse, opts Options) (Scorer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.ordered
	if declared := sample.Prompt.Scorers; len(declared) > 0 {
		candidates = make([]Scorer, 0, len(declared))
		for _, id := range declared {
			if s, ok := r.byID[id]; ok {
				candidates = append(candidates, s)
			}
		}
	}

	for _, s := range candidates {
		if s.CanScore(sample, opts) {
			return s, nil
		}
	}
	return nil, ErrNoScorer
}

// Resolve returns the scorer named id, or auto-detects one when id is empty.
// The chosen scorer must accept sample and, when the prompt declares its
// scorers, be one of them.
func (r *Registry) Resolve(id string, sample *models.PromptResponse, opts Options) (Scorer, error) {
	if id == "" {
		return r.Detect(sample, opts)
	}
	s, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	if declared := sample.Prompt.Scorers; len(declared) > 0 && !slices.Contains(declared, id) {
		return nil, fmt.Errorf("%w: prompt %s accepts only %v, not %s", ErrNoScorer, sample.Prompt.DID, declared, id)
	}
	if !s.CanScore(sample, opts) {
		return nil, fmt.Errorf("%w: %s cannot score prompt type %q", ErrNoScorer, id, sample.Prompt.Type)
	}
	return s, nil
}
