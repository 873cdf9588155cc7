package scorers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

const (
	MultipleChoiceID = "multiple-choice"
	ExactMatchID     = "exact-match"
	LLMJudgeID       = "llm-judge"
)

var (
	ErrNoScorer      = errors.New("no scorer found")
	ErrUnknownScorer = errors.New("unknown scorer")
	ErrNotEligible   = errors.New("response is not eligible for this scorer")
)

// Scorer grades a single response.
type Scorer interface {
	// Identifier is the registry key, also written to each score record.
	Identifier() string

	Method() models.ScoringMethod

	// CanScore is a cheap eligibility check with no side effects.
	CanScore(resp *models.PromptResponse, opts Options) bool

	// ScoreOne grades resp. It returns ErrNotEligible when CanScore is false.
	ScoreOne(ctx context.Context, resp *models.PromptResponse, opts Options) (*models.PromptScore, error)
}

// Options carries per-run scorer parameters.
type Options struct {
	// Params is decoded by each scorer into its own settings struct.
	Params map[string]any

	// ResponseB is the opponent for pairwise judging.
	ResponseB *models.PromptResponse
}

func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid scorer parameters: %w", err)
	}
	return nil
}

func newScore(s Scorer, resp *models.PromptResponse, score float64) *models.PromptScore {
	return &models.PromptScore{
		PromptResponse: *resp,
		ScoreDID:       uuid.NewString(),
		Score:          score,
		Method:         s.Method(),
		Scorer:         s.Identifier(),
		ScoreMetadata:  map[string]any{},
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
