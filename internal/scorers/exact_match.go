package scorers

import (
	"context"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

// ExactMatchParams are the exact-match scorer settings.
type ExactMatchParams struct {
	// PartialCredit scores mismatches by normalized edit-distance similarity
	// instead of 0.
	PartialCredit bool `mapstructure:"partial_credit"`
	CaseSensitive bool `mapstructure:"case_sensitive"`
}

type exactMatchScorer struct{}

// NewExactMatchScorer returns the algorithmic scorer for prompts whose answer
// is a literal string.
func NewExactMatchScorer() Scorer {
	return &exactMatchScorer{}
}

func (s *exactMatchScorer) Identifier() string            { return ExactMatchID }
func (s *exactMatchScorer) Method() models.ScoringMethod { return models.ScoringMethodAlgo }

func (s *exactMatchScorer) CanScore(resp *models.PromptResponse, _ Options) bool {
	if resp == nil || strings.TrimSpace(resp.Data) == "" || strings.TrimSpace(resp.Prompt.Answer) == "" {
		return false
	}
	switch resp.Prompt.Type {
	case models.PromptTypeOrderSentences, models.PromptTypeTextReplacement,
		models.PromptTypeTypo, models.PromptTypeOpenEnded:
		return true
	}
	return false
}

func (s *exactMatchScorer) ScoreOne(_ context.Context, resp *models.PromptResponse, opts Options) (*models.PromptScore, error) {
	if !s.CanScore(resp, opts) {
		return nil, ErrNotEligible
	}

	var params ExactMatchParams
	if err := decodeParams(opts.Params, &params); err != nil {
		return nil, err
	}

	got := normalizeAnswer(resp.Data, params.CaseSensitive)
	want := normalizeAnswer(resp.Prompt.Answer, params.CaseSensitive)
	similarity := levenshtein.Similarity(got, want, nil)

	score := 0.0
	switch {
	case got == want:
		score = 1
	case params.PartialCredit:
		score = clamp(similarity, 0, 1)
	}

	out := newScore(s, resp, score)
	out.ScoreMetadata["similarity"] = similarity
	out.ScoreMetadata["normalizedResponse"] = got
	out.ScoreMetadata["normalizedAnswer"] = want
	out.ScoreMetadata["partialCredit"] = params.PartialCredit
	if score == 1 {
		out.Explanation = "response matches the expected answer"
	} else {
		out.Explanation = "response differs from the expected answer"
	}
	return out, nil
}

// normalizeAnswer collapses whitespace and strips wrapping quotes or code
// fences.
func normalizeAnswer(s string, caseSensitive bool) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}
