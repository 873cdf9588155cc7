package scorers

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

// NoAnswerMarker is what models are told to emit when they refuse to pick.
const NoAnswerMarker = "<!NO ANSWER!>"

type answerPattern struct {
	name string
	re   *regexp.Regexp
}

type multipleChoiceScorer struct{}

// NewMultipleChoiceScorer returns the deterministic answer-extraction scorer.
func NewMultipleChoiceScorer() Scorer {
	return &multipleChoiceScorer{}
}

func (s *multipleChoiceScorer) Identifier() string            { return MultipleChoiceID }
func (s *multipleChoiceScorer) Method() models.ScoringMethod { return models.ScoringMethodAlgo }

func (s *multipleChoiceScorer) CanScore(resp *models.PromptResponse, _ Options) bool {
	return resp != nil && strings.TrimSpace(resp.Data) != "" && resp.Prompt.HasChoices()
}

func (s *multipleChoiceScorer) ScoreOne(_ context.Context, resp *models.PromptResponse, opts Options) (*models.PromptScore, error) {
	if !s.CanScore(resp, opts) {
		return nil, ErrNotEligible
	}

	prompt := &resp.Prompt
	extracted, matched := ExtractAnswer(resp.Data, prompt.Options, prompt.Answer)
	resolved := resolveKey(extracted, prompt.Options)

	score := 0.0
	if resolved != "" && resolved == prompt.AnswerKey {
		score = 1
	}

	out := newScore(s, resp, score)
	out.ScoreMetadata["extractedAnswer"] = extracted
	out.ScoreMetadata["resolvedKey"] = resolved
	out.ScoreMetadata["answerKey"] = prompt.AnswerKey
	out.ScoreMetadata["matchedPattern"] = matched

	switch {
	case matched == "":
		out.Explanation = "no answer could be extracted"
	case matched == "no-answer":
		out.Explanation = "model declined to answer"
	default:
		out.Explanation = fmt.Sprintf("extracted %q via %s, expected %s", extracted, matched, prompt.AnswerKey)
	}
	return out, nil
}

// ExtractAnswer applies the answer patterns from most to least specific. The
// first pattern with any match wins and its last match is returned, so later
// statements override earlier hedging. The no-answer marker matches with an
// empty answer.
func ExtractAnswer(text string, options map[string]string, answer string) (extracted, pattern string) {
	for _, p := range answerPatterns(options, answer) {
		matches := p.re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		last := matches[len(matches)-1]
		if len(last) < 2 {
			return "", p.name
		}
		return strings.TrimSpace(last[1]), p.name
	}
	return "", ""
}

func answerPatterns(options map[string]string, answer string) []answerPattern {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	// longer keys first so "AA" is not read as "A"
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	k := strings.Join(keys, "|")

	patterns := []answerPattern{
		{"no-answer", regexp.MustCompile(regexp.QuoteMeta(NoAnswerMarker))},
	}

	if a := strings.TrimSpace(answer); a != "" {
		q := regexp.QuoteMeta(a)
		patterns = append(patterns,
			answerPattern{"boxed-answer-text", regexp.MustCompile(`(?i)\\boxed\{\s*(?:\\text\{\s*)?(` + q + `)\s*\}?\s*\}`)},
			answerPattern{"answer-text", regexp.MustCompile(`(?is)^\s*(` + q + `)\s*\.?\s*$`)},
			answerPattern{"bold-answer-text", regexp.MustCompile(`(?i)\*\*\s*(` + q + `)\s*\.?\s*\*\*`)},
		)
	}

	if k == "" {
		return patterns
	}
	return append(patterns,
		answerPattern{"boxed-key", regexp.MustCompile(`\\boxed\{\s*(?:\\text\{\s*)?\(?(` + k + `)\)?\s*\}?\s*\}`)},
		answerPattern{"answer-is", regexp.MustCompile(`(?i:\banswer(?:\s+is|\s*:))\s*:?\s*\**\s*\(?\s*(` + k + `)\b`)},
		answerPattern{"bold-key", regexp.MustCompile(`\*\*\s*\(?(` + k + `)\)?[.:]?\s*\*\*`)},
		answerPattern{"key-colon", regexp.MustCompile(`\b(` + k + `):\s*\S`)},
		answerPattern{"key-paren-text", regexp.MustCompile(`\b(` + k + `)\)\s*\S`)},
		answerPattern{"key-paren", regexp.MustCompile(`\b(` + k + `)\)`)},
	)
}

// resolveKey maps an extracted token to an option key, either directly or by
// matching option text.
func resolveKey(extracted string, options map[string]string) string {
	if extracted == "" {
		return ""
	}
	if _, ok := options[extracted]; ok {
		return extracted
	}
	want := normalizeOption(extracted)
	for key, text := range options {
		if normalizeOption(text) == want {
			return key
		}
	}
	return ""
}

func normalizeOption(s string) string {
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
