package scorers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/anushabukke/peerBench-sub002/internal/models"
	"github.com/anushabukke/peerBench-sub002/internal/providers"
)

const (
	ModePointwise = "pointwise"
	ModePairwise  = "pairwise"

	defaultScaleMin = 0
	defaultScaleMax = 5
)

// Judge is the model the llm-judge scorer asks. [*providers.Provider]
// satisfies it.
type Judge interface {
	Identifier() string
	ParseModelInfo(model string) (*models.ModelInfo, bool)
	Forward(ctx context.Context, input string, opts providers.ForwardOptions) (*providers.ForwardResponse, error)
}

// Criterion is one rubric line.
type Criterion struct {
	Name        string  `mapstructure:"name" yaml:"name"`
	Description string  `mapstructure:"description" yaml:"description"`
	Weight      float64 `mapstructure:"weight" yaml:"weight"`
	ScaleMin    int     `mapstructure:"scale_min" yaml:"scale_min"`
	ScaleMax    int     `mapstructure:"scale_max" yaml:"scale_max"`
}

// JudgeParams are the llm-judge settings.
type JudgeParams struct {
	Mode          string      `mapstructure:"mode" yaml:"mode"`
	Criteria      []Criterion `mapstructure:"criteria" yaml:"criteria"`
	SwapPositions bool        `mapstructure:"swap_positions" yaml:"swap_positions"`
	Instructions  string      `mapstructure:"instructions" yaml:"instructions"`
}

var defaultCriteria = []Criterion{
	{Name: "correctness", Description: "Is the response factually and logically correct?", Weight: 0.5},
	{Name: "completeness", Description: "Does it address every part of the question?", Weight: 0.3},
	{Name: "clarity", Description: "Is it clear and well organized?", Weight: 0.2},
}

type llmJudgeScorer struct {
	judge       Judge
	model       string
	temperature *float64
}

// NewLLMJudgeScorer returns a scorer that asks judge (running model) to grade
// responses.
func NewLLMJudgeScorer(judge Judge, model string, temperature *float64) Scorer {
	return &llmJudgeScorer{judge: judge, model: model, temperature: temperature}
}

func (s *llmJudgeScorer) Identifier() string            { return LLMJudgeID }
func (s *llmJudgeScorer) Method() models.ScoringMethod { return models.ScoringMethodAI }

func (s *llmJudgeScorer) CanScore(resp *models.PromptResponse, opts Options) bool {
	if resp == nil || strings.TrimSpace(resp.Data) == "" {
		return false
	}
	if resp.Prompt.Type == models.PromptTypeMultipleChoice && !resp.Prompt.HasChoices() {
		return false
	}
	var params JudgeParams
	if err := decodeParams(opts.Params, &params); err != nil {
		return false
	}
	if params.Mode == ModePairwise {
		return opts.ResponseB != nil && strings.TrimSpace(opts.ResponseB.Data) != ""
	}
	return true
}

func (s *llmJudgeScorer) ScoreOne(ctx context.Context, resp *models.PromptResponse, opts Options) (*models.PromptScore, error) {
	if !s.CanScore(resp, opts) {
		return nil, ErrNotEligible
	}

	var params JudgeParams
	if err := decodeParams(opts.Params, &params); err != nil {
		return nil, err
	}
	criteria := normalizeCriteria(params.Criteria)

	switch params.Mode {
	case "", ModePointwise:
		return s.scorePointwise(ctx, resp, params, criteria)
	case ModePairwise:
		return s.scorePairwise(ctx, resp, opts.ResponseB, params, criteria)
	default:
		return nil, fmt.Errorf("unknown judge mode %q", params.Mode)
	}
}

// Judges do not always honor the requested number types, so scores are
// decoded loosely and read with judgeNumber.
type pointwiseVerdict struct {
	Scores      map[string]any `json:"scores"`
	Overall     any            `json:"overall"`
	Verdict     string         `json:"verdict"`
	Explanation string         `json:"explanation"`
}

func (s *llmJudgeScorer) scorePointwise(ctx context.Context, resp *models.PromptResponse, params JudgeParams, criteria []Criterion) (*models.PromptScore, error) {
	acct := s.newAccounting()

	raw, err := s.ask(ctx, acct, pointwisePrompt(resp, params.Instructions, criteria))
	if err != nil {
		return nil, err
	}

	var v pointwiseVerdict
	if err := extractJSON(raw, &v); err != nil {
		return nil, err
	}

	var stated *float64
	if n, ok := judgeNumber(v.Overall); ok {
		stated = &n
	}
	scores := make(map[string]float64, len(v.Scores))
	for name, raw := range v.Scores {
		if n, ok := judgeNumber(raw); ok {
			scores[name] = n
		}
	}

	overall, recomputed, err := resolveOverall(stated, scores, criteria)
	if err != nil {
		return nil, err
	}

	out := newScore(s, resp, clamp(overall/100, 0, 1))
	out.Explanation = v.Explanation
	out.ScorerAI = acct.info
	out.ScoreMetadata["mode"] = ModePointwise
	out.ScoreMetadata["overall"] = overall
	out.ScoreMetadata["overallRecomputed"] = recomputed
	out.ScoreMetadata["criteriaScores"] = scores
	out.ScoreMetadata["verdict"] = v.Verdict
	return out, nil
}

type pairwiseVerdict struct {
	Winner      string            `json:"winner"`
	Confidence  float64           `json:"confidence"`
	Criteria    map[string]string `json:"criteria"`
	Explanation string            `json:"explanation"`
}

func (s *llmJudgeScorer) scorePairwise(ctx context.Context, a, b *models.PromptResponse, params JudgeParams, criteria []Criterion) (*models.PromptScore, error) {
	acct := s.newAccounting()

	first, err := s.askPairwise(ctx, acct, a, b, params, criteria)
	if err != nil {
		return nil, err
	}
	winner := first.Winner
	consistent := true

	if params.SwapPositions {
		swapped, err := s.askPairwise(ctx, acct, b, a, params, criteria)
		if err != nil {
			return nil, err
		}
		if unswap(swapped.Winner) != first.Winner {
			winner, consistent = "tie", false
		}
	}

	out := newScore(s, a, winnerScore(winner))
	out.Explanation = first.Explanation
	out.ScorerAI = acct.info
	out.ScoreMetadata["mode"] = ModePairwise
	out.ScoreMetadata["winner"] = winner
	out.ScoreMetadata["confidence"] = first.Confidence
	out.ScoreMetadata["criteriaPreferences"] = first.Criteria
	out.ScoreMetadata["positionConsistent"] = consistent
	out.ScoreMetadata["opponent"] = map[string]any{
		"provider":  b.Provider,
		"modelId":   b.ModelID,
		"modelName": b.ModelName,
		"cid":       b.CID,
	}
	return out, nil
}

func (s *llmJudgeScorer) askPairwise(ctx context.Context, acct *accounting, a, b *models.PromptResponse, params JudgeParams, criteria []Criterion) (*pairwiseVerdict, error) {
	raw, err := s.ask(ctx, acct, pairwisePrompt(a, b, params.Instructions, criteria))
	if err != nil {
		return nil, err
	}

	var v pairwiseVerdict
	if err := extractJSON(raw, &v); err != nil {
		return nil, err
	}
	switch w := strings.ToUpper(strings.TrimSpace(v.Winner)); w {
	case "A", "B":
		v.Winner = w
	case "TIE":
		v.Winner = "tie"
	default:
		return nil, fmt.Errorf("judge returned invalid winner %q", v.Winner)
	}
	return &v, nil
}

func (s *llmJudgeScorer) ask(ctx context.Context, acct *accounting, input string) (string, error) {
	res, err := s.judge.Forward(ctx, input, providers.ForwardOptions{
		Model:       s.model,
		System:      judgeSystemPrompt,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("judge %s/%s: %w", s.judge.Identifier(), s.model, err)
	}
	acct.add(res)
	return res.Data, nil
}

// accounting sums the judge calls behind one score.
type accounting struct {
	info *models.ScorerAI
}

func (s *llmJudgeScorer) newAccounting() *accounting {
	info := &models.ScorerAI{
		Provider:  s.judge.Identifier(),
		ModelID:   s.model,
		ModelName: s.model,
	}
	if mi, ok := s.judge.ParseModelInfo(s.model); ok {
		info.ModelName = mi.Name
		info.ModelOwner = mi.Owner
	}
	return &accounting{info: info}
}

func (a *accounting) add(res *providers.ForwardResponse) {
	if a.info.StartedAt == 0 {
		a.info.StartedAt = res.StartedAt.UnixMilli()
	}
	a.info.FinishedAt = res.CompletedAt.UnixMilli()
	a.info.InputTokensUsed = addInt(a.info.InputTokensUsed, res.InputTokensUsed)
	a.info.OutputTokensUsed = addInt(a.info.OutputTokensUsed, res.OutputTokensUsed)
	a.info.InputCost = addFloat(a.info.InputCost, res.InputCost)
	a.info.OutputCost = addFloat(a.info.OutputCost, res.OutputCost)
}

func addInt(total, v *int64) *int64 {
	if v == nil {
		return total
	}
	sum := *v
	if total != nil {
		sum += *total
	}
	return &sum
}

func addFloat(total, v *float64) *float64 {
	if v == nil {
		return total
	}
	sum := *v
	if total != nil {
		sum += *total
	}
	return &sum
}

func normalizeCriteria(in []Criterion) []Criterion {
	if len(in) == 0 {
		in = defaultCriteria
	}
	out := make([]Criterion, 0, len(in))
	for _, c := range in {
		if c.ScaleMax <= c.ScaleMin {
			c.ScaleMin, c.ScaleMax = defaultScaleMin, defaultScaleMax
		}
		if c.Weight < 0 || math.IsNaN(c.Weight) {
			c.Weight = 0
		}
		out = append(out, c)
	}
	return out
}

// resolveOverall returns the judge's overall score when it is a number in
// [0,100], otherwise the weighted mean of the criterion scores normalized to
// 0..100. Weights are normalized to sum to 1 over the criteria that were
// scored; all-zero weights count equally.
func resolveOverall(stated *float64, scores map[string]float64, criteria []Criterion) (float64, bool, error) {
	if stated != nil && !math.IsNaN(*stated) && *stated >= 0 && *stated <= 100 {
		return *stated, false, nil
	}

	var weightSum, weighted float64
	var n int
	var plain float64
	for _, c := range criteria {
		v, ok := scores[c.Name]
		if !ok || math.IsNaN(v) {
			continue
		}
		v = clamp(v, float64(c.ScaleMin), float64(c.ScaleMax))
		norm := (v - float64(c.ScaleMin)) / float64(c.ScaleMax-c.ScaleMin) * 100
		weighted += c.Weight * norm
		weightSum += c.Weight
		plain += norm
		n++
	}
	if n == 0 {
		return 0, true, errors.New("judge returned no usable scores")
	}
	if weightSum == 0 {
		return plain / float64(n), true, nil
	}
	return weighted / weightSum, true, nil
}

// judgeNumber reads a decoded JSON value as a finite number. Numeric strings
// count; anything else, such as "N/A", does not.
func judgeNumber(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func winnerScore(winner string) float64 {
	switch winner {
	case "A":
		return 1
	case "B":
		return 0
	default:
		return 0.5
	}
}

func unswap(winner string) string {
	switch winner {
	case "A":
		return "B"
	case "B":
		return "A"
	default:
		return winner
	}
}

// extractJSON decodes the judge reply into v. Replies wrapped in prose or
// code fences are decoded from the first '{' to the last '}'.
func extractJSON(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in judge reply: %q", truncate(raw, 120))
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return fmt.Errorf("parsing judge reply: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
