package models

// ScoringMethod distinguishes deterministic scorers from model-judged ones.
type ScoringMethod string

const (
	ScoringMethodAlgo ScoringMethod = "algo"
	ScoringMethodAI   ScoringMethod = "ai"
)

// ScorerAI accounts for the judge call behind an AI-produced score.
type ScorerAI struct {
	Provider         string   `json:"provider"`
	ModelID          string   `json:"modelId"`
	ModelName        string   `json:"modelName"`
	ModelOwner       string   `json:"modelOwner"`
	InputTokensUsed  *int64   `json:"inputTokensUsed,omitempty"`
	OutputTokensUsed *int64   `json:"outputTokensUsed,omitempty"`
	InputCost        *float64 `json:"inputCost,omitempty"`
	OutputCost       *float64 `json:"outputCost,omitempty"`
	StartedAt        int64    `json:"startedAt"`
	FinishedAt       int64    `json:"finishedAt"`
}

// PromptScore is a response plus the outcome of grading it. The embedded
// response is serialized inline so a score record is a superset of the
// response record it was produced from.
type PromptScore struct {
	PromptResponse

	ScoreDID      string         `json:"scoreDID"`
	Score         float64        `json:"score"`
	Method        ScoringMethod  `json:"method"`
	Scorer        string         `json:"scorer"`
	Explanation   string         `json:"explanation,omitempty"`
	ScoreMetadata map[string]any `json:"scoreMetadata,omitempty"`
	ScorerAI      *ScorerAI      `json:"scorerAI,omitempty"`
}

// ItemResult is the per-item outcome of a batch operation. Exactly one of
// Value and Err is set.
type ItemResult[T any] struct {
	Index  int    `json:"index"`
	ItemID string `json:"itemId"`
	Value  *T     `json:"value,omitempty"`
	Err    error  `json:"-"`
}

// OK reports whether the item succeeded.
func (r ItemResult[T]) OK() bool {
	return r.Err == nil && r.Value != nil
}

// CountFailed returns how many results carry an error.
func CountFailed[T any](results []ItemResult[T]) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}
