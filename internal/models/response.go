package models

// ModelInfo is the normalized description of a model offered by a provider.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	Provider string `json:"provider"`
	Host     string `json:"host,omitempty"`
	Tier     string `json:"tier,omitempty"`
}

// PromptResponse is the recorded output of forwarding one prompt to one model.
// Timestamps are epoch milliseconds.
type PromptResponse struct {
	Prompt Prompt `json:"prompt"`

	Provider   string `json:"provider"`
	ModelID    string `json:"modelId"`
	ModelName  string `json:"modelName"`
	ModelOwner string `json:"modelOwner"`
	ModelHost  string `json:"modelHost,omitempty"`
	RunID      string `json:"runId"`

	Data       string `json:"data"`
	CID        string `json:"cid"`
	SHA256     string `json:"sha256"`
	StartedAt  int64  `json:"startedAt"`
	FinishedAt int64  `json:"finishedAt"`

	SystemPrompt     string   `json:"systemPrompt,omitempty"`
	InputTokensUsed  *int64   `json:"inputTokensUsed,omitempty"`
	OutputTokensUsed *int64   `json:"outputTokensUsed,omitempty"`
	InputCost        *float64 `json:"inputCost,omitempty"`
	OutputCost       *float64 `json:"outputCost,omitempty"`
	Cached           bool     `json:"cached,omitempty"`
}

// LatencyMs returns the wall time of the forward call.
func (r *PromptResponse) LatencyMs() int64 {
	if r.FinishedAt < r.StartedAt {
		return 0
	}
	return r.FinishedAt - r.StartedAt
}
