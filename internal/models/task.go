package models

// PromptType identifies the shape of a prompt and the answer it expects.
type PromptType string

const (
	PromptTypeMultipleChoice  PromptType = "multiple-choice"
	PromptTypeOpenEnded       PromptType = "open-ended"
	PromptTypeOrderSentences  PromptType = "order-sentences"
	PromptTypeTextReplacement PromptType = "text-replacement"
	PromptTypeTypo            PromptType = "typo"
)

// Valid reports whether t is one of the known prompt types.
func (t PromptType) Valid() bool {
	switch t {
	case PromptTypeMultipleChoice, PromptTypeOpenEnded, PromptTypeOrderSentences,
		PromptTypeTextReplacement, PromptTypeTypo:
		return true
	}
	return false
}

// ContentRef is a payload together with its content identifiers.
type ContentRef struct {
	Data   string `json:"data"`
	CID    string `json:"cid"`
	SHA256 string `json:"sha256"`
}

// Prompt is one question sent to a model.
type Prompt struct {
	DID        string            `json:"did"`
	Type       PromptType        `json:"type"`
	Question   ContentRef        `json:"question"`
	FullPrompt ContentRef        `json:"fullPrompt"`
	Options    map[string]string `json:"options,omitempty"`
	Answer     string            `json:"answer,omitempty"`
	AnswerKey  string            `json:"answerKey,omitempty"`
	Scorers    []string          `json:"scorers,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// HasChoices reports whether the prompt carries everything a
// multiple-choice grader needs.
func (p *Prompt) HasChoices() bool {
	return len(p.Options) > 0 && p.Answer != "" && p.AnswerKey != ""
}

// Task is an immutable, content-addressed bundle of prompts.
type Task struct {
	Schema   string   `json:"schema,omitempty"`
	FileName string   `json:"fileName"`
	DID      string   `json:"did"`
	CID      string   `json:"cid"`
	SHA256   string   `json:"sha256"`
	Prompts  []Prompt `json:"prompts"`
}
