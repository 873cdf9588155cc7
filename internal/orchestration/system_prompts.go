package orchestration

import (
	"github.com/anushabukke/peerBench-sub002/internal/models"
	"github.com/anushabukke/peerBench-sub002/internal/scorers"
	"github.com/anushabukke/peerBench-sub002/internal/template"
)

var defaultSystemPrompts = map[models.PromptType]string{
	models.PromptTypeMultipleChoice: "You are answering a multiple-choice question. Pick the single best option " +
		"and finish your reply with \"Answer is X\" where X is the option letter. " +
		"If no option is correct, reply with " + scorers.NoAnswerMarker + " and nothing else.",
	models.PromptTypeOrderSentences: "You will be given shuffled sentences. Put them back in their original order " +
		"and reply with the ordered text only, without numbering or commentary.",
	models.PromptTypeTextReplacement: "You will be given a text with placeholders. Replace each placeholder with the " +
		"correct word and reply with the complete text only, without commentary.",
	models.PromptTypeTypo: "You will be given a text that contains typos. Fix every typo without changing " +
		"anything else and reply with the corrected text only, without commentary.",
}

// DefaultSystemPrompt returns the built-in system prompt for a prompt type.
// Open-ended prompts have none.
func DefaultSystemPrompt(t models.PromptType) string {
	return defaultSystemPrompts[t]
}

// resolveSystemPrompt renders the override when one is set, otherwise falls
// back to the default for the prompt's type.
func resolveSystemPrompt(override string, task *models.Task, p *models.Prompt, vars map[string]string) (string, error) {
	if override == "" {
		return DefaultSystemPrompt(p.Type), nil
	}
	return template.Render(override, &template.Context{
		TaskName:   task.FileName,
		PromptType: string(p.Type),
		Question:   p.Question.Data,
		Options:    template.OptionsOf(p.Options),
		Vars:       vars,
	})
}
