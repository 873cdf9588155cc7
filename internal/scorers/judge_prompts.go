package scorers

import (
	"github.com/anushabukke/peerBench-sub002/internal/models"
	"github.com/anushabukke/peerBench-sub002/internal/template"
)

const judgeSystemPrompt = `You are an impartial evaluator of language model answers. ` +
	`Judge only what is written. Reply with a single JSON object and nothing else.`

const pointwiseTemplate = `Evaluate the response to the question below.
{{if .Instructions}}
{{.Instructions}}
{{end}}
## Question
{{.Question}}
{{if .Answer}}
## Reference answer
{{.Answer}}
{{end}}
## Response
{{.Response}}

## Criteria
{{range .Rubric}}- {{.Name}} (integer {{.Min}}-{{.Max}}){{if .Description}}: {{.Description}}{{end}}
{{end}}
Reply with JSON of this shape:
{"scores": {{"{"}}{{range $i, $c := .Rubric}}{{if $i}}, {{end}}"{{$c.Name}}": <{{$c.Min}}-{{$c.Max}}>{{end}}{{"}"}}, "overall": <0-100>, "verdict": "<one sentence>", "explanation": "<short reasoning>"}
`

const pairwiseTemplate = `Compare two responses to the question below and decide which is better.
{{if .Instructions}}
{{.Instructions}}
{{end}}
## Question
{{.Question}}
{{if .Answer}}
## Reference answer
{{.Answer}}
{{end}}
## Response A
{{.Response}}

## Response B
{{.ResponseB}}

## Criteria
{{range .Rubric}}- {{.Name}}{{if .Description}}: {{.Description}}{{end}}
{{end}}
Reply with JSON of this shape:
{"winner": "A" | "B" | "tie", "confidence": <1-5>, "criteria": {{"{"}}{{range $i, $c := .Rubric}}{{if $i}}, {{end}}"{{$c.Name}}": "A" | "B" | "tie"{{end}}{{"}"}}, "explanation": "<short reasoning>"}
`

func pointwisePrompt(resp *models.PromptResponse, instructions string, criteria []Criterion) string {
	ctx := judgeContext(resp, instructions, criteria)
	return template.MustRender(pointwiseTemplate, ctx)
}

func pairwisePrompt(a, b *models.PromptResponse, instructions string, criteria []Criterion) string {
	ctx := judgeContext(a, instructions, criteria)
	ctx.ResponseB = b.Data
	return template.MustRender(pairwiseTemplate, ctx)
}

func judgeContext(resp *models.PromptResponse, instructions string, criteria []Criterion) *template.Context {
	question := resp.Prompt.FullPrompt.Data
	if question == "" {
		question = resp.Prompt.Question.Data
	}

	rubric := make([]template.RubricLine, 0, len(criteria))
	for _, c := range criteria {
		rubric = append(rubric, template.RubricLine{
			Name:        c.Name,
			Description: c.Description,
			Min:         c.ScaleMin,
			Max:         c.ScaleMax,
		})
	}

	return &template.Context{
		PromptType:   string(resp.Prompt.Type),
		Question:     question,
		Answer:       resp.Prompt.Answer,
		AnswerKey:    resp.Prompt.AnswerKey,
		Options:      template.OptionsOf(resp.Prompt.Options),
		Response:     resp.Data,
		Rubric:       rubric,
		Instructions: instructions,
	}
}
