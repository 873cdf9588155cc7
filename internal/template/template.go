package template

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
)

// Option is one answer choice, in key order.
type Option struct {
	Key  string
	Text string
}

// RubricLine is one judged criterion with its integer scale.
type RubricLine struct {
	Name        string
	Description string
	Min         int
	Max         int
}

// Context holds the variables available to prompt templates.
type Context struct {
	TaskName   string
	PromptType string
	Question   string
	Answer     string
	AnswerKey  string
	Options    []Option

	Response  string
	ResponseB string

	Rubric       []RubricLine
	Instructions string

	// Vars are user-defined values, e.g. from --var flags.
	Vars map[string]string
}

var parsed sync.Map // source -> *template.Template

// Render resolves template expressions in tmpl using Go's text/template
// syntax: {{.Question}}, {{.Vars.lang}}. Inputs without delimiters are
// returned unchanged.
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("template: render: %w", err)
	}
	return buf.String(), nil
}

// MustRender is Render for built-in templates known to be valid.
func MustRender(tmpl string, ctx *Context) string {
	s, err := Render(tmpl, ctx)
	if err != nil {
		panic(err)
	}
	return s
}

func parse(tmpl string) (*template.Template, error) {
	if t, ok := parsed.Load(tmpl); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("template: parse: %w", err)
	}
	parsed.Store(tmpl, t)
	return t, nil
}

// OptionsOf returns the options map sorted by key.
func OptionsOf(options map[string]string) []Option {
	if len(options) == 0 {
		return nil
	}
	out := make([]Option, 0, len(options))
	for k, v := range options {
		out = append(out, Option{Key: k, Text: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
