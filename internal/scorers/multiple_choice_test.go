package scorers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

func mcResponse(data string) *models.PromptResponse {
	return &models.PromptResponse{
		Provider:  "mock",
		ModelName: "echo",
		Data:      data,
		Prompt: models.Prompt{
			DID:  "p1",
			Type: models.PromptTypeMultipleChoice,
			Options: map[string]string{
				"A": "Lyon",
				"B": "Paris",
				"C": "Marseille",
				"D": "Nice",
			},
			Answer:    "Paris",
			AnswerKey: "B",
		},
	}
}

func TestMultipleChoice_CanScore(t *testing.T) {
	s := NewMultipleChoiceScorer()
	assert.True(t, s.CanScore(mcResponse("B"), Options{}))
	assert.False(t, s.CanScore(mcResponse("  "), Options{}))

	noKey := mcResponse("B")
	noKey.Prompt.AnswerKey = ""
	assert.False(t, s.CanScore(noKey, Options{}))

	noOptions := mcResponse("B")
	noOptions.Prompt.Options = nil
	assert.False(t, s.CanScore(noOptions, Options{}))

	assert.False(t, s.CanScore(nil, Options{}))
}

func TestMultipleChoice_ScoreOne(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantScore   float64
		wantAnswer  string
		wantPattern string
	}{
		{name: "answer is", data: "After thinking it over, the answer is B.", wantScore: 1, wantAnswer: "B", wantPattern: "answer-is"},
		{name: "answer is wrong key", data: "Answer is C", wantScore: 0, wantAnswer: "C", wantPattern: "answer-is"},
		{name: "answer colon bold", data: "Answer: **B**", wantScore: 1, wantAnswer: "B", wantPattern: "answer-is"},
		{name: "last match wins", data: "A) Lyon is wrong... Answer is A? No. Answer is B", wantScore: 1, wantAnswer: "B", wantPattern: "answer-is"},
		{name: "later paren overrides earlier", data: "A) seems plausible\nbut B) is right", wantScore: 1, wantAnswer: "B", wantPattern: "key-paren-text"},
		{name: "no answer marker", data: "<!NO ANSWER!> the answer is B", wantScore: 0, wantAnswer: "", wantPattern: "no-answer"},
		{name: "boxed answer text", data: `So \boxed{Paris}`, wantScore: 1, wantAnswer: "Paris", wantPattern: "boxed-answer-text"},
		{name: "answer text only", data: "  Paris. ", wantScore: 1, wantAnswer: "Paris", wantPattern: "answer-text"},
		{name: "bold answer text", data: "It is **paris**", wantScore: 1, wantAnswer: "paris", wantPattern: "bold-answer-text"},
		{name: "boxed key", data: `\boxed{B}`, wantScore: 1, wantAnswer: "B", wantPattern: "boxed-key"},
		{name: "bold key", data: "My pick: **(B)**", wantScore: 1, wantAnswer: "B", wantPattern: "bold-key"},
		{name: "key colon", data: "D: Nice is my pick", wantScore: 0, wantAnswer: "D", wantPattern: "key-colon"},
		{name: "bare key paren", data: "B)", wantScore: 1, wantAnswer: "B", wantPattern: "key-paren"},
		{name: "nothing", data: "I am not sure about this one", wantScore: 0, wantAnswer: "", wantPattern: ""},
	}

	s := NewMultipleChoiceScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := s.ScoreOne(context.Background(), mcResponse(tt.data), Options{})
			require.NoError(t, err)
			require.NotNil(t, score)

			assert.Equal(t, tt.wantScore, score.Score)
			assert.Equal(t, tt.wantAnswer, score.ScoreMetadata["extractedAnswer"])
			assert.Equal(t, tt.wantPattern, score.ScoreMetadata["matchedPattern"])
			assert.Equal(t, models.ScoringMethodAlgo, score.Method)
			assert.Equal(t, MultipleChoiceID, score.Scorer)
			assert.NotEmpty(t, score.ScoreDID)
			assert.Equal(t, tt.data, score.Data, "score carries the response")
		})
	}
}

func TestMultipleChoice_AnswerIsProperty(t *testing.T) {
	s := NewMultipleChoiceScorer()
	for _, key := range []string{"A", "B", "C", "D"} {
		resp := mcResponse("Answer is " + key)
		resp.Prompt.AnswerKey = key
		resp.Prompt.Answer = resp.Prompt.Options[key]

		score, err := s.ScoreOne(context.Background(), resp, Options{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score.Score, key)
	}
}

func TestMultipleChoice_NotEligible(t *testing.T) {
	_, err := NewMultipleChoiceScorer().ScoreOne(context.Background(), mcResponse(""), Options{})
	require.ErrorIs(t, err, ErrNotEligible)
}

func TestResolveKey(t *testing.T) {
	options := map[string]string{"A": "Lyon", "B": "Paris"}
	assert.Equal(t, "B", resolveKey("B", options))
	assert.Equal(t, "B", resolveKey(" paris. ", options))
	assert.Equal(t, "", resolveKey("Berlin", options))
	assert.Equal(t, "", resolveKey("", options))
}

func TestExtractAnswer_LongKeysFirst(t *testing.T) {
	got, pattern := ExtractAnswer("The answer is AA", map[string]string{"A": "x", "AA": "y"}, "")
	assert.Equal(t, "AA", got)
	assert.Equal(t, "answer-is", pattern)
}
