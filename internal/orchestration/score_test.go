package orchestration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anushabukke/peerBench-sub002/internal/jsonstream"
	"github.com/anushabukke/peerBench-sub002/internal/models"
	"github.com/anushabukke/peerBench-sub002/internal/providers"
	"github.com/anushabukke/peerBench-sub002/internal/scorers"
	"github.com/anushabukke/peerBench-sub002/internal/signing"
)

func writeResponses(t *testing.T, dir, name string, responses ...models.PromptResponse) string {
	t.Helper()
	path := filepath.Join(dir, name)
	w, err := jsonstream.Create(path)
	require.NoError(t, err)
	for _, r := range responses {
		require.NoError(t, w.Append(r))
	}
	require.NoError(t, w.Close())
	return path
}

func mcResponse(did, data string) models.PromptResponse {
	return models.PromptResponse{
		Prompt:     mcPrompt(did, "Capital of France?"),
		Provider:   "alpha",
		ModelID:    "acme/m1",
		ModelName:  "m1",
		ModelOwner: "acme",
		Data:       data,
	}
}

func openResponse(did, provider, data string) models.PromptResponse {
	return models.PromptResponse{
		Prompt: models.Prompt{
			DID:        did,
			Type:       models.PromptTypeOpenEnded,
			FullPrompt: models.ContentRef{Data: "Explain " + did},
		},
		Provider:  provider,
		ModelID:   provider + "/m",
		ModelName: "m",
		Data:      data,
	}
}

func TestProcessResponseFile_AutoDetectsMultipleChoice(t *testing.T) {
	dir := t.TempDir()
	src := writeResponses(t, dir, "capitals.alpha.acme.m1.1.responses.json",
		mcResponse("p1", "Answer is B"),
		mcResponse("p2", "I think **A**"),
		mcResponse("p3", "<!NO ANSWER!>"),
	)

	out := filepath.Join(dir, "scores")
	r := NewScoringRunner(scorers.DefaultRegistry(nil, "", nil), WithOutputDir(out), WithClock(fixedClock))
	res, err := r.ProcessResponseFile(context.Background(), src, ScoreConfig{})
	require.NoError(t, err)

	assert.Equal(t, scorers.MultipleChoiceID, res.Scorer)
	assert.Equal(t, filepath.Join(out, "capitals.alpha.acme.m1.1.responses.multiple-choice.1700000000000.scores.json"), res.Path)
	assert.Zero(t, res.Failed())

	scores, err := jsonstream.ReadAll[models.PromptScore](res.Path)
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.Equal(t, 1.0, scores[0].Score)
	assert.Equal(t, "B", scores[0].ScoreMetadata["extractedAnswer"])
	assert.Equal(t, 0.0, scores[1].Score)
	assert.Equal(t, 0.0, scores[2].Score)
	assert.Equal(t, "", scores[2].ScoreMetadata["extractedAnswer"])

	for _, s := range scores {
		assert.Equal(t, "alpha", s.Provider, "score records keep the response fields")
		assert.Equal(t, models.ScoringMethodAlgo, s.Method)
		assert.NotEmpty(t, s.ScoreDID)
	}

	_, err = signing.Verify(res.Path)
	require.NoError(t, err)
}

func TestProcessResponses_NoScorer(t *testing.T) {
	dir := t.TempDir()
	r := NewScoringRunner(scorers.DefaultRegistry(nil, "", nil), WithOutputDir(dir))

	_, err := r.ProcessResponses(context.Background(), "x.responses.json",
		[]models.PromptResponse{openResponse("p1", "alpha", "essay")}, ScoreConfig{}, nil)
	require.ErrorIs(t, err, scorers.ErrNoScorer)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no score file is created when no scorer applies")
}

func TestProcessResponses_Empty(t *testing.T) {
	r := NewScoringRunner(scorers.DefaultRegistry(nil, "", nil), WithOutputDir(t.TempDir()))
	_, err := r.ProcessResponses(context.Background(), "x.json", nil, ScoreConfig{}, nil)
	require.ErrorIs(t, err, ErrNoResponses)
}

func TestProcessResponses_IneligibleItemsAreSkipped(t *testing.T) {
	typo := func(did, data, answer string) models.PromptResponse {
		return models.PromptResponse{
			Prompt: models.Prompt{DID: did, Type: models.PromptTypeTypo, Answer: answer},
			Data:   data,
		}
	}
	r := NewScoringRunner(scorers.DefaultRegistry(nil, "", nil), WithOutputDir(t.TempDir()))

	res, err := r.ProcessResponses(context.Background(), "typos.responses.json", []models.PromptResponse{
		typo("t1", "the cat", "the cat"),
		typo("t2", "", "a dog"),
		typo("t3", "teh bird", "the bird"),
	}, ScoreConfig{ScorerID: scorers.ExactMatchID}, nil)
	require.NoError(t, err)

	require.Len(t, res.Items, 3)
	assert.Equal(t, 1, res.Failed())
	assert.ErrorIs(t, res.Items[1].Err, scorers.ErrNotEligible)

	scores, err := jsonstream.ReadAll[models.PromptScore](res.Path)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, 1.0, scores[0].Score)
	assert.Equal(t, 0.0, scores[1].Score)
}

func TestScoreFiles_FileFailureDoesNotStopOthers(t *testing.T) {
	dir := t.TempDir()
	good := writeResponses(t, dir, "good.responses.json", mcResponse("p1", "Answer is B"))
	open := writeResponses(t, dir, "open.responses.json", openResponse("p1", "alpha", "essay"))
	empty := writeResponses(t, dir, "empty.responses.json")

	r := NewScoringRunner(scorers.DefaultRegistry(nil, "", nil), WithOutputDir(filepath.Join(dir, "out")))
	results, err := r.ScoreFiles(context.Background(), []string{good, open, empty}, ScoreConfig{Workers: 2})

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 3, be.Total)
	require.Len(t, be.Failures, 2)
	assert.False(t, be.AllFailed())
	assert.ErrorIs(t, err, scorers.ErrNoScorer)
	assert.ErrorIs(t, err, ErrNoResponses)

	require.Len(t, results, 1)
	assert.Equal(t, good, results[0].Source)
}

func TestScoreFiles_Pairwise(t *testing.T) {
	dir := t.TempDir()
	a := writeResponses(t, dir, "a.responses.json",
		openResponse("p1", "alpha", "Goroutines are cheap threads."),
		openResponse("p2", "alpha", "Channels pass values."),
	)
	b := writeResponses(t, dir, "b.responses.json",
		openResponse("p1", "beta", "Goroutines are processes."),
	)

	judgeBackend := providers.NewMockBackend("judge", `{"winner": "A", "confidence": 5, "explanation": "A is right"}`)
	judge := providers.New(judgeBackend, providers.WithRetry(1, time.Millisecond))
	r := NewScoringRunner(scorers.DefaultRegistry(judge, "acme/judge", nil), WithOutputDir(filepath.Join(dir, "out")))

	results, err := r.ScoreFiles(context.Background(), []string{a}, ScoreConfig{
		ScorerID: scorers.LLMJudgeID,
		Params:   map[string]any{"mode": "pairwise"},
		Against:  b,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	require.Len(t, res.Items, 2)
	assert.True(t, res.Items[0].OK())
	assert.Equal(t, 1.0, res.Items[0].Value.Score)
	assert.Equal(t, models.ScoringMethodAI, res.Items[0].Value.Method)
	assert.ErrorIs(t, res.Items[1].Err, scorers.ErrNotEligible, "p2 has no paired response")
	assert.Equal(t, 1, judgeBackend.Calls())
}

func TestScoreFiles_MissingPairFile(t *testing.T) {
	r := NewScoringRunner(scorers.DefaultRegistry(nil, "", nil), WithOutputDir(t.TempDir()))
	_, err := r.ScoreFiles(context.Background(), []string{"a.json"}, ScoreConfig{Against: filepath.Join(t.TempDir(), "nope.json")})
	require.ErrorIs(t, err, os.ErrNotExist)
}
