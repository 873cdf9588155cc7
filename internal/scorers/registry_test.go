package scorers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

func TestDefaultRegistry_Order(t *testing.T) {
	assert.Equal(t, []string{MultipleChoiceID, ExactMatchID}, DefaultRegistry(nil, "", nil).Identifiers())

	judge, _ := scriptedJudge(t)
	assert.Equal(t, []string{MultipleChoiceID, ExactMatchID, LLMJudgeID}, DefaultRegistry(judge, "m", nil).Identifiers())
}

func TestRegistry_Detect(t *testing.T) {
	judge, _ := scriptedJudge(t)
	r := DefaultRegistry(judge, "m", nil)

	s, err := r.Detect(mcResponse("B"), Options{})
	require.NoError(t, err)
	assert.Equal(t, MultipleChoiceID, s.Identifier())

	s, err = r.Detect(textResponse(models.PromptTypeTypo, "the", "the"), Options{})
	require.NoError(t, err)
	assert.Equal(t, ExactMatchID, s.Identifier())

	s, err = r.Detect(openResponse("a", "essay"), Options{})
	require.NoError(t, err)
	assert.Equal(t, LLMJudgeID, s.Identifier())
}

func TestRegistry_DetectNone(t *testing.T) {
	r := DefaultRegistry(nil, "", nil)
	_, err := r.Detect(openResponse("a", "essay"), Options{})
	require.ErrorIs(t, err, ErrNoScorer)
	assert.EqualError(t, err, "no scorer found")
}

func TestRegistry_Resolve(t *testing.T) {
	r := DefaultRegistry(nil, "", nil)

	_, err := r.Resolve("bogus", mcResponse("B"), Options{})
	require.ErrorIs(t, err, ErrUnknownScorer)

	_, err = r.Resolve(ExactMatchID, mcResponse("B"), Options{})
	require.ErrorIs(t, err, ErrNoScorer)

	s, err := r.Resolve(MultipleChoiceID, mcResponse("B"), Options{})
	require.NoError(t, err)
	assert.Equal(t, MultipleChoiceID, s.Identifier())
}

func TestRegistry_DeclaredScorers(t *testing.T) {
	judge, _ := scriptedJudge(t, `{"scores": {"correctness": 5}}`)
	r := DefaultRegistry(judge, "m", nil)

	declared := openResponse("a", "Paris")
	declared.Prompt.Answer = "Paris"
	declared.Prompt.Scorers = []string{LLMJudgeID}

	undeclared := openResponse("a", "Paris")
	undeclared.Prompt.Answer = "Paris"
	s, err := r.Resolve("", undeclared, Options{})
	require.NoError(t, err)
	assert.Equal(t, ExactMatchID, s.Identifier())

	s, err = r.Resolve("", declared, Options{})
	require.NoError(t, err)
	assert.Equal(t, LLMJudgeID, s.Identifier(), "only declared scorers are probed")

	_, err = r.Resolve(ExactMatchID, declared, Options{})
	require.ErrorIs(t, err, ErrNoScorer)
	assert.ErrorContains(t, err, "accepts only")

	s, err = r.Resolve(LLMJudgeID, declared, Options{})
	require.NoError(t, err)
	assert.Equal(t, LLMJudgeID, s.Identifier())

	declared.Prompt.Scorers = []string{"unregistered", ExactMatchID, LLMJudgeID}
	s, err = r.Detect(declared, Options{})
	require.NoError(t, err)
	assert.Equal(t, ExactMatchID, s.Identifier(), "declared order wins")

	noJudge := DefaultRegistry(nil, "", nil)
	declared.Prompt.Scorers = []string{LLMJudgeID}
	_, err = noJudge.Detect(declared, Options{})
	require.ErrorIs(t, err, ErrNoScorer)
}

func TestRegistry_RegisterReplacesInPlace(t *testing.T) {
	r := DefaultRegistry(nil, "", nil)
	r.Register(NewMultipleChoiceScorer())
	assert.Equal(t, []string{MultipleChoiceID, ExactMatchID}, r.Identifiers())
}
