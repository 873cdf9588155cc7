// Package aggregate reduces score files to one leaderboard row per model.
package aggregate

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/anushabukke/peerBench-sub002/internal/jsonstream"
	"github.com/anushabukke/peerBench-sub002/internal/models"
	"github.com/anushabukke/peerBench-sub002/internal/statistics"
)

// DefaultPassThreshold is the score at or above which a response counts as
// correct. Binary scorers only produce 0 and 1, so the threshold matters
// only for judge scores.
const DefaultPassThreshold = 0.5

const bootstrapSeed = 42

// Row summarizes every score of one model.
type Row struct {
	Provider   string `json:"provider"`
	ModelOwner string `json:"modelOwner"`
	ModelName  string `json:"modelName"`

	TotalResponses int     `json:"totalResponses"`
	CorrectAnswers int     `json:"correctAnswers"`
	WrongAnswers   int     `json:"wrongAnswers"`
	Accuracy       float64 `json:"accuracy"`
	AvgScore       float64 `json:"avgScore"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
	TotalCost      float64 `json:"totalCost,omitempty"`

	AccuracyCI statistics.Interval `json:"accuracyCI"`
	ScoreCI    statistics.Interval `json:"scoreCI"`

	Scorers []string `json:"scorers"`
}

// Key identifies the model a row belongs to.
func (r *Row) Key() string {
	return r.Provider + "/" + r.ModelOwner + "/" + r.ModelName
}

// Options tunes how scores are reduced.
type Options struct {
	PassThreshold float64
}

type group struct {
	row       *Row
	scores    []float64
	latencies []float64
}

// Compute groups scores by (provider, modelOwner, modelName) and returns the
// rows sorted by average score, best first. Ties keep first-seen order.
func Compute(scores []models.PromptScore, opts Options) []Row {
	threshold := opts.PassThreshold
	if threshold <= 0 {
		threshold = DefaultPassThreshold
	}

	var order []*group
	groups := map[string]*group{}
	for i := range scores {
		s := &scores[i]
		row := Row{Provider: s.Provider, ModelOwner: s.ModelOwner, ModelName: s.ModelName}
		g, ok := groups[row.Key()]
		if !ok {
			g = &group{row: &row}
			groups[row.Key()] = g
			order = append(order, g)
		}

		g.row.TotalResponses++
		if s.Score >= threshold {
			g.row.CorrectAnswers++
		} else {
			g.row.WrongAnswers++
		}
		g.scores = append(g.scores, s.Score)
		g.latencies = append(g.latencies, float64(s.LatencyMs()))
		if s.InputCost != nil {
			g.row.TotalCost += *s.InputCost
		}
		if s.OutputCost != nil {
			g.row.TotalCost += *s.OutputCost
		}
		if !slices.Contains(g.row.Scorers, s.Scorer) {
			g.row.Scorers = append(g.row.Scorers, s.Scorer)
		}
	}

	rows := make([]Row, 0, len(order))
	for _, g := range order {
		r := *g.row
		r.Accuracy = 100 * float64(r.CorrectAnswers) / float64(r.TotalResponses)
		r.AvgScore = statistics.Mean(g.scores)
		r.AvgLatencyMs = statistics.Mean(g.latencies)
		r.AccuracyCI = statistics.Wilson(r.CorrectAnswers, r.TotalResponses)
		r.ScoreCI = statistics.BootstrapMean(g.scores, 0.95, bootstrapSeed)
		rows = append(rows, r)
	}

	slices.SortStableFunc(rows, func(a, b Row) int {
		return cmp.Compare(b.AvgScore, a.AvgScore)
	})
	return rows
}

// FromFiles reads every score file and computes the leaderboard.
func FromFiles(paths []string, opts Options) ([]Row, error) {
	var all []models.PromptScore
	for _, p := range paths {
		scores, err := jsonstream.ReadAll[models.PromptScore](p)
		if err != nil {
			return nil, fmt.Errorf("reading scores: %w", err)
		}
		all = append(all, scores...)
	}
	return Compute(all, opts), nil
}
