// Package statistics summarizes per-model score samples for the leaderboard.
package statistics

import (
	"math"
	"math/rand/v2"
	"slices"
)

// Interval is a two-sided confidence interval around a point estimate.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// Bootstrap resample count.
const DefaultResamples = 2000

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation (n-1), 0 for fewer than two
// values.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// BootstrapMean estimates a percentile bootstrap interval for the mean of
// values. The seed makes the resampling reproducible. Fewer than two values
// yield a degenerate interval at the mean.
func BootstrapMean(values []float64, level float64, seed uint64) Interval {
	n := len(values)
	m := Mean(values)
	if n < 2 {
		return Interval{Lower: m, Upper: m, Level: level}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	means := make([]float64, DefaultResamples)
	for i := range means {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += values[rng.IntN(n)]
		}
		means[i] = sum / float64(n)
	}
	slices.Sort(means)

	alpha := 1 - level
	lo := int(math.Floor(alpha / 2 * float64(len(means))))
	hi := int(math.Floor((1 - alpha/2) * float64(len(means))))
	if hi >= len(means) {
		hi = len(means) - 1
	}
	return Interval{Lower: means[lo], Upper: means[hi], Level: level}
}

// Wilson returns the 95% Wilson score interval for successes out of n
// trials. It stays inside [0, 1] even at 0% or 100% accuracy.
func Wilson(successes, n int) Interval {
	const z = 1.959964
	if n == 0 {
		return Interval{Level: 0.95}
	}
	p := float64(successes) / float64(n)
	nf := float64(n)
	denom := 1 + z*z/nf
	center := (p + z*z/(2*nf)) / denom
	margin := z * math.Sqrt(p*(1-p)/nf+z*z/(4*nf*nf)) / denom
	return Interval{
		Lower: math.Max(0, center-margin),
		Upper: math.Min(1, center+margin),
		Level: 0.95,
	}
}
