// Package stats derives distribution summaries and outliers from a set of
// per-file entropy scores.
//
// Every function is pure and returns (value, ok). ok is false only for an
// empty input; that is an expected outcome (an empty directory), not an
// error.
package stats

import (
	"cmp"
	"slices"

	mstats "github.com/montanaflynn/stats"

	"github.com/obsidianstack/entropyscan/internal/entropy"
)

// fenceFactor scales the IQR to place the outlier fences.
const fenceFactor = 1.5

// Iqr is the interquartile range of a set of scores.
type Iqr struct {
	Q1    float64 `json:"q1"`
	Q3    float64 `json:"q3"`
	Range float64 `json:"range"`
}

// Stats is the aggregate report for one scan target.
//
// Total counts discovered files; Scored counts the ones that produced a
// score. The aggregates cover the scored subset only.
type Stats struct {
	Target   string  `json:"target"`
	Total    int     `json:"total"`
	Scored   int     `json:"scored"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Variance float64 `json:"variance"`
	IQR      float64 `json:"iqr"`
}

// Skipped is the number of discovered files that were not scored.
func (s Stats) Skipped() int {
	return s.Total - s.Scored
}

// Mean returns the arithmetic mean entropy.
func Mean(data []entropy.FileEntropy) (float64, bool) {
	if len(data) == 0 {
		return 0, false
	}
	m, err := mstats.Mean(values(data))
	if err != nil {
		return 0, false
	}
	return m, true
}

// Median returns the middle entropy, averaging the two middle values for an
// even count.
func Median(data []entropy.FileEntropy) (float64, bool) {
	if len(data) == 0 {
		return 0, false
	}
	m, err := mstats.Median(values(data))
	if err != nil {
		return 0, false
	}
	return m, true
}

// Variance returns the population variance (divisor n).
func Variance(data []entropy.FileEntropy) (float64, bool) {
	if len(data) == 0 {
		return 0, false
	}
	v, err := mstats.PopulationVariance(values(data))
	if err != nil {
		return 0, false
	}
	return v, true
}

// InterquartileRange returns Q1, Q3 and their distance.
//
// Quartile positions are 1-based: q1 = n/4 for even n, (n+1)/4 for odd n,
// and q3 = 3*q1. This is not an interpolating estimator and results differ
// from textbook quartiles on small inputs. For n == 2 the formula yields
// position 0, so positions are clamped to [1, n] (Q1 = min, Q3 = max).
func InterquartileRange(data []entropy.FileEntropy) (Iqr, bool) {
	switch len(data) {
	case 0:
		return Iqr{}, false
	case 1:
		return Iqr{Q1: data[0].Entropy, Q3: data[0].Entropy}, true
	}

	sorted := sortedValues(data)
	n := len(sorted)

	q1Idx := (n + 1) / 4
	if n%2 == 0 {
		q1Idx = n / 4
	}
	q1Idx = clampIndex(q1Idx, n)
	q3Idx := clampIndex(3*q1Idx, n)

	q1 := sorted[q1Idx-1]
	q3 := sorted[q3Idx-1]
	return Iqr{Q1: q1, Q3: q3, Range: q3 - q1}, true
}

// Outliers returns the files whose entropy lies strictly outside the fences
// Q1 - 1.5*IQR and Q3 + 1.5*IQR, in input order. The slice is non-nil and
// may be empty when data is non-empty.
func Outliers(data []entropy.FileEntropy) ([]entropy.FileEntropy, bool) {
	iqr, ok := InterquartileRange(data)
	if !ok {
		return nil, false
	}

	lower := iqr.Q1 - fenceFactor*iqr.Range
	upper := iqr.Q3 + fenceFactor*iqr.Range

	out := make([]entropy.FileEntropy, 0)
	for _, fe := range data {
		if fe.Entropy < lower || fe.Entropy > upper {
			out = append(out, fe)
		}
	}
	return out, true
}

// Summarize builds the Stats record for target. discovered is the number of
// files handed to the calculator, scored or not. ok is false when data is
// empty; the returned Stats then carries only Target and the counts.
func Summarize(target string, discovered int, data []entropy.FileEntropy) (Stats, bool) {
	s := Stats{Target: target, Total: discovered, Scored: len(data)}
	if len(data) == 0 {
		return s, false
	}

	s.Mean, _ = Mean(data)
	s.Median, _ = Median(data)
	s.Variance, _ = Variance(data)
	iqr, _ := InterquartileRange(data)
	s.IQR = iqr.Range
	return s, true
}

// FilterMinEntropy keeps the files scoring at least threshold, in order.
func FilterMinEntropy(data []entropy.FileEntropy, threshold float64) []entropy.FileEntropy {
	out := make([]entropy.FileEntropy, 0, len(data))
	for _, fe := range data {
		if fe.Entropy >= threshold {
			out = append(out, fe)
		}
	}
	return out
}

func values(data []entropy.FileEntropy) mstats.Float64Data {
	out := make(mstats.Float64Data, len(data))
	for i, fe := range data {
		out[i] = fe.Entropy
	}
	return out
}

func sortedValues(data []entropy.FileEntropy) []float64 {
	out := []float64(values(data))
	slices.SortStableFunc(out, cmp.Compare[float64])
	return out
}

func clampIndex(i, n int) int {
	if i < 1 {
		return 1
	}
	if i > n {
		return n
	}
	return i
}
