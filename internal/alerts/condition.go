package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/stats"
)

// fieldFileEntropy is evaluated once per scored file.
const fieldFileEntropy = "file_entropy"

// aggregateFields are evaluated once per target. The entropy aggregates
// only exist when at least one file was scored.
var aggregateFields = map[string]struct {
	value      func(Input) float64
	needsScore bool
}{
	"mean":       {func(in Input) float64 { return in.Stats.Mean }, true},
	"median":     {func(in Input) float64 { return in.Stats.Median }, true},
	"variance":   {func(in Input) float64 { return in.Stats.Variance }, true},
	"iqr":        {func(in Input) float64 { return in.Stats.IQR }, true},
	"discovered": {func(in Input) float64 { return float64(in.Stats.Total) }, false},
	"scored":     {func(in Input) float64 { return float64(in.Stats.Scored) }, false},
	"skipped":    {func(in Input) float64 { return float64(in.Stats.Skipped()) }, false},
	"outliers":   {func(in Input) float64 { return float64(len(in.Outliers)) }, false},
}

// Input is the state a rule set is evaluated against.
type Input struct {
	Stats    stats.Stats
	Files    []entropy.FileEntropy
	Outliers []entropy.FileEntropy
}

// condition is a parsed "field operator value" expression.
type condition struct {
	field     string
	op        string
	threshold float64
}

// parseCondition parses expressions such as:
//
//	mean > 7.5
//	outliers > 0
//	skipped >= 10
//	file_entropy >= 7.99
func parseCondition(s string) (condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"field operator value\"", s)
	}
	c := condition{field: parts[0], op: parts[1]}

	if _, ok := aggregateFields[c.field]; !ok && c.field != fieldFileEntropy {
		return condition{}, fmt.Errorf("condition %q: unknown field %q", s, c.field)
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", s, c.op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: threshold: %w", s, err)
	}
	c.threshold = v
	return c, nil
}

// hits returns the subjects for which the condition holds, with the value
// that triggered it.
func (c condition) hits(in Input) map[string]float64 {
	out := make(map[string]float64)
	if c.field == fieldFileEntropy {
		for _, f := range in.Files {
			if c.compare(f.Entropy) {
				out[f.Path] = f.Entropy
			}
		}
		return out
	}

	agg := aggregateFields[c.field]
	if agg.needsScore && in.Stats.Scored == 0 {
		return out
	}
	if v := agg.value(in); c.compare(v) {
		out[in.Stats.Target] = v
	}
	return out
}

func (c condition) compare(v float64) bool {
	switch c.op {
	case ">":
		return v > c.threshold
	case ">=":
		return v >= c.threshold
	case "<":
		return v < c.threshold
	case "<=":
		return v <= c.threshold
	case "==":
		return v == c.threshold
	default:
		return false
	}
}
