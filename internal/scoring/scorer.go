package scoring

import (
	"context"
	"fmt"
	"unicode/utf8"

	"devtype/internal/config"
	"devtype/internal/store"
	"devtype/internal/translit"

	"github.com/rivo/uniseg"
)

// Unit selects what an edit counts.
type Unit string

const (
	UnitCodePoint Unit = "codepoint"
	UnitGrapheme  Unit = "grapheme"
)

// ParseUnit parses a unit name. The empty string selects code points.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case "", UnitCodePoint:
		return UnitCodePoint, nil
	case UnitGrapheme:
		return UnitGrapheme, nil
	default:
		return "", fmt.Errorf("unknown scoring unit: %q", s)
	}
}

// Scorer computes distances between predicted and ground-truth labels.
type Scorer struct {
	Unit Unit

	// Settle strips typing markers from both labels before comparing.
	Settle bool
}

// FromSettings builds a Scorer from the scoring section of the config.
func FromSettings(s config.ScoringConfig) (*Scorer, error) {
	unit, err := ParseUnit(s.Unit)
	if err != nil {
		return nil, err
	}
	return &Scorer{Unit: unit, Settle: s.Settle}, nil
}

// Distance returns the edit distance between predicted and truth.
func (s *Scorer) Distance(predicted, truth string) int {
	predicted, truth = s.prepare(predicted), s.prepare(truth)
	if s.Unit == UnitGrapheme {
		return GraphemeLevenshtein(predicted, truth)
	}
	return Levenshtein(predicted, truth)
}

// Length returns the length of label in the scorer's unit.
func (s *Scorer) Length(label string) int {
	label = s.prepare(label)
	if s.Unit == UnitGrapheme {
		return uniseg.GraphemeClusterCount(label)
	}
	return utf8.RuneCountInString(label)
}

func (s *Scorer) prepare(label string) string {
	if s.Settle {
		return translit.Settle(label)
	}
	return label
}

// Result is the score of one annotated line.
type Result struct {
	Key       store.Key
	Distance  int
	Reference int // ground-truth length in the scorer's unit
}

// Summary aggregates line results.
type Summary struct {
	Lines         int
	Exact         int
	TotalDistance int
	TotalLength   int
}

// Add folds a result into the summary.
func (s *Summary) Add(r Result) {
	s.Lines++
	s.TotalDistance += r.Distance
	s.TotalLength += r.Reference
	if r.Distance == 0 {
		s.Exact++
	}
}

// Mean returns the mean distance per line.
func (s Summary) Mean() float64 {
	if s.Lines == 0 {
		return 0
	}
	return float64(s.TotalDistance) / float64(s.Lines)
}

// CER returns the character error rate: total distance over total
// ground-truth length.
func (s Summary) CER() float64 {
	if s.TotalLength == 0 {
		return 0
	}
	return float64(s.TotalDistance) / float64(s.TotalLength)
}

func (s Summary) String() string {
	return fmt.Sprintf("lines=%d exact=%d distance=%d mean=%.3f cer=%.4f",
		s.Lines, s.Exact, s.TotalDistance, s.Mean(), s.CER())
}

// Score computes results for every annotation that has a ground truth. A
// line without a prediction scores against the empty string.
func (s *Scorer) Score(list []store.Annotation) ([]Result, Summary) {
	var results []Result
	var sum Summary
	for _, a := range list {
		if a.GroundTruth == nil {
			continue
		}
		r := Result{
			Key:       a.Key,
			Distance:  s.Distance(a.Predicted, *a.GroundTruth),
			Reference: s.Length(*a.GroundTruth),
		}
		results = append(results, r)
		sum.Add(r)
	}
	return results, sum
}

// DistanceWriter persists a line distance.
type DistanceWriter interface {
	SetDistance(k store.Key, distance int) error
}

// ScoreRecords scores list and writes each distance through w.
func (s *Scorer) ScoreRecords(ctx context.Context, w DistanceWriter, list []store.Annotation) ([]Result, Summary, error) {
	results, sum := s.Score(list)
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, Summary{}, err
		}
		if err := w.SetDistance(r.Key, r.Distance); err != nil {
			return nil, Summary{}, fmt.Errorf("store distance for %s: %w", r.Key, err)
		}
	}
	return results, sum, nil
}
