// Package eval scores predictions against held-out ratings and turns them
// into a ranked recommendation list.
package eval

import (
	"errors"
	"fmt"
	"sort"

	"anirec/internal/features"
)

// DefaultTolerance is the raw-scale window within which a prediction counts as correct.
const DefaultTolerance = 10.0

// ErrLengthMismatch is returned when predictions and actuals differ in length.
var ErrLengthMismatch = errors.New("predictions and actuals differ in length")

// Report holds the error metric and tolerance accuracy of one evaluation.
type Report struct {
	MSE      float64 `json:"mse"`
	Accuracy float64 `json:"accuracy"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
}

// Evaluate compares normalized predictions against normalized actuals.
// MSE is taken on the normalized pair; the tolerance test is applied after
// de-normalizing both, with exclusive bounds.
func Evaluate(preds, actuals []float64, b features.Bounds, tolerance float64) (Report, error) {
	if len(preds) != len(actuals) {
		return Report{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(preds), len(actuals))
	}
	rep := Report{Total: len(preds)}
	if rep.Total == 0 {
		return rep, nil
	}
	sq := 0.0
	for i := range preds {
		p := b.Denormalize(preds[i])
		a := b.Denormalize(actuals[i])
		if Within(p, a, tolerance) {
			rep.Correct++
		}
		d := actuals[i] - preds[i]
		sq += d * d
	}
	rep.MSE = sq / float64(rep.Total)
	rep.Accuracy = float64(rep.Correct) / float64(rep.Total)
	return rep, nil
}

// Within reports whether prediction lies strictly inside actual±tolerance.
func Within(prediction, actual, tolerance float64) bool {
	return prediction > actual-tolerance && prediction < actual+tolerance
}

// Scored is one ranked entry on the raw score scale.
type Scored struct {
	Meta       features.Metadata `json:"meta"`
	Prediction float64           `json:"prediction"`
	Actual     float64           `json:"actual"`
}

// Score pairs each row's metadata with its de-normalized prediction and
// actual target. rows, normalized and preds must be index-aligned.
func Score(rows []features.FeatureRow, normalized [][]float64, preds []float64, b features.Bounds) ([]Scored, error) {
	if len(rows) != len(preds) || len(normalized) != len(preds) {
		return nil, fmt.Errorf("%w: %d rows, %d normalized, %d predictions", ErrLengthMismatch, len(rows), len(normalized), len(preds))
	}
	out := make([]Scored, len(rows))
	for i := range rows {
		out[i] = Scored{
			Meta:       rows[i].Meta,
			Prediction: b.Denormalize(preds[i]),
			Actual:     b.Denormalize(normalized[i][len(normalized[i])-1]),
		}
	}
	return out, nil
}

// Rank sorts a copy of entries by prediction, highest first. Ties keep
// their input order.
func Rank(entries []Scored) []Scored {
	out := append([]Scored(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Prediction > out[j].Prediction })
	return out
}

// Recommend keeps entries whose prediction strictly exceeds threshold,
// preserving order.
func Recommend(ranked []Scored, threshold float64) []Scored {
	out := make([]Scored, 0, len(ranked))
	for _, e := range ranked {
		if e.Prediction > threshold {
			out = append(out, e)
		}
	}
	return out
}
