// Package pipeline trains a per-user score regressor on a rated list and
// turns its predictions into ranked recommendations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"anirec/internal/eval"
	"anirec/internal/features"
	"anirec/internal/logging"
	"anirec/internal/metrics"
	"anirec/internal/model"
	"anirec/internal/nn"
)

// ErrInsufficientData is returned when the training split would be empty.
var ErrInsufficientData = errors.New("not enough rated entries to train")

// Options control a pipeline run.
type Options struct {
	Trainer   nn.Trainer
	Tolerance float64
	// Shuffle reorders the training split once, after splitting, using Seed.
	Shuffle bool
	Seed    int64
}

// Split divides items into a leading training slice of floor(n/10)*7
// entries and the remaining evaluation slice, in received order.
func Split(items []model.RatedItem) (train, test []model.RatedItem) {
	k := TrainSize(len(items))
	return items[:k], items[k:]
}

// TrainSize is the number of leading entries used for training.
func TrainSize(n int) int { return n / 10 * 7 }

// Model is the frozen state of a trained run. Affinities, Defaults and
// Bounds come from the training split only and are reused unchanged for
// every later matrix.
type Model struct {
	Affinities features.Affinities
	Defaults   features.Defaults
	Bounds     features.Bounds
	Trainer    nn.Trainer
}

// Scoring is a scored item collection.
type Scoring struct {
	Rows       []features.FeatureRow
	Normalized [][]float64
	Ranked     []eval.Scored
}

// Score builds, normalizes and predicts rows for items, and ranks them.
func (m *Model) Score(ctx context.Context, items []model.Item) (Scoring, error) {
	rows := features.Build(items, m.Affinities, m.Defaults)
	norm, preds, err := m.predict(ctx, rows)
	if err != nil {
		return Scoring{}, err
	}
	scored, err := eval.Score(rows, norm, preds, m.Bounds)
	if err != nil {
		return Scoring{}, err
	}
	return Scoring{Rows: rows, Normalized: norm, Ranked: eval.Rank(scored)}, nil
}

func (m *Model) predict(ctx context.Context, rows []features.FeatureRow) ([][]float64, []float64, error) {
	norm := features.Normalize(features.Matrix(rows), m.Bounds)
	if len(norm) == 0 {
		return norm, nil, nil
	}
	X, _ := features.SplitXY(norm)
	preds, err := m.Trainer.Predict(ctx, X)
	if err != nil {
		return nil, nil, fmt.Errorf("predict: %w", err)
	}
	return norm, preds, nil
}

// Recommend scores unseen items and keeps those predicted above the
// default genre affinity, best first.
func (m *Model) Recommend(ctx context.Context, items []model.Item) (ranked, recommended []eval.Scored, err error) {
	s, err := m.Score(ctx, items)
	if err != nil {
		return nil, nil, err
	}
	return s.Ranked, eval.Recommend(s.Ranked, m.Defaults.Genre), nil
}

// RecommendList validates list entries before scoring them.
func (m *Model) RecommendList(ctx context.Context, entries []model.RatedItem) (ranked, recommended []eval.Scored, err error) {
	if err := model.ValidateAll(entries); err != nil {
		return nil, nil, err
	}
	return m.Recommend(ctx, model.RatedItems(entries))
}

// RecommendCatalog validates catalog entries before scoring them.
func (m *Model) RecommendCatalog(ctx context.Context, items []model.CatalogItem) (ranked, recommended []eval.Scored, err error) {
	if err := model.ValidateCatalog(items); err != nil {
		return nil, nil, err
	}
	return m.Recommend(ctx, model.CatalogItems(items))
}

// Result is the outcome of Run.
type Result struct {
	Model       *Model
	Training    nn.Report
	Report      eval.Report
	Ranked      []eval.Scored
	Recommended []eval.Scored
	TrainSize   int
	EvalSize    int

	// normalized matrices with their metadata, kept for persistence
	TrainMatrix [][]float64
	TrainMeta   []features.Metadata
	EvalMatrix  [][]float64
	EvalMeta    []features.Metadata
}

// Run splits items, trains opts.Trainer on the leading split and
// evaluates it on the rest.
func Run(ctx context.Context, items []model.RatedItem, opts Options) (*Result, error) {
	start := time.Now()
	metrics.PipelineRuns.Inc()
	res, err := run(ctx, items, opts)
	metrics.ObservePipelineDuration(start)
	if err != nil {
		metrics.PipelineErrors.Inc()
		logging.Error().Err(err).Int("items", len(items)).Msg("pipeline failed")
		return nil, err
	}
	metrics.EvalMSE.Set(res.Report.MSE)
	metrics.EvalAccuracy.Set(res.Report.Accuracy)
	metrics.Recommendations.WithLabelValues("evaluation").Add(float64(len(res.Recommended)))
	logging.Info().
		Int("train", res.TrainSize).
		Int("eval", res.EvalSize).
		Float64("mse", res.Report.MSE).
		Float64("accuracy", res.Report.Accuracy).
		Int("recommended", len(res.Recommended)).
		Dur("took", time.Since(start)).
		Msg("pipeline done")
	return res, nil
}

func run(ctx context.Context, items []model.RatedItem, opts Options) (*Result, error) {
	if opts.Trainer == nil {
		return nil, errors.New("pipeline: no trainer")
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = eval.DefaultTolerance
	}
	if err := model.ValidateAll(items); err != nil {
		return nil, err
	}
	train, test := Split(items)
	if len(train) == 0 {
		return nil, fmt.Errorf("%w: %d entries", ErrInsufficientData, len(items))
	}

	aff, def := features.Aggregate(train)
	trainRows := features.Build(model.RatedItems(train), aff, def)
	raw := features.Matrix(trainRows)
	bounds := features.ComputeBounds(raw)
	trainNorm := features.Normalize(raw, bounds)
	logging.Debug().
		Float64("min", bounds.Min).
		Float64("max", bounds.Max).
		Float64("default_genre", def.Genre).
		Msg("training matrix ready")

	fitMatrix := trainNorm
	if opts.Shuffle {
		fitMatrix = shuffled(trainNorm, opts.Seed)
	}
	X, y := features.SplitXY(fitMatrix)
	training, err := opts.Trainer.Fit(ctx, X, y)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	m := &Model{Affinities: aff, Defaults: def, Bounds: bounds, Trainer: opts.Trainer}
	evalRows := features.Build(model.RatedItems(test), aff, def)
	evalNorm, preds, err := m.predict(ctx, evalRows)
	if err != nil {
		return nil, err
	}
	_, actuals := features.SplitXY(evalNorm)
	report, err := eval.Evaluate(preds, actuals, bounds, opts.Tolerance)
	if err != nil {
		return nil, err
	}
	scored, err := eval.Score(evalRows, evalNorm, preds, bounds)
	if err != nil {
		return nil, err
	}
	ranked := eval.Rank(scored)

	return &Result{
		Model:       m,
		Training:    training,
		Report:      report,
		Ranked:      ranked,
		Recommended: eval.Recommend(ranked, def.Genre),
		TrainSize:   len(train),
		EvalSize:    len(test),
		TrainMatrix: trainNorm,
		TrainMeta:   metas(trainRows),
		EvalMatrix:  evalNorm,
		EvalMeta:    metas(evalRows),
	}, nil
}

func shuffled(matrix [][]float64, seed int64) [][]float64 {
	out := append([][]float64(nil), matrix...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func metas(rows []features.FeatureRow) []features.Metadata {
	out := make([]features.Metadata, len(rows))
	for i, r := range rows {
		out[i] = r.Meta
	}
	return out
}
