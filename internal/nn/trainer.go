package nn

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotTrained is returned by Predict before a successful Fit.
var ErrNotTrained = errors.New("model not trained")

// Hyperparams configure a trainer. They are external to the feature pipeline.
type Hyperparams struct {
	HiddenUnits  int     `json:"hiddenUnits"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batchSize"`
	Algorithm    string  `json:"learningAlgorithm"` // "adam" or "sgd"
	LearningRate float64 `json:"learningRate"`
	Shuffle      bool    `json:"shuffle"`
	Seed         int64   `json:"seed"`
}

// DefaultHyperparams mirrors the reference network: 500 relu units,
// 500 epochs, batches of 32, adam.
func DefaultHyperparams() Hyperparams {
	return Hyperparams{HiddenUnits: 500, Epochs: 500, BatchSize: 32, Algorithm: "adam", LearningRate: 0.001, Shuffle: true, Seed: 1}
}

// Report summarizes a training run.
type Report struct {
	Epochs    int       `json:"epochs"`
	Samples   int       `json:"samples"`
	Loss      []float64 `json:"loss,omitempty"`
	FinalLoss float64   `json:"finalLoss"`
}

// Trainer is an opaque trainable function mapping feature rows to a score.
type Trainer interface {
	Fit(ctx context.Context, X [][]float64, y []float64) (Report, error)
	Predict(ctx context.Context, X [][]float64) ([]float64, error)
}

// New returns the trainer for backend "dense" (in-process) or "external"
// (binary bridge at binaryPath writing its model to modelPath).
func New(backend string, hp Hyperparams, binaryPath, modelPath string) (Trainer, error) {
	switch backend {
	case "", "dense":
		return NewDense(hp), nil
	case "external":
		if binaryPath == "" {
			return nil, errors.New("external backend requires a binary path")
		}
		return &Bridge{BinaryPath: binaryPath, ModelPath: modelPath, Params: hp}, nil
	}
	return nil, fmt.Errorf("unknown model backend %q", backend)
}

func checkShape(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("no training samples")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("got %d rows but %d labels", len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has %d columns, want %d", i, len(row), width)
		}
	}
	return width, nil
}
