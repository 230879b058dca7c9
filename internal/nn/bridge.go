package nn

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/goccy/go-json"
)

// Sample is one JSONL record exchanged with the external trainer.
type Sample struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y,omitempty"`
}

// Bridge delegates fit/predict to an external binary over JSONL stdin.
//
//	<bin> train --out <model> --hidden N --epochs N --batch N --lr F --optimizer S --seed N [--shuffle]
//	<bin> infer --model <model>
//
// train may print {"epoch":N,"loss":F} lines on stdout; other output is
// ignored. infer writes one JSON array per input line.
type Bridge struct {
	BinaryPath string
	ModelPath  string
	Params     Hyperparams
}

func encodeSamples(X [][]float64, y []float64) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	enc := json.NewEncoder(w)
	for i := range X {
		s := Sample{X: X[i]}
		if y != nil {
			s.Y = []float64{y[i]}
		}
		if err := enc.Encode(s); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (b *Bridge) Fit(ctx context.Context, X [][]float64, y []float64) (Report, error) {
	if _, err := checkShape(X, y); err != nil {
		return Report{}, err
	}
	buf, err := encodeSamples(X, y)
	if err != nil {
		return Report{}, err
	}
	p := b.Params
	cmd := exec.CommandContext(ctx, b.BinaryPath, "train",
		"--out", b.ModelPath,
		"--hidden", strconv.Itoa(p.HiddenUnits),
		"--epochs", strconv.Itoa(p.Epochs),
		"--batch", strconv.Itoa(p.BatchSize),
		"--lr", strconv.FormatFloat(p.LearningRate, 'g', -1, 64),
		"--optimizer", p.Algorithm,
		"--seed", strconv.FormatInt(p.Seed, 10),
	)
	if p.Shuffle {
		cmd.Args = append(cmd.Args, "--shuffle")
	}
	cmd.Stdin = buf
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return Report{}, fmt.Errorf("train error: %w: %s", err, stderr.String())
	}
	rep := Report{Epochs: p.Epochs, Samples: len(X), Loss: parseLoss(out)}
	if n := len(rep.Loss); n > 0 {
		rep.Epochs = n
		rep.FinalLoss = rep.Loss[n-1]
	}
	return rep, nil
}

type epochLine struct {
	Epoch int      `json:"epoch"`
	Loss  *float64 `json:"loss"`
}

func parseLoss(out []byte) []float64 {
	var loss []float64
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		var l epochLine
		if json.Unmarshal(scanner.Bytes(), &l) != nil || l.Loss == nil {
			continue
		}
		loss = append(loss, *l.Loss)
	}
	return loss
}

func (b *Bridge) Predict(ctx context.Context, X [][]float64) ([]float64, error) {
	if len(X) == 0 {
		return nil, nil
	}
	buf, err := encodeSamples(X, nil)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, b.BinaryPath, "infer", "--model", b.ModelPath)
	cmd.Stdin = buf
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("infer error: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	preds := make([]float64, 0, len(X))
	for scanner.Scan() {
		var arr []float64
		if err := json.Unmarshal(scanner.Bytes(), &arr); err != nil {
			return nil, err
		}
		if len(arr) == 0 {
			return nil, fmt.Errorf("empty prediction on line %d", len(preds)+1)
		}
		preds = append(preds, arr[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(preds) != len(X) {
		return nil, fmt.Errorf("external trainer returned %d predictions for %d rows", len(preds), len(X))
	}
	return preds, nil
}
