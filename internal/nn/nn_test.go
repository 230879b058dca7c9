package nn

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func linearData(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := float64(i%10) / 10
		b := float64((i*7)%10) / 10
		X[i] = []float64{a, b}
		y[i] = 0.6*a + 0.3*b + 0.05
	}
	return X, y
}

func TestDenseLearnsLinearTarget(t *testing.T) {
	X, y := linearData(60)
	d := NewDense(Hyperparams{HiddenUnits: 16, Epochs: 300, BatchSize: 8, Algorithm: "adam", LearningRate: 0.01, Shuffle: true, Seed: 7})
	rep, err := d.Fit(context.Background(), X, y)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Epochs != 300 || len(rep.Loss) != 300 {
		t.Fatalf("unexpected report: epochs=%d losses=%d", rep.Epochs, len(rep.Loss))
	}
	if rep.FinalLoss >= rep.Loss[0] {
		t.Fatalf("loss did not decrease: first=%v final=%v", rep.Loss[0], rep.FinalLoss)
	}
	if rep.FinalLoss > 0.01 {
		t.Fatalf("final loss too high: %v", rep.FinalLoss)
	}
	preds, err := d.Predict(context.Background(), X)
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != len(X) {
		t.Fatalf("got %d predictions", len(preds))
	}
}

func TestDenseDeterministicForSeed(t *testing.T) {
	X, y := linearData(20)
	hp := Hyperparams{HiddenUnits: 4, Epochs: 20, BatchSize: 4, Algorithm: "sgd", LearningRate: 0.05, Shuffle: true, Seed: 3}
	a, b := NewDense(hp), NewDense(hp)
	ra, _ := a.Fit(context.Background(), X, y)
	rb, _ := b.Fit(context.Background(), X, y)
	if ra.FinalLoss != rb.FinalLoss {
		t.Fatalf("same seed should give same loss: %v vs %v", ra.FinalLoss, rb.FinalLoss)
	}
}

func TestDensePredictBeforeFit(t *testing.T) {
	_, err := NewDense(DefaultHyperparams()).Predict(context.Background(), [][]float64{{1}})
	if !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
}

func TestDenseRejectsBadInput(t *testing.T) {
	d := NewDense(DefaultHyperparams())
	if _, err := d.Fit(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := d.Fit(context.Background(), [][]float64{{1}, {2}}, []float64{1}); err == nil {
		t.Fatalf("expected error for label mismatch")
	}
	if _, err := d.Fit(context.Background(), [][]float64{{1}, {2, 3}}, []float64{1, 2}); err == nil {
		t.Fatalf("expected error for ragged rows")
	}
	bad := NewDense(Hyperparams{Algorithm: "rmsprop"})
	if _, err := bad.Fit(context.Background(), [][]float64{{1}}, []float64{1}); err == nil {
		t.Fatalf("expected error for unknown algorithm")
	}
}

func TestDenseHonoursCancellation(t *testing.T) {
	X, y := linearData(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDense(DefaultHyperparams()).Fit(ctx, X, y); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewBackends(t *testing.T) {
	if tr, err := New("dense", DefaultHyperparams(), "", ""); err != nil || tr == nil {
		t.Fatalf("dense backend: %v", err)
	}
	if _, err := New("external", DefaultHyperparams(), "", ""); err == nil {
		t.Fatalf("external backend needs a binary")
	}
	if _, err := New("xgboost", DefaultHyperparams(), "", ""); err == nil {
		t.Fatalf("unknown backend should fail")
	}
}

func TestBridgeRoundTrip(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no shell available")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "trainer.sh")
	// train consumes stdin; infer echoes a constant prediction per line.
	script := "#!/bin/sh\nif [ \"$1\" = train ]; then cat > /dev/null; exit 0; fi\nwhile read -r line; do echo '[0.25]'; done\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	b := &Bridge{BinaryPath: bin, ModelPath: filepath.Join(dir, "model.json"), Params: DefaultHyperparams()}
	X, y := linearData(3)
	rep, err := b.Fit(context.Background(), X, y)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Loss) != 0 || rep.Samples != 3 {
		t.Fatalf("silent trainer should report no loss: %+v", rep)
	}
	preds, err := b.Predict(context.Background(), X)
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != 3 || math.Abs(preds[0]-0.25) > 1e-12 {
		t.Fatalf("unexpected predictions %v", preds)
	}
}

func TestBridgeFitReadsLossAndPassesSeed(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no shell available")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "trainer.sh")
	argsFile := filepath.Join(dir, "args")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\ncat > /dev/null\n" +
		"echo 'starting'\necho '{\"epoch\":1,\"loss\":0.5}'\necho '{\"epoch\":2,\"loss\":0.125}'\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	hp := DefaultHyperparams()
	hp.Seed = 42
	b := &Bridge{BinaryPath: bin, ModelPath: filepath.Join(dir, "model.json"), Params: hp}
	X, y := linearData(4)
	rep, err := b.Fit(context.Background(), X, y)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Loss) != 2 || rep.Epochs != 2 || rep.FinalLoss != 0.125 {
		t.Fatalf("loss history not read: %+v", rep)
	}
	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(args), "--seed 42") || !strings.Contains(string(args), "--shuffle") {
		t.Fatalf("seed/shuffle not passed: %q", args)
	}
}
