package pipeline

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"anirec/internal/model"
	"anirec/internal/nn"
)

// echoTrainer predicts the first input column, i.e. the genre affinity.
type echoTrainer struct {
	fitX     [][]float64
	fitY     []float64
	predicts int
}

func (e *echoTrainer) Fit(_ context.Context, X [][]float64, y []float64) (nn.Report, error) {
	e.fitX, e.fitY = X, y
	return nn.Report{Epochs: 1, Samples: len(X)}, nil
}

func (e *echoTrainer) Predict(_ context.Context, X [][]float64) ([]float64, error) {
	e.predicts++
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = row[0]
	}
	return out, nil
}

func rated(title, genre string, score, avg float64) model.RatedItem {
	return model.RatedItem{
		Media: model.Media{Title: title, Genres: []string{genre}, AverageScore: avg},
		Score: score,
	}
}

// Training split (first 7): A=85, B=65, C=30, default genre 60.
// Evaluation split: A (88), B (50), C (25).
func fixture() []model.RatedItem {
	return []model.RatedItem{
		rated("a1", "A", 90, 100),
		rated("a2", "A", 80, 70),
		rated("b1", "B", 60, 70),
		rated("b2", "B", 70, 70),
		rated("c1", "C", 20, 70),
		rated("c2", "C", 30, 70),
		rated("c3", "C", 40, 70),
		rated("c-eval", "C", 25, 70),
		rated("a-eval", "A", 88, 70),
		rated("b-eval", "B", 50, 70),
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSplit(t *testing.T) {
	cases := []struct{ n, train int }{{0, 0}, {9, 0}, {10, 7}, {11, 7}, {19, 7}, {20, 14}, {105, 70}}
	for _, c := range cases {
		items := make([]model.RatedItem, c.n)
		train, test := Split(items)
		if len(train) != c.train || len(test) != c.n-c.train {
			t.Errorf("n=%d: got %d/%d, want %d/%d", c.n, len(train), len(test), c.train, c.n-c.train)
		}
	}
}

func TestRunEndToEnd(t *testing.T) {
	tr := &echoTrainer{}
	res, err := Run(context.Background(), fixture(), Options{Trainer: tr})
	if err != nil {
		t.Fatal(err)
	}
	if res.TrainSize != 7 || res.EvalSize != 3 {
		t.Fatalf("split %d/%d", res.TrainSize, res.EvalSize)
	}
	m := res.Model
	if !approx(m.Affinities.Genres["A"], 85) || !approx(m.Affinities.Genres["B"], 65) || !approx(m.Affinities.Genres["C"], 30) {
		t.Fatalf("genre affinities from training split only: %v", m.Affinities.Genres)
	}
	if !approx(m.Defaults.Genre, 60) {
		t.Fatalf("default genre %v", m.Defaults.Genre)
	}
	if m.Bounds.Min != 0 || m.Bounds.Max != 100 {
		t.Fatalf("bounds %+v", m.Bounds)
	}
	if len(tr.fitX) != 7 || len(tr.fitX[0]) != 5 {
		t.Fatalf("trainer got %dx%d", len(tr.fitX), len(tr.fitX[0]))
	}

	wantRank := []string{"a-eval", "b-eval", "c-eval"}
	wantPred := []float64{85, 65, 30}
	wantActual := []float64{88, 50, 25}
	for i, e := range res.Ranked {
		if e.Meta.Title != wantRank[i] || !approx(e.Prediction, wantPred[i]) || !approx(e.Actual, wantActual[i]) {
			t.Fatalf("rank %d: got %+v", i, e)
		}
	}
	if len(res.Recommended) != 2 || res.Recommended[0].Meta.Title != "a-eval" || res.Recommended[1].Meta.Title != "b-eval" {
		t.Fatalf("recommended %+v", res.Recommended)
	}
	for _, e := range res.Recommended {
		if e.Prediction <= m.Defaults.Genre {
			t.Fatalf("%s predicted %v, not above default %v", e.Meta.Title, e.Prediction, m.Defaults.Genre)
		}
	}

	// a: |85-88|<10, b: |65-50|>=10, c: |30-25|<10
	if res.Report.Correct != 2 || res.Report.Total != 3 || !approx(res.Report.Accuracy, 2.0/3.0) {
		t.Fatalf("report %+v", res.Report)
	}
	// normalized squared errors: (0.03^2 + 0.15^2 + 0.05^2) / 3
	if want := (0.0009 + 0.0225 + 0.0025) / 3; !approx(res.Report.MSE, want) {
		t.Fatalf("mse %v, want %v", res.Report.MSE, want)
	}
	if len(res.TrainMatrix) != 7 || len(res.EvalMatrix) != 3 || res.EvalMeta[0].Title != "c-eval" {
		t.Fatalf("persisted matrices not aligned with input order")
	}
}

func TestRunInsufficientData(t *testing.T) {
	_, err := Run(context.Background(), fixture()[:9], Options{Trainer: &echoTrainer{}})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestRunRejectsMalformedEntries(t *testing.T) {
	items := fixture()
	items[3].Media.Title = ""
	tr := &echoTrainer{}
	if _, err := Run(context.Background(), items, Options{Trainer: tr}); err == nil {
		t.Fatal("expected validation error")
	}
	if tr.fitX != nil {
		t.Fatal("trainer must not run on invalid input")
	}
}

func TestRunShuffleKeepsRowsPaired(t *testing.T) {
	a, b := &echoTrainer{}, &echoTrainer{}
	if _, err := Run(context.Background(), fixture(), Options{Trainer: a}); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), fixture(), Options{Trainer: b, Shuffle: true, Seed: 7}); err != nil {
		t.Fatal(err)
	}
	pairs := func(tr *echoTrainer) []float64 {
		out := make([]float64, len(tr.fitY))
		for i := range tr.fitY {
			out[i] = tr.fitX[i][0]*1000 + tr.fitY[i]
		}
		sort.Float64s(out)
		return out
	}
	pa, pb := pairs(a), pairs(b)
	for i := range pa {
		if !approx(pa[i], pb[i]) {
			t.Fatalf("shuffle broke X/y pairing: %v vs %v", pa, pb)
		}
	}
}

func TestModelRecommendCatalog(t *testing.T) {
	res, err := Run(context.Background(), fixture(), Options{Trainer: &echoTrainer{}})
	if err != nil {
		t.Fatal(err)
	}
	catalog := []model.CatalogItem{
		{Media: model.Media{Title: "low", Genres: []string{"C"}}},
		{Media: model.Media{Title: "high", Genres: []string{"A"}}},
	}
	ranked, recs, err := res.Model.Recommend(context.Background(), model.CatalogItems(catalog))
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 2 || ranked[0].Meta.Title != "high" {
		t.Fatalf("ranked %+v", ranked)
	}
	if ranked[0].Actual != 0 || ranked[1].Actual != 0 {
		t.Fatalf("catalog entries carry no actual score: %+v", ranked)
	}
	if len(recs) != 1 || recs[0].Meta.Title != "high" {
		t.Fatalf("recommended %+v", recs)
	}

	ranked, recs, err = res.Model.Recommend(context.Background(), nil)
	if err != nil || len(ranked) != 0 || len(recs) != 0 {
		t.Fatalf("empty input: %v %v %v", ranked, recs, err)
	}
}

// failingTrainer fails on Fit or on Predict.
type failingTrainer struct {
	echoTrainer
	failFit bool
}

var errTrainer = errors.New("trainer exploded")

func (f *failingTrainer) Fit(ctx context.Context, X [][]float64, y []float64) (nn.Report, error) {
	if f.failFit {
		return nn.Report{}, errTrainer
	}
	return f.echoTrainer.Fit(ctx, X, y)
}

func (f *failingTrainer) Predict(ctx context.Context, X [][]float64) ([]float64, error) {
	if !f.failFit {
		return nil, errTrainer
	}
	return f.echoTrainer.Predict(ctx, X)
}

func TestRunTrainerErrorsAbort(t *testing.T) {
	for _, failFit := range []bool{true, false} {
		tr := &failingTrainer{failFit: failFit}
		res, err := Run(context.Background(), fixture(), Options{Trainer: tr})
		if !errors.Is(err, errTrainer) {
			t.Fatalf("failFit=%v: expected trainer error, got %v", failFit, err)
		}
		if res != nil {
			t.Fatalf("failFit=%v: no result expected on failure, got %+v", failFit, res)
		}
		if failFit && tr.predicts != 0 {
			t.Fatalf("predict must not run after a failed fit")
		}
	}
}

func TestRecommendListRejectsMalformedEntries(t *testing.T) {
	tr := &echoTrainer{}
	res, err := Run(context.Background(), fixture(), Options{Trainer: tr})
	if err != nil {
		t.Fatal(err)
	}
	before := tr.predicts

	bad := []model.RatedItem{
		rated("fine", "A", 0, 70),
		rated("too good", "A", 0, 150),
	}
	if _, _, err := res.Model.RecommendList(context.Background(), bad); err == nil {
		t.Fatal("expected averageScore out of range to be rejected")
	}
	noStaffID := rated("staffless", "B", 0, 70)
	noStaffID.Media.Staff = []model.StaffEdge{{ID: 0, Role: "Director"}}
	if _, _, err := res.Model.RecommendList(context.Background(), []model.RatedItem{noStaffID}); err == nil {
		t.Fatal("expected zero staff id to be rejected")
	}
	if _, _, err := res.Model.RecommendCatalog(context.Background(), []model.CatalogItem{{Media: model.Media{Genres: []string{"A"}}}}); err == nil {
		t.Fatal("expected untitled catalog entry to be rejected")
	}
	if tr.predicts != before {
		t.Fatalf("trainer ran on invalid input")
	}

	_, recs, err := res.Model.RecommendList(context.Background(), bad[:1])
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Meta.Title != "fine" {
		t.Fatalf("valid entry not recommended: %+v", recs)
	}
}
