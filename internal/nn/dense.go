package nn

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Dense is an in-process one-hidden-layer relu regressor trained on MSE.
// Parameters live in one flat slice: W1 (hidden x in), b1, W2, b2.
type Dense struct {
	params Hyperparams
	in     int
	w      []float64
}

// NewDense returns an untrained dense regressor.
func NewDense(hp Hyperparams) *Dense {
	if hp.HiddenUnits <= 0 {
		hp.HiddenUnits = 1
	}
	if hp.Epochs <= 0 {
		hp.Epochs = 1
	}
	if hp.BatchSize <= 0 {
		hp.BatchSize = 32
	}
	if hp.LearningRate <= 0 {
		hp.LearningRate = 0.001
	}
	return &Dense{params: hp}
}

func (d *Dense) offsets() (b1, w2, b2 int) {
	h := d.params.HiddenUnits
	b1 = h * d.in
	w2 = b1 + h
	b2 = w2 + h
	return
}

func (d *Dense) init(in int, rng *rand.Rand) {
	d.in = in
	h := d.params.HiddenUnits
	_, w2, b2 := d.offsets()
	d.w = make([]float64, b2+1)
	lim1 := math.Sqrt(6 / float64(in+h))
	for i := 0; i < h*in; i++ {
		d.w[i] = (rng.Float64()*2 - 1) * lim1
	}
	lim2 := math.Sqrt(6 / float64(h+1))
	for j := 0; j < h; j++ {
		d.w[w2+j] = (rng.Float64()*2 - 1) * lim2
	}
}

// forward returns the output and fills hidden pre-activations into pre.
func (d *Dense) forward(x []float64, pre []float64) float64 {
	h := d.params.HiddenUnits
	b1, w2, b2 := d.offsets()
	out := d.w[b2]
	for j := 0; j < h; j++ {
		z := d.w[b1+j]
		row := d.w[j*d.in : (j+1)*d.in]
		for i, xi := range x {
			z += row[i] * xi
		}
		if pre != nil {
			pre[j] = z
		}
		if z > 0 {
			out += d.w[w2+j] * z
		}
	}
	return out
}

func (d *Dense) Fit(ctx context.Context, X [][]float64, y []float64) (Report, error) {
	in, err := checkShape(X, y)
	if err != nil {
		return Report{}, err
	}
	algo := strings.ToLower(d.params.Algorithm)
	if algo != "" && algo != "adam" && algo != "sgd" {
		return Report{}, fmt.Errorf("unsupported learning algorithm %q", d.params.Algorithm)
	}
	rng := rand.New(rand.NewSource(d.params.Seed))
	d.init(in, rng)

	h := d.params.HiddenUnits
	b1, w2, b2 := d.offsets()
	grad := make([]float64, len(d.w))
	opt := newOptimizer(algo, len(d.w), d.params.LearningRate)
	pre := make([]float64, h)
	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}

	rep := Report{Samples: len(X), Loss: make([]float64, 0, d.params.Epochs)}
	for epoch := 0; epoch < d.params.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if d.params.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		sumSq := 0.0
		for start := 0; start < len(order); start += d.params.BatchSize {
			end := min(start+d.params.BatchSize, len(order))
			clear(grad)
			n := float64(end - start)
			for _, idx := range order[start:end] {
				x := X[idx]
				diff := d.forward(x, pre) - y[idx]
				sumSq += diff * diff
				g := 2 * diff / n
				grad[b2] += g
				for j := 0; j < h; j++ {
					if pre[j] <= 0 {
						continue
					}
					grad[w2+j] += g * pre[j]
					gh := g * d.w[w2+j]
					grad[b1+j] += gh
					row := grad[j*in : (j+1)*in]
					for i, xi := range x {
						row[i] += gh * xi
					}
				}
			}
			opt.step(d.w, grad)
		}
		rep.Loss = append(rep.Loss, sumSq/float64(len(X)))
		rep.Epochs = epoch + 1
	}
	if len(rep.Loss) > 0 {
		rep.FinalLoss = rep.Loss[len(rep.Loss)-1]
	}
	return rep, nil
}

func (d *Dense) Predict(ctx context.Context, X [][]float64) ([]float64, error) {
	if d.w == nil {
		return nil, ErrNotTrained
	}
	out := make([]float64, len(X))
	for i, x := range X {
		if len(x) != d.in {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(x), d.in)
		}
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = d.forward(x, nil)
	}
	return out, nil
}

type optimizer struct {
	adam bool
	lr   float64
	m, v []float64
	t    int
}

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-7
)

func newOptimizer(algo string, n int, lr float64) *optimizer {
	o := &optimizer{lr: lr, adam: algo != "sgd"}
	if o.adam {
		o.m = make([]float64, n)
		o.v = make([]float64, n)
	}
	return o
}

func (o *optimizer) step(w, g []float64) {
	if !o.adam {
		for i := range w {
			w[i] -= o.lr * g[i]
		}
		return
	}
	o.t++
	c1 := 1 - math.Pow(adamBeta1, float64(o.t))
	c2 := 1 - math.Pow(adamBeta2, float64(o.t))
	for i := range w {
		o.m[i] = adamBeta1*o.m[i] + (1-adamBeta1)*g[i]
		o.v[i] = adamBeta2*o.v[i] + (1-adamBeta2)*g[i]*g[i]
		w[i] -= o.lr * (o.m[i] / c1) / (math.Sqrt(o.v[i]/c2) + adamEps)
	}
}
