package features

import (
	"sort"

	"anirec/internal/model"
)

// Tally is the running {count, total} of personal scores for one category.
type Tally struct {
	Count int
	Total float64
}

// Mean collapses the tally into the category average.
func (t Tally) Mean() float64 {
	if t.Count == 0 {
		return 0
	}
	return t.Total / float64(t.Count)
}

// Accumulator collects per-category tallies during the aggregation pass.
type Accumulator struct {
	genres  map[string]Tally
	tags    map[string]Tally
	studios map[string]Tally
	staff   map[int]Tally
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		genres:  make(map[string]Tally),
		tags:    make(map[string]Tally),
		studios: make(map[string]Tally),
		staff:   make(map[int]Tally),
	}
}

// Add folds one rated entry into every category it touches.
// Tags are counted regardless of rank; only animation studios count.
func (a *Accumulator) Add(r model.RatedItem) {
	m := r.Media
	for _, g := range m.Genres {
		a.genres[g] = bump(a.genres[g], r.Score)
	}
	for _, t := range m.Tags {
		a.tags[t.Name] = bump(a.tags[t.Name], r.Score)
	}
	for _, s := range m.Studios {
		if !s.IsAnimationStudio {
			continue
		}
		a.studios[s.Name] = bump(a.studios[s.Name], r.Score)
	}
	for _, s := range m.Staff {
		a.staff[s.ID] = bump(a.staff[s.ID], r.Score)
	}
}

func bump(t Tally, score float64) Tally {
	return Tally{Count: t.Count + 1, Total: t.Total + score}
}

// Affinities holds the finalized per-category averages. Read-only after Finalize.
type Affinities struct {
	Genres  map[string]float64
	Tags    map[string]float64
	Studios map[string]float64
	Staff   map[int]float64
}

// Defaults are the fallback affinities for categories unseen during aggregation.
type Defaults struct {
	Genre  float64 `json:"genre"`
	Tag    float64 `json:"tag"`
	Studio float64 `json:"studio"`
	Staff  float64 `json:"staff"`
}

// Finalize converts every tally to its average and derives the defaults.
func (a *Accumulator) Finalize() (Affinities, Defaults) {
	aff := Affinities{
		Genres:  finalize(a.genres),
		Tags:    finalize(a.tags),
		Studios: finalize(a.studios),
		Staff:   finalize(a.staff),
	}
	def := Defaults{
		Genre:  meanOf(aff.Genres),
		Tag:    meanOf(aff.Tags),
		Studio: meanOf(aff.Studios),
		Staff:  meanOf(aff.Staff),
	}
	return aff, def
}

// Aggregate runs the accumulate and finalize passes over items.
func Aggregate(items []model.RatedItem) (Affinities, Defaults) {
	acc := NewAccumulator()
	for _, it := range items {
		acc.Add(it)
	}
	return acc.Finalize()
}

func finalize[K comparable](in map[K]Tally) map[K]float64 {
	out := make(map[K]float64, len(in))
	for k, t := range in {
		out[k] = t.Mean()
	}
	return out
}

// meanOf averages map values in sorted order so the float sum is reproducible.
func meanOf[K string | int](m map[K]float64) float64 {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	vals := make([]float64, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, m[k])
	}
	return Average(vals)
}
