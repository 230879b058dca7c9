package features

// Bounds is the global scalar {min, max} of a training matrix.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ComputeBounds scans every cell. Both bounds start at 0, so the range
// always contains 0 whatever the data.
func ComputeBounds(matrix [][]float64) Bounds {
	var b Bounds
	for _, row := range matrix {
		for _, v := range row {
			if v > b.Max {
				b.Max = v
			} else if v < b.Min {
				b.Min = v
			}
		}
	}
	return b
}

// Degenerate reports whether the bounds span no range.
func (b Bounds) Degenerate() bool { return b.Max == b.Min }

// Normalize maps v into [0,1] relative to the bounds; 0 when degenerate.
func (b Bounds) Normalize(v float64) float64 {
	if b.Degenerate() {
		return 0
	}
	return (v - b.Min) / (b.Max - b.Min)
}

// Denormalize maps a normalized value back onto the raw scale.
func (b Bounds) Denormalize(v float64) float64 {
	return v*(b.Max-b.Min) + b.Min
}

// Normalize returns a new matrix with every cell scaled by b. The input is
// left untouched and b is never recomputed.
func Normalize(matrix [][]float64, b Bounds) [][]float64 {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		n := make([]float64, len(row))
		for j, v := range row {
			n[j] = b.Normalize(v)
		}
		out[i] = n
	}
	return out
}
