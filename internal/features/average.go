package features

// Average returns the arithmetic mean of values, or 0 for an empty slice.
// Both aggregation and vector building rely on the empty case being 0.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
