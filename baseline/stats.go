package baseline

import (
	"math"
	"sort"
)

// mean returns the arithmetic mean of values
func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev returns the sample standard deviation (n-1 denominator).
// A single value has no spread and is treated as 0 by convention.
func sampleStdDev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// percentiles returns the 25th and 75th percentile via nearest-rank indexing
// on the sorted sample list (index n/4 and 3n/4, not interpolated). This is a
// boundary policy shared with downstream tooling, not a general estimator.
func percentiles(values []float64) (p25, p75 float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	p25 = sorted[n/4]
	p75 = sorted[(3*n)/4]
	return p25, p75
}
