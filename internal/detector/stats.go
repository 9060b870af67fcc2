package detector

import (
	"math"
	"sort"
)

// percentileValue returns the value at the given percentile using
// nearest-rank selection: sort ascending, index = floor(n*p/100) clamped
// to the valid range.
func percentileValue(values []float64, percentile float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	index := int(float64(len(sorted)) * percentile / 100)
	if index > len(sorted)-1 {
		index = len(sorted) - 1
	}
	if index < 0 {
		index = 0
	}
	return sorted[index]
}

// percentileRank returns the fraction of values strictly below v, as 0-100.
func percentileRank(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 0
	}

	below := 0
	for _, x := range values {
		if x < v {
			below++
		}
	}
	return float64(below) / float64(len(values)) * 100
}

// mean returns the arithmetic mean of values (0 for an empty slice).
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev returns the sample standard deviation (n-1 denominator).
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
