// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Clip clips a floating point to within a minimum and maximum value.
// If the floating point exceeds max, then the function returns the max
// If min exceeds the floating point, then the function returns the min
func Clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// Max gets the maximum value and indices of the maximum values in
// a slice of float64.
func MaxSlice(values []float64) (max float64, indices []int) {
	max, indices = values[0], []int{0}

	for i, value := range values[1:] {
		if value > max {
			max = value
			indices = []int{i + 1}
		} else if value == max {
			indices = append(indices, i+1)
		}
	}
	return
}

// Tail returns the last n elements of values, or all of values if it
// has fewer than n elements. The returned slice shares memory with
// values.
func Tail(values []float64, n int) []float64 {
	if n < 0 {
		n = 0
	}
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

// Median returns the median of values, averaging the two middle
// values when there is an even number of them. The median of an empty
// slice is NaN. The argument is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Round rounds x to places decimal places, with halves rounded to the
// nearest even digit. NaN and infinities are returned unchanged.
func Round(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	rounded, _ := decimal.NewFromFloat(x).RoundBank(places).Float64()
	return rounded
}

// Ints converts a slice of ints to a slice of float64
func Ints(values []int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
