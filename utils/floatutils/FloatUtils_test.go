package floatutils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, Median([]float64{5, 1, 4, 2, 3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 7.0, Median([]float64{7}))
	assert.True(t, math.IsNaN(Median(nil)))

	values := []float64{3, 1, 2}
	Median(values)
	assert.Equal(t, []float64{3, 1, 2}, values, "argument must not be sorted")
}

func TestTail(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7}
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, Tail(values, 5))
	assert.Equal(t, []float64{1, 2}, Tail([]float64{1, 2}, 5))
	assert.Empty(t, Tail(values, 0))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.2, Round(1.25, 1))
	assert.Equal(t, 1.4, Round(1.35, 1))
	assert.Equal(t, 1000.57, Round(1000.5749, 2))
	assert.Equal(t, -2.0, Round(-2.5, 0))
	assert.True(t, math.IsNaN(Round(math.NaN(), 2)))
}

func TestMaxSlice(t *testing.T) {
	max, indices := MaxSlice([]float64{1, 3, 2, 3})
	assert.Equal(t, 3.0, max)
	assert.Equal(t, []int{1, 3}, indices)
}
