package gae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func TestDiscountCumSum(t *testing.T) {
	got := discountCumSum([]float64{1, 2, 3}, 0.5, 4)
	assert.InDeltaSlice(t, []float64{3.25, 4.5, 5}, got, 1e-12)
}

func TestReturnsAndAdvantages(t *testing.T) {
	b, err := New(1, 1, 3, 1.0, 1.0)
	require.NoError(t, err)

	// A two step trajectory ending terminally, then one cut off
	require.NoError(t, b.Store([]float64{0}, []float64{1}, 1, 0, -0.1))
	require.NoError(t, b.Store([]float64{1}, []float64{2}, 1, 0, -0.2))
	b.FinishPath(0)
	require.NoError(t, b.Store([]float64{2}, []float64{0}, 1, 0, -0.3))
	assert.True(t, b.Full())

	_, err = b.Get()
	assert.Error(t, err, "unfinished trajectory")
	b.FinishPath(10)

	batch, err := b.Get()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 11}, batch.Returns)
	assert.Equal(t, []float64{-0.1, -0.2, -0.3}, batch.LogProb)
	assert.Equal(t, []float64{0, 1, 2}, batch.Obs)

	assert.InDelta(t, 0, floats.Sum(batch.Advantages), 1e-9)
	assert.InDelta(t, 1, stat.StdDev(batch.Advantages, nil), 1e-6)
	assert.Less(t, batch.Advantages[1], batch.Advantages[0])
	assert.Less(t, batch.Advantages[0], batch.Advantages[2])

	assert.Equal(t, 0, b.Len())
}

func TestStoreValidates(t *testing.T) {
	b, err := New(2, 1, 1, 0.95, 0.99)
	require.NoError(t, err)
	assert.Error(t, b.Store([]float64{0}, []float64{1}, 0, 0, 0))
	require.NoError(t, b.Store([]float64{0, 1}, []float64{1}, 0, 0, 0))
	assert.Error(t, b.Store([]float64{0, 1}, []float64{1}, 0, 0, 0))

	_, err = New(2, 1, 1, 1.5, 0.99)
	assert.Error(t, err)
}
