package timestep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewTransitionZeroesTerminalDiscount(t *testing.T) {
	s := New(First, 0, 0.99, mat.NewVecDense(2, []float64{1, 2}), 0)
	a := mat.NewVecDense(1, []float64{1})

	next := New(Last, -1, 0.99, mat.NewVecDense(2, []float64{3, 4}), 1)
	next.SetEnd(TerminalStateReached)

	tr := NewTransition(s, a, next, a)
	assert.Equal(t, -1.0, tr.Reward)
	assert.Equal(t, 0.0, tr.Discount)
	assert.True(t, mat.Equal(next.Observation, tr.NextState))
}

func TestNewTransitionKeepsDiscountOnTimeout(t *testing.T) {
	s := New(Mid, 0, 0.99, mat.NewVecDense(1, []float64{1}), 3)
	next := New(Last, 2, 0.99, mat.NewVecDense(1, []float64{2}), 4)
	next.SetEnd(Timeout)

	tr := NewTransition(s, nil, next, nil)
	assert.Equal(t, 0.99, tr.Discount)
	assert.False(t, next.TerminalEnd())
	assert.Equal(t, "Timeout", next.EndType().String())
}
