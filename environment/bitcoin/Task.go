package bitcoin

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/btcrl/environment"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// Indices into the underlying portfolio state vector that Tasks receive
const (
	CashIndex = iota
	UnitsIndex
	PriceIndex
	CursorIndex
	TotalIndex

	StateDims
)

// RewardType names a reward scheme
type RewardType string

const (
	// Delta rewards the change in portfolio total over a single step
	Delta RewardType = "delta"

	// Absolute rewards the portfolio total relative to the starting cash
	// on every step
	Absolute RewardType = "absolute"
)

// total returns the cash plus holdings value of a portfolio state
func total(state mat.Vector) float64 {
	return state.AtVec(CashIndex) + state.AtVec(UnitsIndex)*state.AtVec(PriceIndex)
}

// newState returns a portfolio state vector
func newState(cash, units, price float64, cursor int) *mat.VecDense {
	state := make([]float64, StateDims)
	state[CashIndex] = cash
	state[UnitsIndex] = units
	state[PriceIndex] = price
	state[CursorIndex] = float64(cursor)
	state[TotalIndex] = cash + units*price
	return mat.NewVecDense(StateDims, state)
}

// score holds what DeltaScore and AbsoluteScore share: the start state
// distribution and the episode enders.
type score struct {
	environment.Starter
	environment.Enders

	initialCash float64
}

// newScore returns the shared part of both reward schemes. Episodes
// end, in order of precedence, when the portfolio total falls below
// ruin*initialCash, when the last price of the series is reached, or
// when stepLimit steps have been taken.
func newScore(s environment.Starter, stepLimit, seriesLen int,
	initialCash, ruin float64) score {
	bankrupt := environment.NewIntervalLimit(
		[]r1.Interval{{Min: ruin * initialCash, Max: math.Inf(1)}},
		[]int{TotalIndex},
		ts.TerminalStateReached,
	)

	lastPrice := float64(seriesLen - 1)
	exhausted := environment.NewFunctionEnder(func(state *mat.VecDense) bool {
		return state.AtVec(CursorIndex) >= lastPrice
	}, ts.Timeout)

	return score{
		Starter:     s,
		Enders:      environment.Enders{bankrupt, exhausted, environment.NewStepLimit(stepLimit)},
		initialCash: initialCash,
	}
}

// RewardSpec returns the reward specification of the task
func (s score) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{-1.0})
	upperBound := mat.NewVecDense(1, []float64{math.Inf(1)})

	return environment.NewSpec(shape, environment.Reward, lowerBound,
		upperBound, environment.Continuous)
}

// DeltaScore rewards each step with the change in portfolio total,
// expressed as a fraction of the starting cash.
type DeltaScore struct {
	score
}

// NewDeltaScore returns a new DeltaScore task
func NewDeltaScore(s environment.Starter, stepLimit, seriesLen int,
	initialCash, ruin float64) environment.Task {
	return &DeltaScore{newScore(s, stepLimit, seriesLen, initialCash, ruin)}
}

// GetReward returns the reward for moving from state to nextState
func (d *DeltaScore) GetReward(state, _, nextState *mat.VecDense) float64 {
	return (total(nextState) - total(state)) / d.initialCash
}

// AbsoluteScore rewards each step with the total profit made so far
// in the episode, expressed as a fraction of the starting cash.
type AbsoluteScore struct {
	score
}

// NewAbsoluteScore returns a new AbsoluteScore task
func NewAbsoluteScore(s environment.Starter, stepLimit, seriesLen int,
	initialCash, ruin float64) environment.Task {
	return &AbsoluteScore{newScore(s, stepLimit, seriesLen, initialCash, ruin)}
}

// GetReward returns the reward for moving from state to nextState
func (a *AbsoluteScore) GetReward(_, _, nextState *mat.VecDense) float64 {
	return (total(nextState) - a.initialCash) / a.initialCash
}

// NewTask returns the task for the named reward scheme
func NewTask(r RewardType, s environment.Starter, stepLimit, seriesLen int,
	initialCash, ruin float64) (environment.Task, error) {
	switch r {
	case Delta, "":
		return NewDeltaScore(s, stepLimit, seriesLen, initialCash, ruin), nil
	case Absolute:
		return NewAbsoluteScore(s, stepLimit, seriesLen, initialCash, ruin), nil
	}
	return nil, fmt.Errorf("newtask: unknown reward type %q", r)
}
