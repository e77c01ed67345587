// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes why an episode ended
type EndType int

const (
	// Unknown is the end type of any step that is not the last
	Unknown EndType = iota

	// TerminalStateReached means the episode reached a true terminal
	// state, e.g. the portfolio went bankrupt
	TerminalStateReached

	// Timeout means the episode was cut off by a step limit or because
	// the underlying price data ran out
	Timeout
)

func (e EndType) String() string {
	switch e {
	case TerminalStateReached:
		return "TerminalStateReached"
	case Timeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType
	Reward      float64
	Discount    float64
	Observation *mat.VecDense
	Number      int
	endType     EndType
}

// New returns a new TimeStep
func New(t StepType, r, d float64, o *mat.VecDense, n int) TimeStep {
	return TimeStep{StepType: t, Reward: r, Discount: d, Observation: o,
		Number: n}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd sets the reason the episode ended
func (t *TimeStep) SetEnd(e EndType) {
	t.endType = e
}

// EndType returns the reason the episode ended, or Unknown if the
// TimeStep is not the last in the episode
func (t *TimeStep) EndType() EndType {
	return t.endType
}

// TerminalEnd returns whether the episode ended by reaching a true
// terminal state. Value targets should only bootstrap off states that
// are not terminal.
func (t *TimeStep) TerminalEnd() bool {
	return t.Last() && t.endType == TerminalStateReached
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}

// Transition is a single (S, A, R, γ, S', A') tuple of experience
type Transition struct {
	State      *mat.VecDense
	Action     *mat.VecDense
	Reward     float64
	Discount   float64
	NextState  *mat.VecDense
	NextAction *mat.VecDense
}

// NewTransition builds a Transition from two consecutive timesteps and
// the actions taken in each. The reward and discount are taken from
// the second timestep, since they are produced by taking the first
// action. If next ended the episode in a terminal state, the discount
// is zeroed so that no bootstrapping happens off of next.
func NewTransition(step TimeStep, action *mat.VecDense, next TimeStep,
	nextAction *mat.VecDense) Transition {
	discount := next.Discount
	if next.TerminalEnd() {
		discount = 0.0
	}

	return Transition{
		State:      step.Observation,
		Action:     action,
		Reward:     next.Reward,
		Discount:   discount,
		NextState:  next.Observation,
		NextAction: nextAction,
	}
}
