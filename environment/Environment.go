// Package environment outlines the interfaces and structs needed to implement
// concrete environments
package environment

import (
	"github.com/samuelfneumann/btcrl/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode should end. If End returns true, it
// must also set the StepType of the argument TimeStep to timestep.Last
// and record why the episode ended.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some
// environment. The state vectors passed to GetReward are the
// environment's underlying state, which need not be what the agent
// observes.
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState *mat.VecDense) float64
	RewardSpec() Spec
}

// Environment implements a simulated environment, which includes a Task to
// complete
type Environment interface {
	Reset() (timestep.TimeStep, error) // Resets between episodes
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)
	CurrentTimeStep() timestep.TimeStep
	RewardSpec() Spec
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}

// Enders ends an episode as soon as any one of its Enders would. Enders
// are checked in order, so earlier Enders decide the end type when more
// than one condition holds on the same step.
type Enders []Ender

// End implements the Ender interface
func (e Enders) End(t *timestep.TimeStep) bool {
	for _, ender := range e {
		if ender.End(t) {
			return true
		}
	}
	return false
}
