// Package exploration implements schedules for the probability of
// taking a random action.
package exploration

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/utils/floatutils"
)

// Schedule returns the exploration rate to use at a given timestep
type Schedule interface {
	Value(timestep int) float64
}

// Constant is a Schedule that never changes
type Constant float64

// Value implements the Schedule interface
func (c Constant) Value(int) float64 {
	return float64(c)
}

// EpsilonDecay linearly anneals epsilon from Start to Final over
// Timesteps steps, then holds it at Final
type EpsilonDecay struct {
	Start     float64
	Final     float64
	Timesteps int
}

// Value implements the Schedule interface
func (e EpsilonDecay) Value(timestep int) float64 {
	if e.Timesteps <= 0 || timestep >= e.Timesteps {
		return e.Final
	}
	if timestep <= 0 {
		return e.Start
	}

	frac := float64(timestep) / float64(e.Timesteps)
	lo, hi := e.Final, e.Start
	if lo > hi {
		lo, hi = hi, lo
	}
	return floatutils.Clip(e.Start+frac*(e.Final-e.Start), lo, hi)
}

// FromParams creates a Schedule from an exploration configuration such
// as
//
//	{type: epsilon_decay, epsilon: 1.0, epsilon_final: 0.1,
//	 epsilon_timesteps: 100000}
//
// An empty configuration disables exploration.
func FromParams(p hyper.Params) (Schedule, error) {
	name, err := p.Str("type", "")
	if err != nil {
		return nil, fmt.Errorf("fromparams: %v", err)
	}

	epsilon, err := p.Float("epsilon", 0.1)
	if err != nil {
		return nil, fmt.Errorf("fromparams: %v", err)
	}

	switch name {
	case "":
		return Constant(0), nil

	case "constant", "epsilon":
		return Constant(epsilon), nil

	case "epsilon_decay":
		final, err := p.Float("epsilon_final", 0.1)
		if err != nil {
			return nil, fmt.Errorf("fromparams: %v", err)
		}
		steps, err := p.Int("epsilon_timesteps", 10000)
		if err != nil {
			return nil, fmt.Errorf("fromparams: %v", err)
		}
		if epsilon < 0 || epsilon > 1 || final < 0 || final > 1 {
			return nil, fmt.Errorf("fromparams: epsilon values must be in "+
				"[0, 1], have %v and %v", epsilon, final)
		}
		return EpsilonDecay{Start: epsilon, Final: final, Timesteps: steps}, nil
	}

	return nil, fmt.Errorf("fromparams: unknown exploration type %q", name)
}
