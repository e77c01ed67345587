package tracker

import (
	"fmt"

	ts "github.com/samuelfneumann/btcrl/timestep"
)

// Return tracks and saves the episodic return in an experiment. When
// an environment returns a TimeStep, this Tracker will extract the
// reward and accumulate the return for each episode in the experiment.
//
// Note: An episode must finish for this Tracker to record its return.
// An episode that is abandoned part way through, for example because
// the experiment was cancelled, is discarded when the next episode's
// first TimeStep is tracked.
type Return struct {
	lastTimeStep   int
	currentReturn  float64
	episodeReturns []float64
	filename       string
}

// NewReturn creates and returns a new *Return Tracker which saves its
// data at filename. If filename is empty the data is tracked but
// cannot be saved.
func NewReturn(filename string) *Return {
	return &Return{
		lastTimeStep: -1,
		filename:     filename,
	}
}

// Track tracks the rewards seen on a timestep. By calling this method
// on every timestep, the Tracker will store all rewards seen in the
// episode, and save the cumulative reward for that episode as the
// episodic return.
//
// Track returns an error if it is called for non-sequential timesteps
func (r *Return) Track(step ts.TimeStep) error {
	if step.First() {
		r.currentReturn = 0
		r.lastTimeStep = -1
	}

	if r.lastTimeStep+1 != step.Number {
		return fmt.Errorf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v were tracked",
			r.lastTimeStep, step.Number)
	}

	r.currentReturn += step.Reward
	r.lastTimeStep = step.Number

	// Episode has ended, cache the return and begin tracking the
	// return for a new episode
	if step.Last() {
		r.episodeReturns = append(r.episodeReturns, r.currentReturn)
		r.currentReturn = 0.0
		r.lastTimeStep = -1
	}
	return nil
}

// Data returns the return of every finished episode, oldest first
func (r *Return) Data() []float64 {
	return r.episodeReturns
}

// Save saves the data tracked by the Return Tracker to disk.
func (r *Return) Save() error {
	if r.filename == "" {
		return fmt.Errorf("save: no file to save returns to")
	}
	return Save(r.filename, r.episodeReturns)
}
