// Package experiment implements functionality for running an experiment
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/environment"
	"github.com/samuelfneumann/btcrl/experiment/tracker"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/samuelfneumann/btcrl/utils/floatutils"
)

// EpisodeFinished is called by a Runner after every finished episode.
// Returning false stops the Runner before the next episode. Returning
// an error stops the Runner, which then returns the error.
type EpisodeFinished func(r *Runner) (bool, error)

// Runner runs an agent online on an environment, one episode at a
// time. No offline evaluation is performed.
//
// The Runner always tracks the return and length of each episode so
// that episode callbacks can summarise them. Extra Trackers may be
// registered to record other data, which is saved with Save.
type Runner struct {
	env   environment.Environment
	agent agent.Agent

	returns  *tracker.Return
	lengths  *tracker.EpisodeLength
	trackers []tracker.Tracker

	episode   int
	timesteps int
	durations []time.Duration
}

// NewRunner creates a new Runner of agent a on environment e. Each
// Tracker in t is sent every TimeStep of the experiment.
func NewRunner(a agent.Agent, e environment.Environment,
	t ...tracker.Tracker) *Runner {
	return &Runner{
		env:      e,
		agent:    a,
		returns:  tracker.NewReturn(""),
		lengths:  tracker.NewEpisodeLength(""),
		trackers: t,
	}
}

// Register registers a tracker.Tracker with the Runner so that data
// generated during the experiment can be tracked and saved
func (r *Runner) Register(t tracker.Tracker) {
	r.trackers = append(r.trackers, t)
}

// Run runs episodes episodes, calling fn after each one. Run stops
// early if fn asks it to, if fn returns an error, or if ctx is done.
// Cancellation is checked before each environment step.
func (r *Runner) Run(ctx context.Context, episodes int,
	fn EpisodeFinished) error {
	if episodes < 1 {
		return fmt.Errorf("run: episodes must be positive, have %v",
			episodes)
	}

	for i := 0; i < episodes; i++ {
		if err := r.RunEpisode(ctx); err != nil {
			return fmt.Errorf("run: episode %v: %w", r.episode+1, err)
		}

		if fn == nil {
			continue
		}
		cont, err := fn(r)
		if err != nil {
			return fmt.Errorf("run: episode %v: %w", r.episode, err)
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// RunEpisode runs a single episode of the experiment
func (r *Runner) RunEpisode(ctx context.Context) error {
	start := time.Now()

	step, err := r.env.Reset()
	if err != nil {
		return fmt.Errorf("runEpisode: could not reset environment: %w", err)
	}
	if err := r.agent.ObserveFirst(step); err != nil {
		return fmt.Errorf("runEpisode: %w", err)
	}
	if err := r.track(step); err != nil {
		return fmt.Errorf("runEpisode: %w", err)
	}

	for !step.Last() {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Select action, step in environment
		action, err := r.agent.SelectAction(step)
		if err != nil {
			return fmt.Errorf("runEpisode: could not select action: %w", err)
		}
		step, _, err = r.env.Step(action)
		if err != nil {
			return fmt.Errorf("runEpisode: could not step environment: %w",
				err)
		}
		r.timesteps++

		if err := r.track(step); err != nil {
			return fmt.Errorf("runEpisode: %w", err)
		}

		// Observe the timestep and step the agent
		if err := r.agent.Observe(action, step); err != nil {
			return fmt.Errorf("runEpisode: %w", err)
		}
		if err := r.agent.Step(); err != nil {
			return fmt.Errorf("runEpisode: could not update agent: %w", err)
		}
	}

	r.agent.EndEpisode()
	r.episode++
	r.durations = append(r.durations, time.Since(start))
	return nil
}

// track tracks the current timestep by sending it to each Tracker
func (r *Runner) track(t ts.TimeStep) error {
	if err := r.returns.Track(t); err != nil {
		return err
	}
	if err := r.lengths.Track(t); err != nil {
		return err
	}
	for _, tr := range r.trackers {
		if err := tr.Track(t); err != nil {
			return err
		}
	}
	return nil
}

// Save saves all the data cached by the registered Trackers to disk
func (r *Runner) Save() error {
	for _, tr := range r.trackers {
		if err := tr.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}

// Episode returns the number of finished episodes, which is also the
// 1-based index of the most recently finished episode
func (r *Runner) Episode() int {
	return r.episode
}

// Timesteps returns the number of environment steps taken over all
// episodes
func (r *Runner) Timesteps() int {
	return r.timesteps
}

// EpisodeRewards returns the return of every finished episode
func (r *Runner) EpisodeRewards() []float64 {
	return r.returns.Data()
}

// EpisodeLengths returns the number of steps of every finished episode
func (r *Runner) EpisodeLengths() []int {
	return r.lengths.Data()
}

// EpisodeDurations returns the wall clock time taken by every finished
// episode
func (r *Runner) EpisodeDurations() []time.Duration {
	return r.durations
}

// MedianReward returns the median return of the last n finished
// episodes, or NaN if no episode has finished
func (r *Runner) MedianReward(n int) float64 {
	return floatutils.Median(floatutils.Tail(r.EpisodeRewards(), n))
}

// Environment returns the environment the Runner steps
func (r *Runner) Environment() environment.Environment {
	return r.env
}

// Agent returns the agent the Runner runs
func (r *Runner) Agent() agent.Agent {
	return r.agent
}
