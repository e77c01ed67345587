package deepq

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/environment"
	"github.com/samuelfneumann/btcrl/exploration"
	"github.com/samuelfneumann/btcrl/expreplay"
	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/network"
	"github.com/samuelfneumann/btcrl/solver"
)

func init() {
	agent.Register(agent.DQN, func(env environment.Environment,
		params hyper.Params, seed uint64) (agent.Agent, error) {
		c, err := ConfigFromParams(env, params)
		if err != nil {
			return nil, err
		}
		return New(env, c, seed)
	})
}

// Config implements a configuration for a DeepQ agent
type Config struct {
	Network     network.Config
	Solver      *solver.Solver
	Exploration exploration.Schedule
	ExpReplay   expreplay.Config

	Discount  float64
	DoubleDQN bool
	ClipLoss  float64 // Huber loss threshold, squared error if 0

	UpdateFrequency       int // Environment steps between updates
	RepeatUpdate          int // Gradient steps per update
	TargetUpdateFrequency int // Gradient steps between target syncs
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.SampleSize
}

// Validate checks a Config to ensure it is a valid configuration of a
// DeepQ agent.
func (c Config) Validate() error {
	switch {
	case c.Solver == nil:
		return fmt.Errorf("validate: no solver")
	case c.Exploration == nil:
		return fmt.Errorf("validate: no exploration schedule")
	case c.Discount < 0 || c.Discount > 1:
		return fmt.Errorf("validate: discount must be in [0, 1], have %v",
			c.Discount)
	case c.UpdateFrequency < 1 || c.RepeatUpdate < 1:
		return fmt.Errorf("validate: update frequency (%v) and repeat "+
			"updates (%v) must be positive", c.UpdateFrequency, c.RepeatUpdate)
	case c.TargetUpdateFrequency < 1:
		return fmt.Errorf("validate: target networks must be updated at "+
			"positive intervals \n\twant(>0) \n\thave(%v)",
			c.TargetUpdateFrequency)
	}
	return nil
}

// ConfigFromParams creates a Config for an agent acting in env from a
// flat map of hyperparameters
func ConfigFromParams(env environment.Environment,
	params hyper.Params) (Config, error) {
	numActions, err := agent.DiscreteActions(env)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}

	net, err := agent.NetworkConfig(env, params, numActions)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}

	replay, err := expreplay.FromParams(params)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}

	explore, err := params.Map("exploration")
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	schedule, err := exploration.FromParams(explore)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}

	optimizer, err := params.Map("optimizer")
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	lr, err := params.Float("learning_rate", 0.00025)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	// Losses are already averaged over the batch
	s, err := solver.FromParams(optimizer, lr, 1)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}

	c := Config{
		Network:     net,
		Solver:      s,
		Exploration: schedule,
		ExpReplay:   replay,
	}

	floats := []struct {
		key string
		def float64
		dst *float64
	}{
		{"discount", 0.99, &c.Discount},
		{"clip_loss", 0.0, &c.ClipLoss},
	}
	for _, f := range floats {
		if *f.dst, err = params.Float(f.key, f.def); err != nil {
			return Config{}, fmt.Errorf("configfromparams: %v", err)
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"update_frequency", 4, &c.UpdateFrequency},
		{"repeat_update", 1, &c.RepeatUpdate},
		{"target_update_frequency", 10000, &c.TargetUpdateFrequency},
	}
	for _, i := range ints {
		if *i.dst, err = params.Int(i.key, i.def); err != nil {
			return Config{}, fmt.Errorf("configfromparams: %v", err)
		}
	}

	if c.DoubleDQN, err = params.Bool("double_dqn", false); err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}

	return c, c.Validate()
}
