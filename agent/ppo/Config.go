package ppo

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/environment"
	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/network"
	"github.com/samuelfneumann/btcrl/solver"
)

func init() {
	agent.Register(agent.PPO, func(env environment.Environment,
		params hyper.Params, seed uint64) (agent.Agent, error) {
		c, err := ConfigFromParams(env, params)
		if err != nil {
			return nil, err
		}
		return New(env, c, seed)
	})
}

// Config implements a configuration for a PPO agent
type Config struct {
	Policy network.Config
	Critic network.Config

	PolicySolver *solver.Solver
	CriticSolver *solver.Solver

	BatchSize         int // Timesteps collected between updates
	OptimizationSteps int // Gradient steps taken on each batch
	Discount          float64
	Lambda            float64 // GAE(λ)
	Clipping          float64 // Likelihood ratio clipping ε
}

// Validate checks a Config to ensure it is a valid configuration of a
// PPO agent.
func (c Config) Validate() error {
	switch {
	case c.PolicySolver == nil || c.CriticSolver == nil:
		return fmt.Errorf("validate: no solver")
	case c.BatchSize < 1 || c.OptimizationSteps < 1:
		return fmt.Errorf("validate: batch size (%v) and optimization "+
			"steps (%v) must be positive", c.BatchSize, c.OptimizationSteps)
	case c.Clipping <= 0 || c.Clipping >= 1:
		return fmt.Errorf("validate: likelihood ratio clipping must be in "+
			"(0, 1), have %v", c.Clipping)
	case c.Critic.Outputs != 1:
		return fmt.Errorf("validate: critic must predict a single value")
	}
	return nil
}

// ConfigFromParams creates a Config for an agent acting in env from a
// flat map of hyperparameters. The policy and critic share the layers
// described by the network hyperparameter.
func ConfigFromParams(env environment.Environment,
	params hyper.Params) (Config, error) {
	numActions, err := agent.DiscreteActions(env)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}

	policyNet, err := agent.NetworkConfig(env, params, numActions)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	critic := policyNet
	critic.Outputs = 1

	optimizer, err := params.Map("optimizer")
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	lr, err := params.Float("learning_rate", 0.001)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	policySolver, err := solver.FromParams(optimizer, lr, 1)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	criticSolver, err := solver.FromParams(optimizer, lr, 1)
	if err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}

	c := Config{
		Policy:       policyNet,
		Critic:       critic,
		PolicySolver: policySolver,
		CriticSolver: criticSolver,
	}

	if c.BatchSize, err = params.Int("batch_size", 150); err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	if c.OptimizationSteps, err = params.Int("optimization_steps",
		10); err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	if c.Discount, err = params.Float("discount", 0.99); err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	if c.Lambda, err = params.Float("gae_lambda", 0.97); err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}
	if c.Clipping, err = params.Float("likelihood_ratio_clipping",
		0.2); err != nil {
		return Config{}, fmt.Errorf("configfromparams: %v", err)
	}

	return c, c.Validate()
}
