package agent

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/environment"
	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/initwfn"
	"github.com/samuelfneumann/btcrl/network"
)

// Sequencer is an environment whose observations are sequences of
// equally sized steps, oldest first
type Sequencer interface {
	SeqLen() int
	StepFeatures() int
}

// InputShape returns the number of features in each step of an
// observation sequence of env and the number of steps in the sequence.
// Environments which are not Sequencers produce sequences of length 1.
func InputShape(env environment.Environment) (features, seqLen int) {
	if s, ok := env.(Sequencer); ok {
		return s.StepFeatures(), s.SeqLen()
	}
	return env.ObservationSpec().Shape.Len(), 1
}

// NetworkConfig returns the configuration of a network which maps
// observations of env to outputs values, with the layers described by
// the network hyperparameter and weights initialized as described by
// the init hyperparameter
func NetworkConfig(env environment.Environment, params hyper.Params,
	outputs int) (network.Config, error) {
	layers, err := network.ParseLayers(params["network"])
	if err != nil {
		return network.Config{}, fmt.Errorf("networkconfig: %v", err)
	}

	initParams, err := params.Map("init")
	if err != nil {
		return network.Config{}, fmt.Errorf("networkconfig: %v", err)
	}
	init, err := initwfn.FromParams(initParams)
	if err != nil {
		return network.Config{}, fmt.Errorf("networkconfig: %v", err)
	}

	features, seqLen := InputShape(env)
	if features*seqLen != env.ObservationSpec().Shape.Len() {
		return network.Config{}, fmt.Errorf("networkconfig: %v steps of %v "+
			"features do not match observations of size %v", seqLen,
			features, env.ObservationSpec().Shape.Len())
	}

	return network.Config{
		Features: features,
		SeqLen:   seqLen,
		Outputs:  outputs,
		Layers:   layers,
		Init:     init,
	}, nil
}

// DiscreteActions returns the number of actions of env, or an error if
// env does not have a single discrete action enumerated from 0
func DiscreteActions(env environment.Environment) (int, error) {
	spec := env.ActionSpec()
	if spec.Cardinality != environment.Discrete {
		return 0, fmt.Errorf("discreteactions: cannot use non-discrete " +
			"actions")
	}
	if spec.LowerBound.Len() > 1 {
		return 0, fmt.Errorf("discreteactions: actions must be " +
			"1-dimensional")
	}
	if spec.LowerBound.AtVec(0) != 0.0 {
		return 0, fmt.Errorf("discreteactions: actions must be " +
			"enumerated starting from 0")
	}
	return spec.NumActions(), nil
}
