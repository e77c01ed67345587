// Package policy implements policies which select discrete actions
// from the outputs of a neural network.
//
// Each policy owns a network with a batch size of 1 and a VM over its
// graph. Learners keep the weights of a policy's network up to date
// by calling Set with the network they train.
package policy

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/exploration"
	"github.com/samuelfneumann/btcrl/network"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/samuelfneumann/btcrl/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// EGreedy implements an epsilon greedy policy over the action values
// predicted by a neural network. Given an environment with N actions,
// the network produces N outputs, each predicting the value of a
// distinct action. Epsilon follows an exploration schedule indexed by
// the number of actions selected in training mode.
type EGreedy struct {
	network.NeuralNet
	vm G.VM

	schedule exploration.Schedule
	steps    int
	eval     bool

	rng *rand.Rand
}

// NewEGreedy returns a new EGreedy policy using the action values
// predicted by net, which must have a batch size of 1
func NewEGreedy(net network.NeuralNet, schedule exploration.Schedule,
	seed uint64) (*EGreedy, error) {
	if net.BatchSize() != 1 {
		return nil, fmt.Errorf("newegreedy: policy network must have a "+
			"batch size of 1, have %v", net.BatchSize())
	}

	return &EGreedy{
		NeuralNet: net,
		vm:        G.NewTapeMachine(net.Graph()),
		schedule:  schedule,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// ActionValues returns the predicted value of each action given the
// observation obs
func (e *EGreedy) ActionValues(obs []float64) ([]float64, error) {
	return forward(e.NeuralNet, e.vm, obs)
}

// Epsilon returns the current probability of selecting a random
// action. It is 0 in evaluation mode.
func (e *EGreedy) Epsilon() float64 {
	if e.eval {
		return 0
	}
	return e.schedule.Value(e.steps)
}

// SelectAction selects an action in the timestep t. If multiple
// actions have the maximum value, one of them is returned at random.
func (e *EGreedy) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	values, err := e.ActionValues(t.Observation.RawVector().Data)
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}

	epsilon := e.Epsilon()
	if !e.eval {
		e.steps++
	}

	var action int
	if e.rng.Float64() < epsilon {
		action = e.rng.Intn(len(values))
	} else {
		_, maxIndices := floatutils.MaxSlice(values)
		action = maxIndices[e.rng.Intn(len(maxIndices))]
	}

	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// Eval sets the policy to act greedily
func (e *EGreedy) Eval() {
	e.eval = true
}

// Train sets the policy to explore
func (e *EGreedy) Train() {
	e.eval = false
}

// IsEval returns whether the policy is in evaluation mode
func (e *EGreedy) IsEval() bool {
	return e.eval
}

// Close closes the policy's VM
func (e *EGreedy) Close() error {
	return e.vm.Close()
}

// forward runs the graph of net on a single input and returns a copy
// of the network's output
func forward(net network.NeuralNet, vm G.VM, obs []float64) ([]float64,
	error) {
	if err := net.SetInput(obs); err != nil {
		return nil, err
	}
	defer vm.Reset()
	if err := vm.RunAll(); err != nil {
		return nil, err
	}

	out := net.Output().Data().([]float64)
	values := make([]float64, len(out))
	copy(values, out)
	return values, nil
}
