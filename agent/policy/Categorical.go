package policy

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/btcrl/network"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/samuelfneumann/btcrl/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
)

// Categorical implements a softmax policy over the logits predicted by
// a neural network. In evaluation mode the most probable action is
// selected.
type Categorical struct {
	network.NeuralNet
	vm G.VM

	eval bool
	src  rand.Source
}

// NewCategorical returns a new Categorical policy using the logits
// predicted by net, which must have a batch size of 1
func NewCategorical(net network.NeuralNet, seed uint64) (*Categorical,
	error) {
	if net.BatchSize() != 1 {
		return nil, fmt.Errorf("newcategorical: policy network must have a "+
			"batch size of 1, have %v", net.BatchSize())
	}

	return &Categorical{
		NeuralNet: net,
		vm:        G.NewTapeMachine(net.Graph()),
		src:       rand.NewSource(seed),
	}, nil
}

// LogProbs returns the log probability of each action given the
// observation obs
func (c *Categorical) LogProbs(obs []float64) ([]float64, error) {
	logits, err := forward(c.NeuralNet, c.vm, obs)
	if err != nil {
		return nil, err
	}
	return LogSoftmax(logits), nil
}

// Sample selects an action given the observation obs, returning the
// action and its log probability
func (c *Categorical) Sample(obs []float64) (int, float64, error) {
	logProbs, err := c.LogProbs(obs)
	if err != nil {
		return 0, 0, fmt.Errorf("sample: %v", err)
	}

	if c.eval {
		_, maxIndices := floatutils.MaxSlice(logProbs)
		return maxIndices[0], logProbs[maxIndices[0]], nil
	}

	probs := make([]float64, len(logProbs))
	for i, lp := range logProbs {
		probs[i] = math.Exp(lp)
	}
	action := int(distuv.NewCategorical(probs, c.src).Rand())
	return action, logProbs[action], nil
}

// SelectAction selects an action in the timestep t
func (c *Categorical) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	action, _, err := c.Sample(t.Observation.RawVector().Data)
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}
	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// Eval sets the policy to act greedily
func (c *Categorical) Eval() {
	c.eval = true
}

// Train sets the policy to sample actions
func (c *Categorical) Train() {
	c.eval = false
}

// IsEval returns whether the policy is in evaluation mode
func (c *Categorical) IsEval() bool {
	return c.eval
}

// Close closes the policy's VM
func (c *Categorical) Close() error {
	return c.vm.Close()
}

// LogSoftmax returns the log softmax of logits
func LogSoftmax(logits []float64) []float64 {
	lse := floats.LogSumExp(logits)
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = l - lse
	}
	return out
}
