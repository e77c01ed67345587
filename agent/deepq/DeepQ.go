// Package deepq implements the deep Q-network (DQN) agent with
// optional double Q-learning targets and prioritized experience replay.
package deepq

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/agent/policy"
	"github.com/samuelfneumann/btcrl/environment"
	"github.com/samuelfneumann/btcrl/expreplay"
	"github.com/samuelfneumann/btcrl/network"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/samuelfneumann/btcrl/utils/floatutils"
	"github.com/samuelfneumann/btcrl/utils/op"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DeepQ implements the DQN algorithm. The update target for a
// transition (S, A, R, γ, S') is
//
//	R + discount * γ * Q_target(S', argmax_a Q(S', a))
//
// when using double Q-learning, or R + discount * γ * max_a
// Q_target(S', a) otherwise. The loss is the Huber loss of the TD
// error, weighted by the importance sampling weight of each sampled
// transition.
type DeepQ struct {
	// Behaviour egreedy policy, or greedy in evaluation mode
	behaviour *policy.EGreedy

	// Network whose weights are adapted
	trainNet   network.NeuralNet
	trainNetVM G.VM
	solver     G.Solver

	// Network that provides the update target for a batch of inputs.
	// Its weights are synced with trainNet every targetUpdateFrequency
	// gradient steps.
	targetNet   network.NeuralNet
	targetNetVM G.VM

	// Copy of trainNet without dropout which selects the next actions
	// for double Q-learning targets
	onlineNet   network.NeuralNet
	onlineNetVM G.VM

	// Inputs to the training graph
	selectedActions *G.Node // One-hot actions taken in the sampled states
	targets         *G.Node
	weights         *G.Node

	tdErrorVal G.Value
	lossVal    G.Value

	replay expreplay.ExperienceReplayer

	numActions int
	batchSize  int
	discount   float64
	doubleDQN  bool

	updateFrequency       int
	repeatUpdate          int
	targetUpdateFrequency int
	steps                 int
	gradientSteps         int

	// Previous timestep to add transitions to the replay buffer
	prevStep    ts.TimeStep
	hasPrevStep bool
}

// New creates and returns a new DeepQ agent
func New(env environment.Environment, c Config, seed uint64) (*DeepQ,
	error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	numActions := c.Network.Outputs
	batchSize := c.BatchSize()

	// Behaviour network for selecting actions
	behaviourNet, err := network.New(c.Network, 1, G.NewGraph(), false)
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour network: %v",
			err)
	}
	behaviour, err := policy.NewEGreedy(behaviourNet, c.Exploration, seed)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	targetNet, err := behaviourNet.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target network: %v",
			err)
	}
	onlineNet, err := behaviourNet.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create online network: %v",
			err)
	}
	trainNet, err := behaviourNet.CloneForTraining(batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create learning network: %v",
			err)
	}
	gTrain := trainNet.Graph()

	selectedActions := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("actionSelected"),
		G.WithInit(G.Zeroes()))
	targets := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("targets"), G.WithInit(G.Zeroes()))
	weights := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("weights"), G.WithInit(G.Ones()))

	// Action values of the actions taken
	selectedActionsValue := G.Must(G.HadamardProd(trainNet.Prediction(),
		selectedActions))
	selectedActionsValue = G.Must(G.Sum(selectedActionsValue, 1))

	tdErrors := G.Must(G.Sub(targets, selectedActionsValue))
	losses, err := op.Huber(tdErrors, c.ClipLoss)
	if err != nil {
		return nil, fmt.Errorf("new: could not compute loss: %v", err)
	}
	losses = G.Must(G.HadamardProd(losses, weights))
	cost := G.Must(G.Mean(losses))

	d := &DeepQ{
		behaviour:             behaviour,
		trainNet:              trainNet,
		solver:                c.Solver,
		targetNet:             targetNet,
		targetNetVM:           G.NewTapeMachine(targetNet.Graph()),
		onlineNet:             onlineNet,
		onlineNetVM:           G.NewTapeMachine(onlineNet.Graph()),
		selectedActions:       selectedActions,
		targets:               targets,
		weights:               weights,
		numActions:            numActions,
		batchSize:             batchSize,
		discount:              c.Discount,
		doubleDQN:             c.DoubleDQN,
		updateFrequency:       c.UpdateFrequency,
		repeatUpdate:          c.RepeatUpdate,
		targetUpdateFrequency: c.TargetUpdateFrequency,
	}
	G.Read(tdErrors, &d.tdErrorVal)
	G.Read(cost, &d.lossVal)

	if _, err = G.Grad(cost, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}
	d.trainNetVM = G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))

	// Actions are stored as indices
	d.replay, err = c.ExpReplay.Create(env.ObservationSpec().Shape.Len(), 1,
		seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create experience replay "+
			"buffer: %v", err)
	}

	return d, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DeepQ) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observefirst: timestep is not first (timestep "+
			"= %d)", t.Number)
	}
	d.prevStep = t
	d.hasPrevStep = true
	return nil
}

// Observe observes and records any timestep other than the first
// timestep, adding the transition into it to the replay buffer
func (d *DeepQ) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if action.Len() != 1 {
		return fmt.Errorf("observe: value-based methods cannot have "+
			"multi-dimensional actions (action dim = %d)", action.Len())
	}
	if !d.hasPrevStep {
		return fmt.Errorf("observe: ObserveFirst must be called first")
	}
	if d.behaviour.IsEval() {
		d.prevStep = nextStep
		return nil
	}

	a := mat.NewVecDense(1, []float64{action.AtVec(0)})
	transition := ts.NewTransition(d.prevStep, a, nextStep, nil)
	if err := d.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: %v", err)
	}

	d.prevStep = nextStep
	d.steps++
	return nil
}

// Step updates the weights of the agent every updateFrequency
// environment steps, once the replay buffer has enough samples
func (d *DeepQ) Step() error {
	if d.behaviour.IsEval() || d.steps == 0 || d.steps%d.updateFrequency != 0 {
		return nil
	}

	for i := 0; i < d.repeatUpdate; i++ {
		b, err := d.replay.Sample()
		if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
			return nil
		} else if err != nil {
			return fmt.Errorf("step: %v", err)
		}

		if err := d.update(b); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}

	return nil
}

// update performs a single gradient step on a batch of transitions
func (d *DeepQ) update(b expreplay.Batch) error {
	targets, err := d.updateTargets(b)
	if err != nil {
		return err
	}

	actions := make([]float64, d.batchSize*d.numActions)
	for i, a := range b.Action {
		actions[i*d.numActions+int(a)] = 1.0
	}

	if err := G.Let(d.selectedActions, tensor.New(
		tensor.WithShape(d.batchSize, d.numActions),
		tensor.WithBacking(actions),
	)); err != nil {
		return fmt.Errorf("update: could not set actions: %v", err)
	}
	if err := G.Let(d.targets, tensor.New(tensor.WithBacking(targets),
		tensor.WithShape(d.batchSize))); err != nil {
		return fmt.Errorf("update: could not set targets: %v", err)
	}
	if err := G.Let(d.weights, tensor.New(tensor.WithBacking(b.Weights),
		tensor.WithShape(d.batchSize))); err != nil {
		return fmt.Errorf("update: could not set weights: %v", err)
	}
	if err := d.trainNet.SetInput(b.State); err != nil {
		return fmt.Errorf("update: could not set trainNet input: %v", err)
	}

	// Run the learning step
	if err := d.trainNetVM.RunAll(); err != nil {
		return fmt.Errorf("update: %v", err)
	}
	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return fmt.Errorf("update: %v", err)
	}
	tdErrors := make([]float64, d.batchSize)
	copy(tdErrors, d.tdErrorVal.Data().([]float64))
	d.trainNetVM.Reset()
	d.gradientSteps++

	if err := d.replay.Update(b.Indices, tdErrors); err != nil {
		return fmt.Errorf("update: %v", err)
	}

	// Update the target network by setting its weights to the newly
	// learned weights
	if d.gradientSteps%d.targetUpdateFrequency == 0 {
		if err := d.targetNet.Set(d.trainNet); err != nil {
			return fmt.Errorf("update: %v", err)
		}
	}
	if err := d.onlineNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("update: %v", err)
	}
	return d.behaviour.Set(d.trainNet)
}

// updateTargets computes the update target of each transition in a
// batch
func (d *DeepQ) updateTargets(b expreplay.Batch) ([]float64, error) {
	nextValues, err := run(d.targetNet, d.targetNetVM, b.NextState)
	if err != nil {
		return nil, fmt.Errorf("updatetargets: target network: %v", err)
	}

	var onlineValues []float64
	if d.doubleDQN {
		onlineValues, err = run(d.onlineNet, d.onlineNetVM, b.NextState)
		if err != nil {
			return nil, fmt.Errorf("updatetargets: online network: %v", err)
		}
	}

	targets := make([]float64, d.batchSize)
	for i := range targets {
		row := nextValues[i*d.numActions : (i+1)*d.numActions]

		var next float64
		if d.doubleDQN {
			onlineRow := onlineValues[i*d.numActions : (i+1)*d.numActions]
			next = row[floats.MaxIdx(onlineRow)]
		} else {
			next, _ = floatutils.MaxSlice(row)
		}
		targets[i] = b.Reward[i] + d.discount*b.Discount[i]*next
	}
	return targets, nil
}

// run runs the graph of net on input and returns a copy of its output
func run(net network.NeuralNet, vm G.VM, input []float64) ([]float64,
	error) {
	if err := net.SetInput(input); err != nil {
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

// Loss returns the loss of the last gradient step
func (d *DeepQ) Loss() float64 {
	if d.lossVal == nil {
		return 0
	}
	return d.lossVal.Data().(float64)
}

// GradientSteps returns the number of gradient steps taken
func (d *DeepQ) GradientSteps() int {
	return d.gradientSteps
}

// SelectAction returns an action selected by the behaviour policy
func (d *DeepQ) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	return d.behaviour.SelectAction(t)
}

// TdError calculates the TD error generated by the learner on some
// transition.
func (d *DeepQ) TdError(t ts.Transition) (float64, error) {
	values, err := d.behaviour.ActionValues(t.State.RawVector().Data)
	if err != nil {
		return 0, fmt.Errorf("tderror: %v", err)
	}
	nextValues, err := d.behaviour.ActionValues(t.NextState.RawVector().Data)
	if err != nil {
		return 0, fmt.Errorf("tderror: %v", err)
	}

	next, _ := floatutils.MaxSlice(nextValues)
	target := t.Reward + d.discount*t.Discount*next
	return target - values[int(t.Action.AtVec(0))], nil
}

// Eval sets the agent into evaluation mode
func (d *DeepQ) Eval() {
	d.behaviour.Eval()
}

// Train sets the agent into training mode
func (d *DeepQ) Train() {
	d.behaviour.Train()
}

// IsEval returns whether the agent is in evaluation mode
func (d *DeepQ) IsEval() bool {
	return d.behaviour.IsEval()
}

// EndEpisode performs cleanup at the end of an episode
func (d *DeepQ) EndEpisode() {
	d.hasPrevStep = false
}

// Close closes the VMs of the agent
func (d *DeepQ) Close() error {
	for _, vm := range []G.VM{d.trainNetVM, d.targetNetVM, d.onlineNetVM} {
		if err := vm.Close(); err != nil {
			return err
		}
	}
	return d.behaviour.Close()
}
