// Package ppo implements the proximal policy optimization (PPO) agent
// with a categorical policy, a learned state value baseline, and
// GAE(λ) advantage estimates.
package ppo

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/agent/policy"
	"github.com/samuelfneumann/btcrl/buffer/gae"
	"github.com/samuelfneumann/btcrl/environment"
	"github.com/samuelfneumann/btcrl/network"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/samuelfneumann/btcrl/utils/op"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// PPO implements proximal policy optimization with the clipped
// surrogate objective. The agent collects BatchSize timesteps with its
// current policy, then takes OptimizationSteps gradient steps on the
// policy and critic using the whole batch.
type PPO struct {
	behaviour *policy.Categorical

	critic   network.NeuralNet
	criticVM G.VM

	// Policy training graph
	trainPolicy   network.NeuralNet
	trainPolicyVM G.VM
	policySolver  G.Solver
	actions       *G.Node
	advantages    *G.Node
	oldLogProbs   *G.Node
	positive      *G.Node
	negative      *G.Node
	policyLossVal G.Value

	// Critic training graph
	trainCritic   network.NeuralNet
	trainCriticVM G.VM
	criticSolver  G.Solver
	returns       *G.Node
	criticLossVal G.Value

	buffer            *gae.Buffer
	batchSize         int
	optimizationSteps int
	numActions        int
	updates           int

	// Value and log probability of the last action selected while
	// training
	prevStep    ts.TimeStep
	hasPrevStep bool
	prevValue   float64
	prevLogProb float64
	prevAction  int
	selected    bool
}

// New creates and returns a new PPO agent
func New(env environment.Environment, c Config, seed uint64) (*PPO,
	error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	numActions := c.Policy.Outputs
	batch := c.BatchSize

	policyNet, err := network.New(c.Policy, 1, G.NewGraph(), false)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy: %v", err)
	}
	behaviour, err := policy.NewCategorical(policyNet, seed)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	critic, err := network.New(c.Critic, 1, G.NewGraph(), false)
	if err != nil {
		return nil, fmt.Errorf("new: could not create critic: %v", err)
	}

	p := &PPO{
		behaviour:         behaviour,
		critic:            critic,
		criticVM:          G.NewTapeMachine(critic.Graph()),
		policySolver:      c.PolicySolver,
		criticSolver:      c.CriticSolver,
		batchSize:         batch,
		optimizationSteps: c.OptimizationSteps,
		numActions:        numActions,
	}

	if err := p.addPolicyLoss(policyNet, c.Clipping); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := p.addCriticLoss(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	obsSize := env.ObservationSpec().Shape.Len()
	p.buffer, err = gae.New(obsSize, 1, batch, c.Lambda, c.Discount)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return p, nil
}

// addPolicyLoss constructs the graph which minimizes the negative
// clipped surrogate objective of a batch of transitions
func (p *PPO) addPolicyLoss(net network.NeuralNet, clipping float64) error {
	trainPolicy, err := net.CloneForTraining(p.batchSize)
	if err != nil {
		return fmt.Errorf("addpolicyloss: could not clone policy: %v", err)
	}
	graph := trainPolicy.Graph()

	vector := func(name string) *G.Node {
		return G.NewVector(graph, tensor.Float64, G.WithShape(p.batchSize),
			G.WithName(name), G.WithInit(G.Zeroes()))
	}
	p.actions = G.NewMatrix(graph, tensor.Float64,
		G.WithShape(p.batchSize, p.numActions), G.WithName("actionSelected"),
		G.WithInit(G.Zeroes()))
	p.advantages = vector("advantage")
	p.oldLogProbs = vector("oldLogProb")
	p.positive = vector("positiveAdvantage")
	p.negative = vector("negativeAdvantage")

	logProbs := op.LogSoftmax(trainPolicy.Prediction())
	logProb := G.Must(G.HadamardProd(logProbs, p.actions))
	logProb = G.Must(G.Sum(logProb, 1))

	ratio := G.Must(G.Sub(logProb, p.oldLogProbs))
	ratio = G.Must(G.Exp(ratio))

	surrogate, err := op.ClippedSurrogate(ratio, p.advantages, p.positive,
		p.negative, clipping)
	if err != nil {
		return fmt.Errorf("addpolicyloss: %v", err)
	}

	negative := G.NewConstant(-1.0)
	policyLoss := G.Must(G.Mean(surrogate))
	policyLoss = G.Must(G.Mul(negative, policyLoss))
	G.Read(policyLoss, &p.policyLossVal)

	if _, err = G.Grad(policyLoss, trainPolicy.Learnables()...); err != nil {
		return fmt.Errorf("addpolicyloss: could not compute policy "+
			"gradient: %v", err)
	}

	p.trainPolicy = trainPolicy
	p.trainPolicyVM = G.NewTapeMachine(graph,
		G.BindDualValues(trainPolicy.Learnables()...))
	return nil
}

// addCriticLoss constructs the graph which minimizes the mean squared
// error between the critic's predictions and the rewards-to-go
func (p *PPO) addCriticLoss() error {
	trainCritic, err := p.critic.CloneForTraining(p.batchSize)
	if err != nil {
		return fmt.Errorf("addcriticloss: could not clone critic: %v", err)
	}
	graph := trainCritic.Graph()

	p.returns = G.NewMatrix(graph, tensor.Float64,
		G.WithShape(p.batchSize, 1), G.WithName("returns"),
		G.WithInit(G.Zeroes()))

	loss := G.Must(G.Sub(trainCritic.Prediction(), p.returns))
	loss = G.Must(G.Square(loss))
	loss = G.Must(G.Mean(loss))
	G.Read(loss, &p.criticLossVal)

	if _, err = G.Grad(loss, trainCritic.Learnables()...); err != nil {
		return fmt.Errorf("addcriticloss: could not compute gradient: %v",
			err)
	}

	p.trainCritic = trainCritic
	p.trainCriticVM = G.NewTapeMachine(graph,
		G.BindDualValues(trainCritic.Learnables()...))
	return nil
}

// value returns the critic's estimate of the value of obs
func (p *PPO) value(obs *mat.VecDense) (float64, error) {
	if err := p.critic.SetInput(obs.RawVector().Data); err != nil {
		return 0, err
	}
	defer p.criticVM.Reset()
	if err := p.criticVM.RunAll(); err != nil {
		return 0, err
	}
	return p.critic.Output().Data().([]float64)[0], nil
}

// SelectAction selects an action in timestep t. While training, the
// action's log probability and the value of t are recorded for the
// next call to Observe.
func (p *PPO) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	if p.behaviour.IsEval() {
		return p.behaviour.SelectAction(t)
	}

	action, logProb, err := p.behaviour.Sample(t.Observation.RawVector().Data)
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}
	if p.prevValue, err = p.value(t.Observation); err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}
	p.prevLogProb = logProb
	p.prevAction = action
	p.selected = true

	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// ObserveFirst observes and records the first episodic timestep
func (p *PPO) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observefirst: timestep is not first (timestep "+
			"= %d)", t.Number)
	}
	p.prevStep = t
	p.hasPrevStep = true
	p.selected = false
	return nil
}

// Observe stores the transition into nextStep. Trajectories are
// finished when the episode ends or the buffer fills, bootstrapping
// off the value of nextStep unless it is terminal.
func (p *PPO) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if !p.hasPrevStep {
		return fmt.Errorf("observe: ObserveFirst must be called first")
	}
	if p.behaviour.IsEval() {
		p.prevStep = nextStep
		return nil
	}
	if !p.selected || int(action.AtVec(0)) != p.prevAction {
		return fmt.Errorf("observe: action %v was not selected by the agent",
			action.AtVec(0))
	}
	p.selected = false

	obs := p.prevStep.Observation.RawVector().Data
	if err := p.buffer.Store(obs, []float64{action.AtVec(0)},
		nextStep.Reward, p.prevValue, p.prevLogProb); err != nil {
		return fmt.Errorf("observe: %v", err)
	}

	if nextStep.Last() || p.buffer.Full() {
		lastVal := 0.0
		if !nextStep.TerminalEnd() {
			var err error
			if lastVal, err = p.value(nextStep.Observation); err != nil {
				return fmt.Errorf("observe: %v", err)
			}
		}
		p.buffer.FinishPath(lastVal)
	}

	p.prevStep = nextStep
	return nil
}

// Step updates the policy and critic once a full batch of timesteps
// has been collected
func (p *PPO) Step() error {
	if p.behaviour.IsEval() || !p.buffer.Full() {
		return nil
	}

	batch, err := p.buffer.Get()
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	actions := make([]float64, p.batchSize*p.numActions)
	positive := make([]float64, p.batchSize)
	negative := make([]float64, p.batchSize)
	for i, a := range batch.Act {
		actions[i*p.numActions+int(a)] = 1.0
		if batch.Advantages[i] >= 0 {
			positive[i] = 1.0
		} else {
			negative[i] = 1.0
		}
	}

	lets := []struct {
		node  *G.Node
		value []float64
	}{
		{p.advantages, batch.Advantages},
		{p.oldLogProbs, batch.LogProb},
		{p.positive, positive},
		{p.negative, negative},
		{p.actions, actions},
		{p.returns, batch.Returns},
	}
	for _, l := range lets {
		t := tensor.New(tensor.WithShape(l.node.Shape()...),
			tensor.WithBacking(l.value))
		if err := G.Let(l.node, t); err != nil {
			return fmt.Errorf("step: could not set %v: %v", l.node.Name(), err)
		}
	}
	if err := p.trainPolicy.SetInput(batch.Obs); err != nil {
		return fmt.Errorf("step: %v", err)
	}
	if err := p.trainCritic.SetInput(batch.Obs); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	for i := 0; i < p.optimizationSteps; i++ {
		if err := p.trainPolicyVM.RunAll(); err != nil {
			return fmt.Errorf("step: policy: %v", err)
		}
		if err := p.policySolver.Step(p.trainPolicy.Model()); err != nil {
			return fmt.Errorf("step: policy: %v", err)
		}
		p.trainPolicyVM.Reset()

		if err := p.trainCriticVM.RunAll(); err != nil {
			return fmt.Errorf("step: critic: %v", err)
		}
		if err := p.criticSolver.Step(p.trainCritic.Model()); err != nil {
			return fmt.Errorf("step: critic: %v", err)
		}
		p.trainCriticVM.Reset()
	}
	p.updates++

	if err := p.behaviour.Set(p.trainPolicy); err != nil {
		return fmt.Errorf("step: %v", err)
	}
	return p.critic.Set(p.trainCritic)
}

// Updates returns the number of batches the agent has learned from
func (p *PPO) Updates() int {
	return p.updates
}

// Losses returns the policy and critic losses of the last gradient
// step
func (p *PPO) Losses() (policyLoss, criticLoss float64) {
	if p.policyLossVal != nil {
		policyLoss = p.policyLossVal.Data().(float64)
	}
	if p.criticLossVal != nil {
		criticLoss = p.criticLossVal.Data().(float64)
	}
	return
}

// Eval sets the agent into evaluation mode
func (p *PPO) Eval() {
	p.behaviour.Eval()
}

// Train sets the agent into training mode
func (p *PPO) Train() {
	p.behaviour.Train()
}

// IsEval returns whether the agent is in evaluation mode
func (p *PPO) IsEval() bool {
	return p.behaviour.IsEval()
}

// EndEpisode performs cleanup at the end of an episode
func (p *PPO) EndEpisode() {
	p.hasPrevStep = false
	p.selected = false
}

// Close closes the VMs of the agent
func (p *PPO) Close() error {
	for _, vm := range []G.VM{p.criticVM, p.trainPolicyVM, p.trainCriticVM} {
		if err := vm.Close(); err != nil {
			return err
		}
	}
	return p.behaviour.Close()
}
