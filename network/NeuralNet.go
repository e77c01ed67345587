// Package network implements neural network function approximators
// built on Gorgonia computational graphs.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet is a neural network whose forward pass has been added to
// a Gorgonia computational graph. Running a VM over Graph() computes
// Prediction(), after which Output() holds its value.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	CloneForTraining(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	SeqLen() int
	Outputs() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() G.Value
	Prediction() *G.Node
}

// Config describes the shape of a network
type Config struct {
	Features int // Features observed at each step of a sequence
	SeqLen   int // Steps in each input sequence
	Outputs  int
	Layers   []LayerSpec
	Init     G.InitWFn
}

// net implements a network of LSTM layers, unrolled over the input
// sequence, followed by fully connected layers and a final linear
// output layer. Dense layers act on the last hidden state of the final
// LSTM layer, or on the whole flattened sequence if there are no LSTM
// layers.
type net struct {
	Config

	g         *G.ExprGraph
	batchSize int
	train     bool // Whether dropout is added to the graph

	// One input node per sequence step when recurrent, otherwise a
	// single node holding the flattened sequence
	inputs []*G.Node

	lstms  []*lstmLayer
	dense  []*fcLayer
	output *fcLayer

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// New creates a new network for batches of batch inputs, adding it to
// the graph g. If train is true, dropout is added after layers that
// declare it.
//
// A final linear layer is always added such that the network predicts
// c.Outputs values for each input.
func New(c Config, batch int, g *G.ExprGraph, train bool) (NeuralNet, error) {
	if err := Validate(c.Layers); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if c.Features < 1 || c.SeqLen < 1 || c.Outputs < 1 || batch < 1 {
		return nil, fmt.Errorf("new: features (%v), sequence length (%v), "+
			"outputs (%v), and batch size (%v) must be positive", c.Features,
			c.SeqLen, c.Outputs, batch)
	}
	if c.Init == nil {
		c.Init = G.GlorotU(1.0)
	}

	n := &net{
		Config:    c,
		g:         g,
		batchSize: batch,
		train:     train,
	}

	in := c.Features * c.SeqLen
	for i, l := range c.Layers {
		name := fmt.Sprintf("l%v", i)
		switch l.Type {
		case LSTM:
			if len(n.lstms) == 0 {
				in = c.Features
			}
			n.lstms = append(n.lstms, newLSTMLayer(g, in, l.Size, c.Init, name))
		case Dense:
			act, _ := ParseActivation(l.Activation)
			n.dense = append(n.dense, newFCLayer(g, in, l.Size, act, c.Init,
				name))
		}
		in = l.Size
	}
	n.output = newFCLayer(g, in, c.Outputs, Identity(), c.Init, "out")

	if n.recurrent() {
		n.inputs = make([]*G.Node, c.SeqLen)
		for t := range n.inputs {
			n.inputs[t] = G.NewMatrix(g, tensor.Float64,
				G.WithShape(batch, c.Features),
				G.WithName(fmt.Sprintf("input%v", t)),
				G.WithInit(G.Zeroes()))
		}
	} else {
		n.inputs = []*G.Node{G.NewMatrix(g, tensor.Float64,
			G.WithShape(batch, c.Features*c.SeqLen), G.WithName("input"),
			G.WithInit(G.Zeroes()))}
	}

	if err := n.fwd(); err != nil {
		return nil, fmt.Errorf("new: could not compute forward pass: %v", err)
	}
	return n, nil
}

func (n *net) recurrent() bool {
	return len(n.lstms) > 0
}

// dropout adds dropout to x if the network is being trained
func (n *net) dropout(x *G.Node, prob float64) (*G.Node, error) {
	if !n.train || prob <= 0 {
		return x, nil
	}
	return G.Dropout(x, prob)
}

// fwd adds the forward pass of the network to its graph
func (n *net) fwd() error {
	var err error
	x := n.inputs[0]
	layer := 0

	if n.recurrent() {
		seq := n.inputs
		for i, l := range n.lstms {
			if seq, err = l.fwd(seq); err != nil {
				return fmt.Errorf("fwd: lstm layer %v: %v", i, err)
			}
			for t := range seq {
				if seq[t], err = n.dropout(seq[t], n.Layers[layer].Dropout); err != nil {
					return fmt.Errorf("fwd: lstm layer %v: %v", i, err)
				}
			}
			layer++
		}
		x = seq[len(seq)-1]
	}

	for i, l := range n.dense {
		if x, err = l.fwd(x); err != nil {
			return fmt.Errorf("fwd: dense layer %v: %v", i, err)
		}
		if x, err = n.dropout(x, n.Layers[layer].Dropout); err != nil {
			return fmt.Errorf("fwd: dense layer %v: %v", i, err)
		}
		layer++
	}

	if x, err = n.output.fwd(x); err != nil {
		return fmt.Errorf("fwd: output layer: %v", err)
	}

	n.prediction = x
	G.Read(n.prediction, &n.predVal)
	return nil
}

// Graph returns the computational graph of the network
func (n *net) Graph() *G.ExprGraph {
	return n.g
}

// Clone clones a network
func (n *net) Clone() (NeuralNet, error) {
	return n.CloneWithBatch(n.batchSize)
}

// CloneWithBatch clones the network with a new input batch size into
// a new graph. The clone never uses dropout.
func (n *net) CloneWithBatch(batch int) (NeuralNet, error) {
	return n.cloneTo(G.NewGraph(), batch, false)
}

// CloneForTraining clones the network with a new input batch size into
// a new graph, adding dropout where the layers declare it.
func (n *net) CloneForTraining(batch int) (NeuralNet, error) {
	return n.cloneTo(G.NewGraph(), batch, true)
}

func (n *net) cloneTo(g *G.ExprGraph, batch int, train bool) (NeuralNet,
	error) {
	clone, err := New(n.Config, batch, g, train)
	if err != nil {
		return nil, fmt.Errorf("clone: %v", err)
	}
	if err := clone.Set(n); err != nil {
		return nil, fmt.Errorf("clone: %v", err)
	}
	return clone, nil
}

// BatchSize returns the batch size of inputs to the network
func (n *net) BatchSize() int {
	return n.batchSize
}

// Features returns the number of features in a single step of an
// input sequence
func (n *net) Features() int {
	return n.Config.Features
}

// SeqLen returns the number of steps in an input sequence
func (n *net) SeqLen() int {
	return n.Config.SeqLen
}

// Outputs returns the number of outputs from the network
func (n *net) Outputs() int {
	return n.Config.Outputs
}

// SetInput sets the value of the input nodes before running the
// forward pass. The input holds BatchSize() sequences in row major
// order, each sequence holding SeqLen() steps of Features() features,
// oldest step first.
func (n *net) SetInput(input []float64) error {
	rowLen := n.Config.Features * n.Config.SeqLen
	if len(input) != rowLen*n.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", rowLen*n.batchSize, len(input))
	}

	if !n.recurrent() {
		inputTensor := tensor.New(
			tensor.WithBacking(input),
			tensor.WithShape(n.inputs[0].Shape()...),
		)
		return G.Let(n.inputs[0], inputTensor)
	}

	f := n.Config.Features
	for t, node := range n.inputs {
		step := make([]float64, n.batchSize*f)
		for b := 0; b < n.batchSize; b++ {
			start := b*rowLen + t*f
			copy(step[b*f:(b+1)*f], input[start:start+f])
		}

		stepTensor := tensor.New(
			tensor.WithBacking(step),
			tensor.WithShape(n.batchSize, f),
		)
		if err := G.Let(node, stepTensor); err != nil {
			return fmt.Errorf("setinput: step %v: %v", t, err)
		}
	}
	return nil
}

// Set sets the weights of a network to be equal to the weights of
// another network. The source's weights are copied.
func (n *net) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := n.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: networks have different numbers of "+
			"learnables\n\twant(%v)\n\thave(%v)", len(nodes), len(sourceNodes))
	}

	for i, destLearnable := range nodes {
		weights, ok := sourceNodes[i].Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("set: learnable %v has no dense value", i)
		}
		if err := G.Let(destLearnable, weights.Clone().(*tensor.Dense)); err != nil {
			return fmt.Errorf("set: %v", err)
		}
	}
	return nil
}

// Polyak sets the weights of a network to be a polyak average between
// its existing weights and the weights of another network
func (n *net) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := n.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("polyak: networks have different numbers of " +
			"learnables")
	}

	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		if err := G.Let(nodes[i], newWeights); err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes in a network
func (n *net) Learnables() G.Nodes {
	// Lazy instantiation
	if n.learnables == nil {
		learnables := make([]*G.Node, 0)
		for _, l := range n.lstms {
			learnables = append(learnables, l.learnables()...)
		}
		for _, l := range n.dense {
			learnables = append(learnables, l.learnables()...)
		}
		learnables = append(learnables, n.output.learnables()...)
		n.learnables = G.Nodes(learnables)
	}
	return n.learnables
}

// Model returns the learnables nodes with their gradients.
func (n *net) Model() []G.ValueGrad {
	// Lazy instantiation
	if n.model == nil {
		model := make([]G.ValueGrad, 0, len(n.Learnables()))
		for _, node := range n.Learnables() {
			model = append(model, node)
		}
		n.model = model
	}
	return n.model
}

// Output returns the output of the network from the last run of its
// graph
func (n *net) Output() G.Value {
	return n.predVal
}

// Prediction returns the node of the computational graph that stores
// the output of the network
func (n *net) Prediction() *G.Node {
	return n.prediction
}
