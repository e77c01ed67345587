package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// gate holds the weights of a single LSTM gate, computing
// act(x·W + h·U + b)
type gate struct {
	w, u, b *G.Node
	act     func(*G.Node) (*G.Node, error)
}

func newGate(g *G.ExprGraph, in, size int, init G.InitWFn, name string,
	act func(*G.Node) (*G.Node, error)) gate {
	fc := newFCLayer(g, in, size, nil, init, name)
	u := G.NewMatrix(g, tensor.Float64, G.WithShape(size, size),
		G.WithName(name+"U"), G.WithInit(init))
	return gate{w: fc.weights, u: u, b: fc.bias, act: act}
}

func (gt gate) fwd(x, h *G.Node) (*G.Node, error) {
	z, err := G.Mul(x, gt.w)
	if err != nil {
		return nil, err
	}

	// The hidden state is zero at the first step of the sequence
	if h != nil {
		hz, err := G.Mul(h, gt.u)
		if err != nil {
			return nil, err
		}
		if z, err = G.Add(z, hz); err != nil {
			return nil, err
		}
	}

	if z, err = G.BroadcastAdd(z, gt.b, nil, []byte{0}); err != nil {
		return nil, err
	}
	return gt.act(z)
}

// lstmLayer implements a long short-term memory layer, unrolled over
// a fixed number of timesteps with weights shared between steps
type lstmLayer struct {
	input, forget, output, cell gate
	size                        int
}

func newLSTMLayer(g *G.ExprGraph, in, size int, init G.InitWFn,
	name string) *lstmLayer {
	return &lstmLayer{
		input:  newGate(g, in, size, init, name+"I", G.Sigmoid),
		forget: newGate(g, in, size, init, name+"F", G.Sigmoid),
		output: newGate(g, in, size, init, name+"O", G.Sigmoid),
		cell:   newGate(g, in, size, init, name+"C", G.Tanh),
		size:   size,
	}
}

// fwd adds the forward pass of the layer over the sequence xs to the
// computational graph and returns the hidden state at each step
func (l *lstmLayer) fwd(xs []*G.Node) ([]*G.Node, error) {
	hs := make([]*G.Node, len(xs))
	var h, c *G.Node

	for t, x := range xs {
		i, err := l.input.fwd(x, h)
		if err != nil {
			return nil, fmt.Errorf("fwd: step %v input gate: %v", t, err)
		}
		f, err := l.forget.fwd(x, h)
		if err != nil {
			return nil, fmt.Errorf("fwd: step %v forget gate: %v", t, err)
		}
		o, err := l.output.fwd(x, h)
		if err != nil {
			return nil, fmt.Errorf("fwd: step %v output gate: %v", t, err)
		}
		candidate, err := l.cell.fwd(x, h)
		if err != nil {
			return nil, fmt.Errorf("fwd: step %v cell gate: %v", t, err)
		}

		// c = f ⊙ c + i ⊙ candidate
		newC := G.Must(G.HadamardProd(i, candidate))
		if c != nil {
			newC = G.Must(G.Add(newC, G.Must(G.HadamardProd(f, c))))
		}
		c = newC

		// h = o ⊙ tanh(c)
		h = G.Must(G.HadamardProd(o, G.Must(G.Tanh(c))))
		hs[t] = h
	}
	return hs, nil
}

func (l *lstmLayer) learnables() []*G.Node {
	nodes := make([]*G.Node, 0, 12)
	for _, gt := range []gate{l.input, l.forget, l.output, l.cell} {
		nodes = append(nodes, gt.w, gt.u, gt.b)
	}
	return nodes
}
