// Package op provides extended Gorgonia graph operations.
//
// Adapted from aunum/G.ld on GitHub
package op

import (
	G "gorgonia.org/gorgonia"
)

// ClippedSurrogate returns the elementwise clipped surrogate objective
// of proximal policy optimization,
//
//	min(r A, clip(r, 1-ε, 1+ε) A)
//
// for likelihood ratios r and advantages A. Since A is an input, the
// minimum is selected by the sign of each advantage: positive masks
// positive advantages and negative masks negative advantages. The
// ratio is then capped at 1+ε where A ≥ 0 and floored at 1-ε where
// A < 0, which keeps the objective differentiable with respect to r.
func ClippedSurrogate(ratio, advantages, positive, negative *G.Node,
	epsilon float64) (retVal *G.Node, err error) {
	upper := G.NewConstant(1+epsilon, G.WithName("clip_max"))
	lower := G.NewConstant(1-epsilon, G.WithName("clip_min"))

	over, err := G.Sub(ratio, upper)
	if err != nil {
		return nil, err
	}
	if over, err = G.Rectify(over); err != nil {
		return nil, err
	}
	if over, err = G.HadamardProd(over, positive); err != nil {
		return nil, err
	}

	under, err := G.Sub(lower, ratio)
	if err != nil {
		return nil, err
	}
	if under, err = G.Rectify(under); err != nil {
		return nil, err
	}
	if under, err = G.HadamardProd(under, negative); err != nil {
		return nil, err
	}

	clipped, err := G.Sub(ratio, over)
	if err != nil {
		return nil, err
	}
	if clipped, err = G.Add(clipped, under); err != nil {
		return nil, err
	}
	return G.HadamardProd(clipped, advantages)
}

// Huber returns the elementwise Huber loss of errors with threshold
// delta:
//
//	0.5 x²             if |x| ≤ δ
//	δ (|x| - 0.5 δ)    otherwise
//
// A non-positive delta gives the squared error.
func Huber(errors *G.Node, delta float64) (retVal *G.Node, err error) {
	if delta <= 0 {
		return G.Square(errors)
	}

	abs, err := G.Abs(errors)
	if err != nil {
		return nil, err
	}

	// |x| = quadratic + linear, with quadratic = min(|x|, δ)
	deltaNode := G.NewConstant(delta, G.WithName("huber_delta"))
	linear, err := G.Sub(abs, deltaNode)
	if err != nil {
		return nil, err
	}
	if linear, err = G.Rectify(linear); err != nil {
		return nil, err
	}
	quadratic, err := G.Sub(abs, linear)
	if err != nil {
		return nil, err
	}

	if quadratic, err = G.Square(quadratic); err != nil {
		return nil, err
	}
	if quadratic, err = G.Mul(G.NewConstant(0.5), quadratic); err != nil {
		return nil, err
	}
	if linear, err = G.Mul(deltaNode, linear); err != nil {
		return nil, err
	}
	return G.Add(quadratic, linear)
}

// LogSumExp calculates the log of the summation of exponentials of
// all logits along the given axis.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged, which is incorrect.
func LogSumExp(logits *G.Node, along int) *G.Node {
	max := G.Must(G.Max(logits, along))

	exponent := G.Must(G.BroadcastSub(logits, max, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, along))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// LogSoftmax returns the log softmax of a matrix of logits, one row
// per sample
func LogSoftmax(logits *G.Node) *G.Node {
	lse := LogSumExp(logits, 1)
	return G.Must(G.BroadcastSub(logits, lse, nil, []byte{1}))
}
