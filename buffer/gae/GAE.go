// Package gae implements functionality for storing a generalized
// advantage estimate buffer
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Buffer implements a forward view generalized advantage estimate -
// GAE(λ) - buffer following https://arxiv.org/abs/1506.02438. Along
// with each transition, the buffer stores the log probability of the
// action under the policy that selected it, for use in importance
// ratios.
type Buffer struct {
	obsSize    int // Size of state observations
	actionSize int // Number of action dimensions
	maxSize    int // Max buffer size

	currentPos   int // Current position in the buffer
	pathStartIdx int // Position in the buffer where current trajectory starts

	lambda float64 // λ for GAE(λ) calculation
	gamma  float64 // Discount factor ℽ; overwrites env discount factor

	// Buffers for storing data
	obsBuffer  []float64
	actBuffer  []float64
	logpBuffer []float64
	advBuffer  []float64
	rewBuffer  []float64
	retBuffer  []float64
	valBuffer  []float64
}

// Batch holds the contents of a full Buffer
type Batch struct {
	Obs        []float64
	Act        []float64
	LogProb    []float64
	Advantages []float64 // Standardized to mean 0, standard deviation 1
	Returns    []float64
}

// New creates and returns a new GAE(λ) buffer
func New(obsDim, actDim, size int, lambda, gamma float64) (*Buffer, error) {
	if obsDim < 1 || actDim < 1 || size < 1 {
		return nil, fmt.Errorf("new: dimensions (%v, %v) and size (%v) must "+
			"be positive", obsDim, actDim, size)
	}
	if lambda < 0 || lambda > 1 || gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("new: λ (%v) and ℽ (%v) must be in [0, 1]",
			lambda, gamma)
	}

	return &Buffer{
		obsSize:    obsDim,
		actionSize: actDim,
		maxSize:    size,
		lambda:     lambda,
		gamma:      gamma,
		obsBuffer:  make([]float64, size*obsDim),
		actBuffer:  make([]float64, size*actDim),
		logpBuffer: make([]float64, size),
		advBuffer:  make([]float64, size),
		rewBuffer:  make([]float64, size),
		retBuffer:  make([]float64, size),
		valBuffer:  make([]float64, size),
	}, nil
}

// Store stores a single timestep state, action, reward, value, and
// action log probability to the Buffer.
func (v *Buffer) Store(obs, act []float64, rew, val, logp float64) error {
	if v.Full() {
		return fmt.Errorf("store: cannot add new transition, buffer at " +
			"maximum capacity")
	}
	if len(obs) != v.obsSize {
		return fmt.Errorf("store: illegal obs length \n\twant(%v)\n\thave(%v)",
			v.obsSize, len(obs))
	}
	if len(act) != v.actionSize {
		return fmt.Errorf("store: illegal act length \n\twant(%v)\n\thave(%v)",
			v.actionSize, len(act))
	}

	start := v.currentPos * v.obsSize
	copy(v.obsBuffer[start:start+v.obsSize], obs)

	start = v.currentPos * v.actionSize
	copy(v.actBuffer[start:start+v.actionSize], act)

	v.rewBuffer[v.currentPos] = rew
	v.valBuffer[v.currentPos] = val
	v.logpBuffer[v.currentPos] = logp
	v.currentPos++
	return nil
}

// Full returns whether the buffer is at its maximum capacity
func (v *Buffer) Full() bool {
	return v.currentPos >= v.maxSize
}

// Len returns the number of transitions stored
func (v *Buffer) Len() int {
	return v.currentPos
}

// FinishPath computes advantage estimates using GAE(λ) and
// rewards-to-go estimates for each state of the current trajectory.
// This should be called at the end of a trajectory or when one gets
// cut off by the buffer filling.
//
// The lastVal argument should be 0 if the trajectory ended because
// the agent reached a terminal state, and otherwise it should be
// v(s), the value estimate of the current state, which bootstraps
// both the rewards-to-go and the final advantage.
func (v *Buffer) FinishPath(lastVal float64) {
	start := v.pathStartIdx
	stop := v.currentPos
	if start == stop {
		return
	}

	rews := v.rewBuffer[start:stop]
	vals := v.valBuffer[start:stop]

	// GAE-lambda advantage calculation
	deltas := make([]float64, len(rews))
	for i := range rews {
		next := lastVal
		if i+1 < len(vals) {
			next = vals[i+1]
		}
		deltas[i] = rews[i] + v.gamma*next - vals[i]
	}
	copy(v.advBuffer[start:stop], discountCumSum(deltas, v.gamma*v.lambda, 0))

	// Rewards-to-go
	copy(v.retBuffer[start:stop], discountCumSum(rews, v.gamma, lastVal))

	v.pathStartIdx = v.currentPos
}

// Get returns the contents of the buffer and empties it. The buffer
// must be full and every trajectory in it finished.
func (v *Buffer) Get() (Batch, error) {
	if !v.Full() {
		return Batch{}, fmt.Errorf("get: buffer must be full before sampling")
	}
	if v.pathStartIdx != v.currentPos {
		return Batch{}, fmt.Errorf("get: last trajectory not finished")
	}

	v.currentPos = 0
	v.pathStartIdx = 0

	adv := make([]float64, len(v.advBuffer))
	copy(adv, v.advBuffer)
	mean, std := stat.MeanStdDev(adv, nil)
	floats.AddConst(-mean, adv)
	if len(adv) > 1 {
		floats.Scale(1/(std+1e-8), adv)
	}

	return Batch{
		Obs:        v.obsBuffer,
		Act:        v.actBuffer,
		LogProb:    v.logpBuffer,
		Advantages: adv,
		Returns:    v.retBuffer,
	}, nil
}

// discountCumSum computes and returns the discounted cumulative sum
// of all elements of a slice, bootstrapped by last. Given x = [x0 ...
// xN] and discount ℽ, element i of the result is
//
//	xi + ℽ x(i+1) + ... + ℽ^(N-i) xN + ℽ^(N-i+1) last
func discountCumSum(x []float64, discount, last float64) []float64 {
	cumSums := make([]float64, len(x))
	running := last
	for i := len(x) - 1; i >= 0; i-- {
		running = x[i] + discount*running
		cumSums[i] = running
	}
	return cumSums
}
