package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/timestep"
)

// ring stores transitions in preallocated caches, overwriting the
// oldest transition once full
type ring struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	nextStateCache []float64

	currentInUsePos int
	isFull          bool

	batchSize   int
	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

func newRing(minCapacity, maxCapacity, batchSize, featureSize,
	actionSize int) (*ring, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("newring: minCapacity must be > 0")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("newring: maxCapacity (%v) must be >= "+
			"minCapacity (%v)", maxCapacity, minCapacity)
	}
	if batchSize < 1 || maxCapacity < batchSize {
		return nil, fmt.Errorf("newring: batch size (%v) must be in "+
			"[1, %v]", batchSize, maxCapacity)
	}
	if featureSize < 1 || actionSize < 1 {
		return nil, fmt.Errorf("newring: feature size (%v) and action "+
			"size (%v) must be positive", featureSize, actionSize)
	}

	return &ring{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		discountCache:  make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),

		batchSize:   batchSize,
		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}, nil
}

// add stores t and returns the index it was stored at
func (r *ring) add(t timestep.Transition) (int, error) {
	if t.State.Len() != r.featureSize || t.NextState.Len() != r.featureSize {
		return 0, fmt.Errorf("add: invalid feature size \n\twant(%v)"+
			"\n\thave(%v)", r.featureSize, t.State.Len())
	}
	if t.Action.Len() != r.actionSize {
		return 0, fmt.Errorf("add: invalid action size \n\twant(%v)"+
			"\n\thave(%v)", r.actionSize, t.Action.Len())
	}

	index := r.currentInUsePos
	stateInd := index * r.featureSize
	for i := 0; i < r.featureSize; i++ {
		r.stateCache[stateInd+i] = t.State.AtVec(i)
		r.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}
	actionInd := index * r.actionSize
	for i := 0; i < r.actionSize; i++ {
		r.actionCache[actionInd+i] = t.Action.AtVec(i)
	}
	r.rewardCache[index] = t.Reward
	r.discountCache[index] = t.Discount

	if index+1 == r.maxCapacity {
		r.isFull = true
	}
	r.currentInUsePos = (r.currentInUsePos + 1) % r.maxCapacity
	return index, nil
}

// canSample returns an error if the ring does not hold enough
// transitions to be sampled
func (r *ring) canSample() error {
	if r.capacity() == 0 {
		return &ExpReplayError{Op: "sample", Err: errEmptyCache}
	}
	if r.capacity() < r.minCapacity {
		return &ExpReplayError{Op: "sample", Err: errInsufficientSamples}
	}
	return nil
}

// gather copies the transitions at indices into a new Batch with unit
// weights
func (r *ring) gather(indices []int) Batch {
	n := len(indices)
	b := Batch{
		Indices:   indices,
		State:     make([]float64, n*r.featureSize),
		Action:    make([]float64, n*r.actionSize),
		Reward:    make([]float64, n),
		Discount:  make([]float64, n),
		NextState: make([]float64, n*r.featureSize),
		Weights:   make([]float64, n),
	}

	for i, index := range indices {
		batchStartInd := i * r.featureSize
		expStartInd := index * r.featureSize
		copy(b.State[batchStartInd:batchStartInd+r.featureSize],
			r.stateCache[expStartInd:expStartInd+r.featureSize])
		copy(b.NextState[batchStartInd:batchStartInd+r.featureSize],
			r.nextStateCache[expStartInd:expStartInd+r.featureSize])

		batchStartInd = i * r.actionSize
		expStartInd = index * r.actionSize
		copy(b.Action[batchStartInd:batchStartInd+r.actionSize],
			r.actionCache[expStartInd:expStartInd+r.actionSize])

		b.Reward[i] = r.rewardCache[index]
		b.Discount[i] = r.discountCache[index]
		b.Weights[i] = 1.0
	}
	return b
}

func (r *ring) capacity() int {
	if r.isFull {
		return r.maxCapacity
	}
	return r.currentInUsePos
}

// String returns the string representation of the ring
func (r *ring) String() string {
	baseStr := "Capacity: %v/%v \nStates: %v \nActions: %v \nRewards: %v " +
		"\nDiscounts: %v \nNext States: %v"
	return fmt.Sprintf(baseStr, r.capacity(), r.maxCapacity, r.stateCache,
		r.actionCache, r.rewardCache, r.discountCache, r.nextStateCache)
}
