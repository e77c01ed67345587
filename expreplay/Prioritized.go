package expreplay

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/btcrl/timestep"
	"golang.org/x/exp/rand"
)

// minPriority is added to the magnitude of every TD error so that no
// transition has zero probability of being sampled
const minPriority = 1e-6

// prioritizedCache is an ExperienceReplayer which samples transitions
// proportionally to their priorities. The priority of a transition
// is (|δ| + ε)^α where δ is its last TD error and α is the
// prioritization weight. New transitions receive the largest priority
// seen so far.
//
// Sampling is biased, so each sampled transition i carries an
// importance sampling weight (N⋅P(i))^-β, normalized by the largest
// weight in the batch.
type prioritizedCache struct {
	*ring
	tree *sumTree
	rng  *rand.Rand

	alpha       float64
	beta        float64
	maxPriority float64
}

func newPrioritized(r *ring, alpha, beta float64,
	seed uint64) ExperienceReplayer {
	return &prioritizedCache{
		ring:        r,
		tree:        newSumTree(r.maxCapacity),
		rng:         rand.New(rand.NewSource(seed)),
		alpha:       alpha,
		beta:        beta,
		maxPriority: 1.0,
	}
}

// Add adds a transition to the buffer with the maximum priority
func (p *prioritizedCache) Add(t timestep.Transition) error {
	index, err := p.add(t)
	if err != nil {
		return err
	}
	p.tree.set(index, p.maxPriority)
	return nil
}

// Sample samples a batch of transitions by splitting the total
// priority into equal segments and drawing one transition from each
func (p *prioritizedCache) Sample() (Batch, error) {
	if err := p.canSample(); err != nil {
		return Batch{}, err
	}

	n := p.capacity()
	total := p.tree.total()
	segment := total / float64(p.batchSize)

	indices := make([]int, p.batchSize)
	for i := range indices {
		mass := segment * (float64(i) + p.rng.Float64())
		indices[i] = p.tree.find(mass, n)
	}

	b := p.gather(indices)
	maxWeight := 0.0
	for i, index := range indices {
		prob := p.tree.get(index) / total
		b.Weights[i] = math.Pow(float64(n)*prob, -p.beta)
		maxWeight = math.Max(maxWeight, b.Weights[i])
	}
	if maxWeight > 0 && !math.IsInf(maxWeight, 1) {
		for i := range b.Weights {
			b.Weights[i] /= maxWeight
		}
	}

	return b, nil
}

// Update sets the priorities of the transitions at indices using
// their new TD errors
func (p *prioritizedCache) Update(indices []int, tdErrors []float64) error {
	if len(indices) != len(tdErrors) {
		return fmt.Errorf("update: have %v indices but %v errors",
			len(indices), len(tdErrors))
	}

	for i, index := range indices {
		if index < 0 || index >= p.capacity() {
			return fmt.Errorf("update: index %v out of range [0, %v)", index,
				p.capacity())
		}
		if math.IsNaN(tdErrors[i]) {
			return fmt.Errorf("update: TD error of index %v is NaN", index)
		}

		priority := math.Pow(math.Abs(tdErrors[i])+minPriority, p.alpha)
		p.tree.set(index, priority)
		p.maxPriority = math.Max(p.maxPriority, priority)
	}
	return nil
}

// Capacity returns the current number of elements in the buffer that
// are available for sampling
func (p *prioritizedCache) Capacity() int {
	return p.capacity()
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the buffer
func (p *prioritizedCache) MaxCapacity() int {
	return p.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// buffer before sampling is allowed
func (p *prioritizedCache) MinCapacity() int {
	return p.minCapacity
}

// BatchSize returns the number of samples sampled using Sample()
func (p *prioritizedCache) BatchSize() int {
	return p.batchSize
}
