package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/timestep"
	"golang.org/x/exp/rand"
)

// uniformCache is an ExperienceReplayer which samples transitions
// uniformly randomly, with replacement
type uniformCache struct {
	*ring
	rng *rand.Rand
}

func newUniform(r *ring, seed uint64) ExperienceReplayer {
	return &uniformCache{ring: r, rng: rand.New(rand.NewSource(seed))}
}

// Add adds a transition to the buffer
func (u *uniformCache) Add(t timestep.Transition) error {
	if _, err := u.add(t); err != nil {
		return err
	}
	return nil
}

// Sample samples a batch of transitions uniformly randomly
func (u *uniformCache) Sample() (Batch, error) {
	if err := u.canSample(); err != nil {
		return Batch{}, err
	}

	indices := make([]int, u.batchSize)
	for i := range indices {
		indices[i] = u.rng.Intn(u.capacity())
	}
	return u.gather(indices), nil
}

// Update is a no-op for uniform buffers other than validating its
// arguments
func (u *uniformCache) Update(indices []int, tdErrors []float64) error {
	if len(indices) != len(tdErrors) {
		return fmt.Errorf("update: have %v indices but %v errors",
			len(indices), len(tdErrors))
	}
	return nil
}

// Capacity returns the current number of elements in the buffer that
// are available for sampling
func (u *uniformCache) Capacity() int {
	return u.capacity()
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the buffer
func (u *uniformCache) MaxCapacity() int {
	return u.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// buffer before sampling is allowed
func (u *uniformCache) MinCapacity() int {
	return u.minCapacity
}

// BatchSize returns the number of samples sampled using Sample()
func (u *uniformCache) BatchSize() int {
	return u.batchSize
}
