// Package expreplay implements experience replay buffers which store
// transitions in a first-in-first-out ring and sample them either
// uniformly or in proportion to their priorities.
package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/timestep"
)

// Type is a kind of experience replay buffer
type Type string

const (
	Uniform     Type = "replay"
	Prioritized Type = "prioritized_replay"
)

// Batch is a batch of transitions sampled from a buffer. States are
// stored row major, one row per transition.
type Batch struct {
	Indices   []int
	State     []float64
	Action    []float64
	Reward    []float64
	Discount  []float64
	NextState []float64

	// Weights are the importance sampling weights of each transition.
	// They are all 1 for uniformly sampled batches.
	Weights []float64
}

// Len returns the number of transitions in the batch
func (b Batch) Len() int {
	return len(b.Indices)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer, removing the oldest
	// transition if the buffer is full
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer
	Sample() (Batch, error)

	// Update sets the TD errors of previously sampled transitions
	Update(indices []int, tdErrors []float64) error

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	Type              Type
	SampleSize        int
	MaxReplayCapacity int
	MinReplayCapacity int

	// Prioritized replay only
	PrioritizationWeight float64 // α
	ImportanceWeight     float64 // β
}

// Create creates and returns the ExperienceReplayer with the specified
// Config.
func (c Config) Create(featureSize, actionSize int,
	seed uint64) (ExperienceReplayer, error) {
	store, err := newRing(c.MinReplayCapacity, c.MaxReplayCapacity,
		c.SampleSize, featureSize, actionSize)
	if err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}

	switch c.Type {
	case Uniform, "":
		return newUniform(store, seed), nil

	case Prioritized:
		if c.PrioritizationWeight < 0 {
			return nil, fmt.Errorf("create: prioritization weight must be "+
				"non-negative, have %v", c.PrioritizationWeight)
		}
		if c.ImportanceWeight < 0 || c.ImportanceWeight > 1 {
			return nil, fmt.Errorf("create: importance weight must be in "+
				"[0, 1], have %v", c.ImportanceWeight)
		}
		return newPrioritized(store, c.PrioritizationWeight,
			c.ImportanceWeight, seed), nil
	}

	return nil, fmt.Errorf("create: unknown replay type %q", c.Type)
}

// FromParams returns the Config described by an agent's memory
// parameters. The memory parameter may either be the name of a buffer
// type or a map holding a type and its settings, for example
//
//	{type: prioritized_replay, capacity: 100, prioritization_weight: 0.6}
//
// The memory_capacity, first_update, and batch_size parameters of the
// agent are used if the memory does not declare its own.
func FromParams(p hyper.Params) (Config, error) {
	c := Config{
		Type:                 Uniform,
		PrioritizationWeight: 0.6,
		ImportanceWeight:     0.4,
	}

	memory := p
	switch m := p["memory"].(type) {
	case string:
		c.Type = Type(m)
	case nil:
	default:
		settings, err := p.Map("memory")
		if err != nil {
			return Config{}, fmt.Errorf("fromparams: %v", err)
		}
		memory = hyper.Merge(p, settings)
		name, err := settings.Str("type", string(Uniform))
		if err != nil {
			return Config{}, fmt.Errorf("fromparams: %v", err)
		}
		c.Type = Type(name)
	}

	var err error
	if c.SampleSize, err = memory.Int("batch_size", 32); err != nil {
		return Config{}, fmt.Errorf("fromparams: %v", err)
	}
	capacity, err := memory.Int("memory_capacity", c.SampleSize)
	if err != nil {
		return Config{}, fmt.Errorf("fromparams: %v", err)
	}
	if c.MaxReplayCapacity, err = memory.Int("capacity", capacity); err != nil {
		return Config{}, fmt.Errorf("fromparams: %v", err)
	}
	if c.MinReplayCapacity, err = memory.Int("first_update",
		c.SampleSize); err != nil {
		return Config{}, fmt.Errorf("fromparams: %v", err)
	}
	if c.MinReplayCapacity < c.SampleSize {
		c.MinReplayCapacity = c.SampleSize
	}
	if c.MinReplayCapacity > c.MaxReplayCapacity {
		c.MinReplayCapacity = c.MaxReplayCapacity
	}

	if c.PrioritizationWeight, err = memory.Float("prioritization_weight",
		c.PrioritizationWeight); err != nil {
		return Config{}, fmt.Errorf("fromparams: %v", err)
	}
	if c.ImportanceWeight, err = memory.Float("importance_weight",
		c.ImportanceWeight); err != nil {
		return Config{}, fmt.Errorf("fromparams: %v", err)
	}

	return c, nil
}
