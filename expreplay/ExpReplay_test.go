package expreplay

import (
	"testing"

	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func transition(i float64) timestep.Transition {
	return timestep.Transition{
		State:     mat.NewVecDense(2, []float64{i, -i}),
		Action:    mat.NewVecDense(1, []float64{float64(int(i) % 3)}),
		Reward:    i,
		Discount:  0.99,
		NextState: mat.NewVecDense(2, []float64{i + 1, -i - 1}),
	}
}

func TestUniformErrorsUntilMinCapacity(t *testing.T) {
	c := Config{Type: Uniform, SampleSize: 2, MinReplayCapacity: 3,
		MaxReplayCapacity: 5}
	buffer, err := c.Create(2, 1, 1)
	require.NoError(t, err)

	_, err = buffer.Sample()
	assert.True(t, IsEmptyBuffer(err))

	require.NoError(t, buffer.Add(transition(0)))
	_, err = buffer.Sample()
	assert.True(t, IsInsufficientSamples(err))

	require.NoError(t, buffer.Add(transition(1)))
	require.NoError(t, buffer.Add(transition(2)))
	b, err := buffer.Sample()
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	assert.Len(t, b.State, 4)
	assert.Equal(t, []float64{1, 1}, b.Weights)

	for i, index := range b.Indices {
		assert.Equal(t, float64(index), b.Reward[i])
		assert.Equal(t, []float64{float64(index), -float64(index)},
			b.State[2*i:2*i+2])
		assert.Equal(t, float64(index)+1, b.NextState[2*i])
	}
}

func TestUniformEvictsOldest(t *testing.T) {
	c := Config{Type: Uniform, SampleSize: 3, MinReplayCapacity: 3,
		MaxReplayCapacity: 3}
	buffer, err := c.Create(2, 1, 7)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, buffer.Add(transition(float64(i))))
	}
	assert.Equal(t, 3, buffer.Capacity())

	for i := 0; i < 20; i++ {
		b, err := buffer.Sample()
		require.NoError(t, err)
		for _, r := range b.Reward {
			assert.GreaterOrEqual(t, r, 2.0, "evicted transition sampled")
		}
	}
}

func TestAddValidatesSizes(t *testing.T) {
	c := Config{SampleSize: 1, MinReplayCapacity: 1, MaxReplayCapacity: 2}
	buffer, err := c.Create(3, 1, 1)
	require.NoError(t, err)
	assert.Error(t, buffer.Add(transition(0)))

	c.SampleSize = 3
	_, err = c.Create(3, 1, 1)
	assert.Error(t, err)
}

func TestPrioritizedFavoursLargeErrors(t *testing.T) {
	c := Config{Type: Prioritized, SampleSize: 4, MinReplayCapacity: 4,
		MaxReplayCapacity: 4, PrioritizationWeight: 1, ImportanceWeight: 1}
	buffer, err := c.Create(2, 1, 3)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, buffer.Add(transition(float64(i))))
	}

	require.NoError(t, buffer.Update([]int{0, 1, 2, 3},
		[]float64{0, 0, 0, 100}))

	counts := make([]int, 4)
	for i := 0; i < 50; i++ {
		b, err := buffer.Sample()
		require.NoError(t, err)
		for j, index := range b.Indices {
			counts[index]++
			assert.LessOrEqual(t, b.Weights[j], 1.0)
		}
	}
	assert.Greater(t, counts[3], counts[0]+counts[1]+counts[2])

	assert.Error(t, buffer.Update([]int{9}, []float64{1}))
	assert.Error(t, buffer.Update([]int{0, 1}, []float64{1}))
}

func TestPrioritizedNewTransitionsGetMaxPriority(t *testing.T) {
	c := Config{Type: Prioritized, SampleSize: 1, MinReplayCapacity: 1,
		MaxReplayCapacity: 4, PrioritizationWeight: 1}
	buffer, err := c.Create(2, 1, 3)
	require.NoError(t, err)

	require.NoError(t, buffer.Add(transition(0)))
	require.NoError(t, buffer.Update([]int{0}, []float64{5}))
	require.NoError(t, buffer.Add(transition(1)))

	p := buffer.(*prioritizedCache)
	assert.Equal(t, p.tree.get(0), p.tree.get(1))
	assert.InDelta(t, 2*p.tree.get(0), p.tree.total(), 1e-9)
}

func TestSumTreeFind(t *testing.T) {
	s := newSumTree(5)
	for i, p := range []float64{1, 2, 3, 4} {
		s.set(i, p)
	}
	assert.Equal(t, 10.0, s.total())
	assert.Equal(t, 0, s.find(0.5, 4))
	assert.Equal(t, 1, s.find(1.5, 4))
	assert.Equal(t, 2, s.find(5.5, 4))
	assert.Equal(t, 3, s.find(9.99, 4))
	assert.Equal(t, 3, s.find(10.5, 4), "overflowing mass picks last leaf")
}

func TestFromParams(t *testing.T) {
	c, err := FromParams(hyper.Params{
		"memory":          "prioritized_replay",
		"batch_size":      16,
		"memory_capacity": 100,
		"first_update":    40,
	})
	require.NoError(t, err)
	assert.Equal(t, Config{
		Type:                 Prioritized,
		SampleSize:           16,
		MaxReplayCapacity:    100,
		MinReplayCapacity:    40,
		PrioritizationWeight: 0.6,
		ImportanceWeight:     0.4,
	}, c)

	c, err = FromParams(hyper.Params{
		"batch_size": 8,
		"memory": map[string]interface{}{
			"type":                  "replay",
			"capacity":              50,
			"prioritization_weight": 0.5,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Uniform, c.Type)
	assert.Equal(t, 50, c.MaxReplayCapacity)
	assert.Equal(t, 8, c.MinReplayCapacity)
	assert.Equal(t, 0.5, c.PrioritizationWeight)

	_, err = Config{Type: "episodic", SampleSize: 1, MinReplayCapacity: 1,
		MaxReplayCapacity: 1}.Create(1, 1, 0)
	assert.Error(t, err)
}
