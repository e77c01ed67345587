package tracker

import (
	"path/filepath"
	"testing"

	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func episode(rewards ...float64) []ts.TimeStep {
	steps := []ts.TimeStep{ts.New(ts.First, 0, 1, nil, 0)}
	for i, r := range rewards {
		stepType := ts.Mid
		if i == len(rewards)-1 {
			stepType = ts.Last
		}
		steps = append(steps, ts.New(stepType, r, 1, nil, i+1))
	}
	return steps
}

func TestReturn(t *testing.T) {
	file := filepath.Join(t.TempDir(), "returns.gob")
	r := NewReturn(file)

	for _, step := range append(episode(1, 2, 3), episode(-1, 0.5)...) {
		require.NoError(t, r.Track(step))
	}
	assert.Equal(t, []float64{6, -0.5}, r.Data())

	require.NoError(t, r.Save())
	data, err := LoadData(file)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, -0.5}, data)
}

func TestReturnNonSequential(t *testing.T) {
	r := NewReturn("")
	require.NoError(t, r.Track(ts.New(ts.First, 0, 1, nil, 0)))
	assert.Error(t, r.Track(ts.New(ts.Mid, 1, 1, nil, 2)))
	assert.Error(t, r.Save())
}

func TestEpisodeLength(t *testing.T) {
	e := NewEpisodeLength("")
	for _, step := range append(episode(1, 2, 3), episode(1)...) {
		require.NoError(t, e.Track(step))
	}
	assert.Equal(t, []int{3, 1}, e.Data())

	_, err := LoadLengths(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}
