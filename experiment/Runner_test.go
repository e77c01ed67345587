package experiment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/btcrl/environment/bitcoin"
	"github.com/samuelfneumann/btcrl/experiment/tracker"
	"github.com/samuelfneumann/btcrl/market"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// holder always holds and counts the calls the Runner makes
type holder struct {
	first, observed, steps, ended int
	eval                          bool
}

func (h *holder) Step() error { h.steps++; return nil }
func (h *holder) Observe(mat.Vector, ts.TimeStep) error {
	h.observed++
	return nil
}
func (h *holder) ObserveFirst(ts.TimeStep) error { h.first++; return nil }
func (h *holder) EndEpisode()                    { h.ended++ }
func (h *holder) SelectAction(ts.TimeStep) (*mat.VecDense, error) {
	return mat.NewVecDense(1, []float64{bitcoin.Hold}), nil
}
func (h *holder) Eval()        { h.eval = true }
func (h *holder) Train()       { h.eval = false }
func (h *holder) IsEval() bool { return h.eval }

func newEnv(t *testing.T) *bitcoin.BitcoinEnv {
	t.Helper()
	series, err := market.Synthetic(100, 100, 0, 0.01, 3)
	require.NoError(t, err)

	c := bitcoin.DefaultConfig()
	c.Limit = 10
	c.Window = 5
	env, err := bitcoin.New(series, c)
	require.NoError(t, err)
	return env
}

func TestRunCallsBackEveryEpisode(t *testing.T) {
	a := &holder{}
	r := NewRunner(a, newEnv(t))

	var seen []int
	err := r.Run(context.Background(), 3, func(r *Runner) (bool, error) {
		seen = append(seen, r.Episode())
		return true, nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, []float64{0, 0, 0}, r.EpisodeRewards())
	assert.Len(t, r.EpisodeDurations(), 3)
	assert.Equal(t, 0.0, r.MedianReward(100))

	// Episodes end at the step limit or when the price series runs out
	total := 0
	require.Len(t, r.EpisodeLengths(), 3)
	for _, l := range r.EpisodeLengths() {
		assert.True(t, l > 0 && l <= 10, "episode length %v", l)
		total += l
	}
	assert.Equal(t, total, r.Timesteps())

	assert.Equal(t, 3, a.first)
	assert.Equal(t, total, a.observed)
	assert.Equal(t, total, a.steps)
	assert.Equal(t, 3, a.ended)
}

func TestRunStops(t *testing.T) {
	r := NewRunner(&holder{}, newEnv(t))
	err := r.Run(context.Background(), 5, func(r *Runner) (bool, error) {
		return r.Episode() < 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Episode())

	failed := errors.New("insert failed")
	r = NewRunner(&holder{}, newEnv(t))
	err = r.Run(context.Background(), 5, func(*Runner) (bool, error) {
		return true, failed
	})
	assert.ErrorIs(t, err, failed)
	assert.Equal(t, 1, r.Episode())

	assert.Error(t, r.Run(context.Background(), 0, nil))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(&holder{}, newEnv(t))
	err := r.Run(ctx, 3, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.Episode())
	assert.Empty(t, r.EpisodeRewards())

	// A later run discards the abandoned episode
	require.NoError(t, r.Run(context.Background(), 1, nil))
	assert.Len(t, r.EpisodeLengths(), 1)
	assert.Len(t, r.EpisodeRewards(), 1)
}

func TestRegisteredTrackersAreSaved(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lengths.gob")
	r := NewRunner(&holder{}, newEnv(t))
	r.Register(tracker.NewEpisodeLength(file))

	require.NoError(t, r.Run(context.Background(), 2, nil))
	require.NoError(t, r.Save())

	lengths, err := tracker.LoadLengths(file)
	require.NoError(t, err)
	assert.Equal(t, r.EpisodeLengths(), lengths)
}
