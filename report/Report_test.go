package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/btcrl/environment/bitcoin"
	"github.com/samuelfneumann/btcrl/experiment"
	"github.com/samuelfneumann/btcrl/market"
	"github.com/samuelfneumann/btcrl/telemetry"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type metrics struct {
	cashs, values, y, signals []float64
}

func (m *metrics) Name() string                  { return "DQNAgent;test" }
func (m *metrics) Time() int                     { return 7 }
func (m *metrics) Cash() float64                 { return 950 }
func (m *metrics) Value() float64                { return 55.5 }
func (m *metrics) EpisodeCashs() []float64       { return m.cashs }
func (m *metrics) EpisodeValues() []float64      { return m.values }
func (m *metrics) YTrain() []float64             { return m.y }
func (m *metrics) Signals() []float64            { return m.signals }
func (m *metrics) ActionCounter() map[string]int { return map[string]int{"buy": 2} }

type store struct {
	rows []telemetry.Episode
	err  error
}

func (s *store) InsertEpisode(_ context.Context, e telemetry.Episode) (int64,
	error) {
	if s.err != nil {
		return 0, s.err
	}
	s.rows = append(s.rows, e)
	return int64(len(s.rows)), nil
}

func TestSummarizeMedianOfLastFive(t *testing.T) {
	m := &metrics{
		cashs:  []float64{0, 0, 100.04, 200, 300, 400, 500.08},
		values: []float64{1, 2, 3, 4, 5},
	}
	s := Summarize(5, []float64{1, 2, 3, 4, 5}, []int{10, 20, 30, 40, 50}, m, 5)
	assert.Equal(t, 3.0, s.AvgReward)
	assert.Equal(t, 30, s.AvgLen)
	assert.Equal(t, 300.0, s.AvgCash)
	assert.Equal(t, 3.0, s.AvgValue)
	assert.Equal(t, 303.0, s.CashValue)
	assert.Equal(t, 7, s.Time)

	// Fewer than period episodes, even count
	s = Summarize(2, []float64{1, 2}, []int{3, 4}, m, 5)
	assert.Equal(t, 1.5, s.AvgReward)
	assert.Equal(t, 3, s.AvgLen)

	// Only the last five count
	s = Summarize(7, []float64{100, 100, 1, 2, 3, 4, 5}, []int{1, 1, 1, 1, 1, 1, 1}, m, 5)
	assert.Equal(t, 3.0, s.AvgReward)
	assert.Equal(t, "Ep.7 time:7, reward:3 cash_val:303, actions:map[buy:2]",
		s.String())

	// Fractional rewards keep three places
	s = Summarize(3, []float64{0.01234, -0.5, 0.0456}, []int{1, 1, 1}, m, 5)
	assert.Equal(t, 0.012, s.AvgReward)
}

func TestRecordSnapshots(t *testing.T) {
	m := &metrics{y: []float64{1, 2}, signals: []float64{1, 0}}
	r := New(m, &store{}, zerolog.Nop(), Options{RunID: "run"})

	for _, episode := range []int{1, 199, 201, 399} {
		e := r.Record(episode, 0.1, 20)
		assert.Nil(t, e.Y, "episode %v", episode)
		assert.Nil(t, e.Signals, "episode %v", episode)
	}

	for _, episode := range []int{200, 400} {
		e := r.Record(episode, 0.1, 20)
		assert.Equal(t, []float64{1, 2}, e.Y)
		assert.Equal(t, []float64{1, 0}, e.Signals)
	}

	e := r.Record(3, 0.25, 12)
	assert.Equal(t, telemetry.Episode{RunID: "run", Episode: 3, Reward: 0.25,
		Cash: 950, Value: 55.5, AgentName: "DQNAgent;test", Steps: 12}, e)
}

// holder always holds
type holder struct{}

func (holder) Step() error                           { return nil }
func (holder) Observe(mat.Vector, ts.TimeStep) error { return nil }
func (holder) ObserveFirst(ts.TimeStep) error        { return nil }
func (holder) EndEpisode()                           {}
func (holder) Eval()                                 {}
func (holder) Train()                                {}
func (holder) IsEval() bool                          { return false }
func (holder) SelectAction(ts.TimeStep) (*mat.VecDense, error) {
	return mat.NewVecDense(1, []float64{bitcoin.Hold}), nil
}

func newEnv(t *testing.T) *bitcoin.BitcoinEnv {
	t.Helper()
	series, err := market.Synthetic(100, 100, 0, 0.01, 5)
	require.NoError(t, err)

	c := bitcoin.DefaultConfig()
	c.Name = "DQNAgent;report"
	c.Limit = 8
	c.Window = 4
	env, err := bitcoin.New(series, c)
	require.NoError(t, err)
	return env
}

func TestCallbackStoresEveryEpisode(t *testing.T) {
	env := newEnv(t)
	s := &store{}
	plots := t.TempDir()

	var buf bytes.Buffer
	r := New(env, s, zerolog.New(&buf), Options{SnapshotEvery: 2,
		PlotDir: plots})
	runner := experiment.NewRunner(holder{}, env)
	require.NoError(t, runner.Run(context.Background(), 3,
		r.Callback(context.Background())))

	require.Len(t, s.rows, 3)
	for i, row := range s.rows {
		assert.Equal(t, i+1, row.Episode)
		assert.Equal(t, "DQNAgent;report", row.AgentName)
		assert.Equal(t, runner.EpisodeLengths()[i], row.Steps)
	}
	assert.Nil(t, s.rows[0].Y)
	assert.NotEmpty(t, s.rows[1].Y)
	assert.Len(t, s.rows[1].Signals, len(s.rows[1].Y))
	assert.Nil(t, s.rows[2].Y)

	assert.Contains(t, buf.String(), "Ep.1 time:")
	assert.Contains(t, buf.String(), "Ep.3 time:")

	_, err := os.Stat(filepath.Join(plots, PlotName("DQNAgent;report", 2)))
	assert.NoError(t, err)
}

func TestCallbackStopsOnInsertError(t *testing.T) {
	env := newEnv(t)
	failed := errors.New("disk full")
	r := New(env, &store{err: failed}, zerolog.Nop(), Options{})

	runner := experiment.NewRunner(holder{}, env)
	err := runner.Run(context.Background(), 3, r.Callback(context.Background()))
	assert.ErrorIs(t, err, failed)
	assert.Equal(t, 1, runner.Episode())
}

func TestFinished(t *testing.T) {
	assert.Equal(t, "Learning finished. Total episodes: 5. "+
		"AVG(rewards[-100:])=3.", Finished(5, []float64{1, 2, 3, 4, 5}))
}

func TestPlotTradesValidates(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, PlotTrades(filepath.Join(dir, "a.png"), []float64{1}, []float64{0}))
	assert.Error(t, PlotTrades(filepath.Join(dir, "a.png"), []float64{1, 2}, []float64{0}))
	assert.NoError(t, PlotTrades(filepath.Join(dir, "b.png"), []float64{2, 2, 2},
		[]float64{1, -1, 0}))
}
