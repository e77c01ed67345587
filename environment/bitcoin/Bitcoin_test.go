package bitcoin

import (
	"testing"

	"github.com/samuelfneumann/btcrl/market"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func flatSeries(n int, price float64) market.Series {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = price
	}
	return market.Series{Name: "flat", Prices: prices}
}

func newTestEnv(t *testing.T, series market.Series, limit int) *BitcoinEnv {
	c := DefaultConfig()
	c.Name = "DQNAgent;test"
	c.Limit = limit
	c.Window = 3
	c.Fee = 0.01
	c.Seed = 1

	env, err := New(series, c)
	require.NoError(t, err)
	return env
}

// resetBefore resets env until its episode starts before maxCursor
func resetBefore(t *testing.T, env *BitcoinEnv, maxCursor int) ts.TimeStep {
	for {
		step, err := env.Reset()
		require.NoError(t, err)
		if env.cursor < maxCursor {
			return step
		}
	}
}

func act(a int) *mat.VecDense {
	return mat.NewVecDense(1, []float64{float64(a)})
}

func TestBuySellAccounting(t *testing.T) {
	env := newTestEnv(t, flatSeries(50, 100), 10)
	first := resetBefore(t, env, 40)
	assert.True(t, first.First())
	assert.Equal(t, 3*2, first.Observation.Len())

	step, done, err := env.Step(act(Buy))
	require.NoError(t, err)
	assert.False(t, done)
	assert.InDelta(t, 900, env.Cash(), 1e-9)
	assert.InDelta(t, 99, env.Value(), 1e-9)
	assert.InDelta(t, -1.0/1000, step.Reward, 1e-12)

	_, _, err = env.Step(act(Sell))
	require.NoError(t, err)
	assert.InDelta(t, 0, env.Value(), 1e-9)
	assert.InDelta(t, 900+99*0.99, env.Cash(), 1e-9)

	_, _, err = env.Step(act(Sell))
	require.NoError(t, err)

	assert.Equal(t, []float64{BuySignal, SellSignal, HoldSignal}, env.Signals())
	assert.Equal(t, map[string]int{"sell": 2, "hold": 0, "buy": 1},
		env.ActionCounter())
	assert.Equal(t, 3, env.Time())
}

func TestStepLimitEndsEpisode(t *testing.T) {
	env := newTestEnv(t, flatSeries(50, 100), 4)
	resetBefore(t, env, 40)

	var step ts.TimeStep
	var err error
	done := false
	for i := 0; i < 4; i++ {
		require.False(t, done)
		step, done, err = env.Step(act(Hold))
		require.NoError(t, err)
	}

	assert.True(t, done)
	assert.Equal(t, ts.Timeout, step.EndType())
	assert.Len(t, env.YTrain(), 5)
	assert.Len(t, env.Signals(), 5)
	assert.Equal(t, []float64{1000}, env.EpisodeCashs())
	assert.Equal(t, []float64{0}, env.EpisodeValues())

	_, _, err = env.Step(act(Hold))
	assert.Error(t, err)
}

func TestBankruptcyIsTerminal(t *testing.T) {
	prices := []float64{100, 100, 100, 100, 100, 1, 1, 1, 1, 1}
	c := DefaultConfig()
	c.Limit = 100
	c.Window = 3
	c.TradeAmount = 1000
	c.Ruin = 0.5
	c.Seed = 3

	env, err := New(market.Series{Prices: prices}, c)
	require.NoError(t, err)

	// Retry until the episode starts before the crash
	for {
		_, err = env.Reset()
		require.NoError(t, err)
		if env.price() == 100 && env.cursor < 5 {
			break
		}
	}

	step, done, err := env.Step(act(Buy))
	require.NoError(t, err)
	for !done {
		step, done, err = env.Step(act(Hold))
		require.NoError(t, err)
	}
	assert.True(t, step.TerminalEnd())
}

func TestIllegalAction(t *testing.T) {
	env := newTestEnv(t, flatSeries(20, 10), 5)
	resetBefore(t, env, 15)

	_, _, err := env.Step(act(3))
	assert.Error(t, err)
	_, _, err = env.Step(mat.NewVecDense(1, []float64{0.5}))
	assert.Error(t, err)
}

func TestSeriesTooShort(t *testing.T) {
	c := DefaultConfig()
	c.Limit = 10
	_, err := New(flatSeries(c.Window+1, 10), c)
	assert.Error(t, err)
}

func TestSeriesTooShortForIndicators(t *testing.T) {
	c := DefaultConfig()
	c.Window = 4
	c.Limit = 5
	c.UseIndicators = true

	for _, n := range []int{10, 15, IndicatorHistory} {
		series, err := market.Synthetic(n, 1000, 0, 0.02, 9)
		require.NoError(t, err)
		_, err = New(series, c)
		assert.Error(t, err, "length %v", n)
	}

	series, err := market.Synthetic(IndicatorHistory+10, 1000, 0, 0.02, 9)
	require.NoError(t, err)
	env, err := New(series, c)
	require.NoError(t, err)
	_, err = env.Reset()
	assert.NoError(t, err)
}

func TestIndicatorObservation(t *testing.T) {
	series, err := market.Synthetic(200, 1000, 0, 0.02, 9)
	require.NoError(t, err)

	c := DefaultConfig()
	c.Limit = 10
	c.UseIndicators = true
	env, err := New(series, c)
	require.NoError(t, err)

	step, err := env.Reset()
	require.NoError(t, err)
	assert.Equal(t, c.Window*5, step.Observation.Len())
	assert.Equal(t, 5, env.StepFeatures())
	assert.Equal(t, env.ObservationSpec().Shape.Len(), step.Observation.Len())
}

func TestAbsoluteScore(t *testing.T) {
	c := DefaultConfig()
	c.Limit = 10
	c.Window = 2
	c.Fee = 0
	c.Reward = Absolute

	prices := []float64{100, 100, 100, 100, 100, 100, 200, 200, 200, 200, 200, 200}
	env, err := New(market.Series{Prices: prices}, c)
	require.NoError(t, err)

	for {
		_, err = env.Reset()
		require.NoError(t, err)
		if env.cursor == 4 {
			break
		}
	}
	step, _, err := env.Step(act(Buy))
	require.NoError(t, err)
	assert.InDelta(t, 0, step.Reward, 1e-12)

	_, _, err = env.Step(act(Hold))
	require.NoError(t, err)
	step, _, err = env.Step(act(Hold))
	require.NoError(t, err)
	assert.InDelta(t, 0.1, step.Reward, 1e-12)
}
