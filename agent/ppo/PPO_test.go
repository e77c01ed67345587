package ppo

import (
	"math"
	"testing"

	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/environment/bitcoin"
	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newEnv(t *testing.T) *bitcoin.BitcoinEnv {
	t.Helper()
	series, err := market.Synthetic(200, 100, 0, 0.01, 2)
	require.NoError(t, err)

	c := bitcoin.DefaultConfig()
	c.Limit = 15
	c.Window = 4
	c.UseIndicators = true
	env, err := bitcoin.New(series, c)
	require.NoError(t, err)
	return env
}

func params() hyper.Params {
	return hyper.Params{
		"network": []interface{}{
			map[string]interface{}{"type": "lstm", "size": 5},
		},
		"batch_size":         10,
		"optimization_steps": 2,
		"learning_rate":      0.001,
		"optimizer":          map[string]interface{}{"type": "adam"},
	}
}

func TestLearns(t *testing.T) {
	env := newEnv(t)
	a, err := agent.New(agent.PPO, env, params(), 5)
	require.NoError(t, err)
	p := a.(*PPO)
	defer p.Close()

	steps := 0
	for steps < 35 {
		step, err := env.Reset()
		require.NoError(t, err)
		require.NoError(t, p.ObserveFirst(step))

		for !step.Last() {
			action, err := p.SelectAction(step)
			require.NoError(t, err)
			step, _, err = env.Step(action)
			require.NoError(t, err)
			require.NoError(t, p.Observe(action, step))
			require.NoError(t, p.Step())
			steps++
		}
		p.EndEpisode()
	}

	assert.Equal(t, steps/10, p.Updates())
	policyLoss, criticLoss := p.Losses()
	assert.False(t, math.IsNaN(policyLoss))
	assert.False(t, math.IsNaN(criticLoss))
	assert.GreaterOrEqual(t, criticLoss, 0.0)
}

func TestObserveRejectsForeignActions(t *testing.T) {
	env := newEnv(t)
	p, err := New(env, mustConfig(t, env), 5)
	require.NoError(t, err)
	defer p.Close()

	step, err := env.Reset()
	require.NoError(t, err)
	require.NoError(t, p.ObserveFirst(step))

	action := mat.NewVecDense(1, []float64{bitcoin.Hold})
	next, _, err := env.Step(action)
	require.NoError(t, err)
	assert.Error(t, p.Observe(action, next))
}

func TestConfigValidation(t *testing.T) {
	p := params()
	p["likelihood_ratio_clipping"] = 1.5
	_, err := ConfigFromParams(newEnv(t), p)
	assert.Error(t, err)
}

func mustConfig(t *testing.T, env *bitcoin.BitcoinEnv) Config {
	t.Helper()
	c, err := ConfigFromParams(env, params())
	require.NoError(t, err)
	return c
}
