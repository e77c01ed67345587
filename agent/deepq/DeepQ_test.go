package deepq

import (
	"math"
	"testing"

	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/environment/bitcoin"
	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T) *bitcoin.BitcoinEnv {
	t.Helper()
	series, err := market.Synthetic(200, 100, 0, 0.01, 1)
	require.NoError(t, err)

	c := bitcoin.DefaultConfig()
	c.Limit = 25
	c.Window = 4
	env, err := bitcoin.New(series, c)
	require.NoError(t, err)
	return env
}

func params() hyper.Params {
	return hyper.Params{
		"network": []interface{}{
			map[string]interface{}{"type": "lstm", "size": 6, "dropout": 0.2},
			map[string]interface{}{"type": "dense", "size": 6},
		},
		"batch_size":              4,
		"memory":                  "prioritized_replay",
		"memory_capacity":         32,
		"first_update":            8,
		"update_frequency":        2,
		"target_update_frequency": 3,
		"double_dqn":              true,
		"clip_loss":               0.1,
		"discount":                0.99,
		"learning_rate":           0.001,
		"exploration": map[string]interface{}{
			"type":              "epsilon_decay",
			"epsilon":           1.0,
			"epsilon_final":     0.1,
			"epsilon_timesteps": 50,
		},
		"optimizer": map[string]interface{}{
			"type": "rmsprop", "momentum": 0.95, "epsilon": 0.01,
		},
	}
}

func TestConfigFromParams(t *testing.T) {
	c, err := ConfigFromParams(newEnv(t), params())
	require.NoError(t, err)

	assert.Equal(t, 4, c.BatchSize())
	assert.Equal(t, 32, c.ExpReplay.MaxReplayCapacity)
	assert.Equal(t, 8, c.ExpReplay.MinReplayCapacity)
	assert.Equal(t, 3, c.Network.Outputs)
	assert.Equal(t, 4, c.Network.SeqLen)
	assert.True(t, c.DoubleDQN)
	assert.Equal(t, 1, c.RepeatUpdate)

	p := params()
	p["target_update_frequency"] = 0
	_, err = ConfigFromParams(newEnv(t), p)
	assert.Error(t, err)
}

func TestLearns(t *testing.T) {
	env := newEnv(t)
	a, err := agent.New(agent.DQN, env, params(), 3)
	require.NoError(t, err)
	d := a.(*DeepQ)
	defer d.Close()

	for episode := 0; episode < 6; episode++ {
		step, err := env.Reset()
		require.NoError(t, err)
		require.NoError(t, d.ObserveFirst(step))

		for !step.Last() {
			action, err := d.SelectAction(step)
			require.NoError(t, err)
			assert.Contains(t, []float64{0, 1, 2}, action.AtVec(0))

			step, _, err = env.Step(action)
			require.NoError(t, err)
			require.NoError(t, d.Observe(action, step))
			require.NoError(t, d.Step())
		}
		d.EndEpisode()
	}

	assert.Greater(t, d.GradientSteps(), 0)
	assert.False(t, math.IsNaN(d.Loss()))
	assert.Less(t, d.behaviour.Epsilon(), 1.0)
}

func TestEvalDoesNotLearn(t *testing.T) {
	env := newEnv(t)
	d, err := agent.New(agent.DQN, env, params(), 3)
	require.NoError(t, err)
	defer d.(*DeepQ).Close()
	d.Eval()

	step, err := env.Reset()
	require.NoError(t, err)
	require.NoError(t, d.ObserveFirst(step))
	for !step.Last() {
		action, err := d.SelectAction(step)
		require.NoError(t, err)
		step, _, err = env.Step(action)
		require.NoError(t, err)
		require.NoError(t, d.Observe(action, step))
		require.NoError(t, d.Step())
	}
	assert.Equal(t, 0, d.(*DeepQ).GradientSteps())
}
