package exploration

import (
	"testing"

	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpsilonDecay(t *testing.T) {
	s, err := FromParams(hyper.Params{"type": "epsilon_decay", "epsilon": 1.0,
		"epsilon_final": 0.1, "epsilon_timesteps": 100})
	require.NoError(t, err)

	assert.Equal(t, 1.0, s.Value(0))
	assert.InDelta(t, 0.55, s.Value(50), 1e-12)
	assert.Equal(t, 0.1, s.Value(100))
	assert.Equal(t, 0.1, s.Value(1e6))
}

func TestConstantAndNone(t *testing.T) {
	s, err := FromParams(hyper.Params{"type": "constant", "epsilon": 0.05})
	require.NoError(t, err)
	assert.Equal(t, 0.05, s.Value(12345))

	s, err = FromParams(hyper.Params{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Value(0))

	_, err = FromParams(hyper.Params{"type": "ornstein_uhlenbeck"})
	assert.Error(t, err)
}
