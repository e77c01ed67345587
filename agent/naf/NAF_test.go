package naf

import (
	"errors"
	"testing"

	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/environment/bitcoin"
	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsupported(t *testing.T) {
	series, err := market.Synthetic(100, 100, 0, 0.01, 1)
	require.NoError(t, err)
	c := bitcoin.DefaultConfig()
	c.Limit = 10
	env, err := bitcoin.New(series, c)
	require.NoError(t, err)

	for _, typ := range []agent.Type{agent.NAF, agent.TRPO} {
		a, err := agent.New(typ, env, hyper.Params{}, 0)
		assert.Nil(t, a)
		assert.True(t, errors.Is(err, agent.ErrUnsupported), "%v", err)
		assert.Contains(t, err.Error(), string(typ))
	}

	_, err = agent.New(agent.TRPO, env, hyper.Params{}, 0)
	assert.Contains(t, err.Error(), "not implemented")
}
