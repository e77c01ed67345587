package solver

import (
	"testing"

	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

func TestFromParamsRMSPropMomentum(t *testing.T) {
	s, err := FromParams(hyper.Params{"type": "rmsprop", "momentum": 0.95,
		"epsilon": 0.01}, 0.00025, 1)
	require.NoError(t, err)

	assert.Equal(t, RMSProp, s.Type)
	config := s.Config.(RMSPropConfig)
	assert.Equal(t, 0.95, config.Rho)
	assert.Equal(t, 0.01, config.Epsilon)
	assert.Equal(t, 0.00025, config.StepSize)
	assert.IsType(t, &G.RMSPropSolver{}, s.Solver)
}

func TestFromParamsDefaultsToAdam(t *testing.T) {
	s, err := FromParams(hyper.Params{}, 0.001, 1)
	require.NoError(t, err)
	assert.Equal(t, Adam, s.Type)
	assert.IsType(t, &G.AdamSolver{}, s.Solver)
}

func TestFromParamsSGD(t *testing.T) {
	s, err := FromParams(hyper.Params{"type": "SGD", "clip": 5}, 0.1, 1)
	require.NoError(t, err)
	assert.Equal(t, Vanilla, s.Type)
	assert.Equal(t, 5.0, s.Config.(VanillaConfig).Clip)
}

func TestFromParamsUnknown(t *testing.T) {
	_, err := FromParams(hyper.Params{"type": "nadam"}, 0.1, 1)
	assert.Error(t, err)
}
