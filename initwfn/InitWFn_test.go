package initwfn

import (
	"testing"

	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

func TestFromParams(t *testing.T) {
	init, err := FromParams(hyper.Params{"type": "constant", "value": 0.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5},
		init(G.Float64, 2, 2).([]float64))

	init, err = FromParams(hyper.Params{})
	require.NoError(t, err)
	assert.Len(t, init(G.Float64, 3, 4).([]float64), 12)

	_, err = FromParams(hyper.Params{"type": "orthogonal"})
	assert.Error(t, err)

	_, err = FromParams(hyper.Params{"type": "he_normal", "gain": "big"})
	assert.Error(t, err)
}
