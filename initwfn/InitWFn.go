// Package initwfn implements functionality to describe Gorgonia
// InitWFn's in hyperparameter configurations.
package initwfn

import (
	"fmt"
	"strings"

	"github.com/samuelfneumann/btcrl/hyper"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
type Type string

// Available InitWFn types
const (
	GlorotU  Type = "glorot_uniform"
	GlorotN  Type = "glorot_normal"
	HeU      Type = "he_uniform"
	HeN      Type = "he_normal"
	Zeroes   Type = "zeroes"
	Ones     Type = "ones"
	Constant Type = "constant"
	Gaussian Type = "gaussian"
	Uniform  Type = "uniform"
)

// FromParams returns the Gorgonia InitWFn described by an initializer
// configuration such as
//
//	{type: glorot_uniform, gain: 1.0}
//
// An empty configuration gives Glorot uniform initialization with a
// gain of 1.
func FromParams(p hyper.Params) (G.InitWFn, error) {
	name, err := p.Str("type", string(GlorotU))
	if err != nil {
		return nil, fmt.Errorf("fromparams: %v", err)
	}

	float := func(key string, def float64) float64 {
		if err != nil {
			return def
		}
		var v float64
		v, err = p.Float(key, def)
		return v
	}

	var init G.InitWFn
	switch Type(strings.ToLower(name)) {
	case GlorotU:
		init = G.GlorotU(float("gain", 1.0))
	case GlorotN:
		init = G.GlorotN(float("gain", 1.0))
	case HeU:
		init = G.HeU(float("gain", 1.0))
	case HeN:
		init = G.HeN(float("gain", 1.0))
	case Zeroes:
		init = G.Zeroes()
	case Ones:
		init = G.Ones()
	case Constant:
		init = G.ValuesOf(float("value", 0.0))
	case Gaussian:
		init = G.Gaussian(float("mean", 0.0), float("stddev", 1.0))
	case Uniform:
		init = G.Uniform(float("low", -1.0), float("high", 1.0))
	default:
		return nil, fmt.Errorf("fromparams: unknown initializer %q", name)
	}

	if err != nil {
		return nil, fmt.Errorf("fromparams: %v", err)
	}
	return init, nil
}
