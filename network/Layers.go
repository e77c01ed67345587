package network

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Layer types
const (
	Dense = "dense"
	LSTM  = "lstm"
)

// LayerSpec declares a single hidden layer of a network
type LayerSpec struct {
	Type       string  `yaml:"type"`
	Size       int     `yaml:"size"`
	Dropout    float64 `yaml:"dropout,omitempty"`
	Activation string  `yaml:"activation,omitempty"`
}

// String implements the fmt.Stringer interface
func (l LayerSpec) String() string {
	return fmt.Sprintf("%v(%v)", l.Type, l.Size)
}

// Validate checks that a list of layers can be built. Recurrent layers
// must all come before any dense layers.
func Validate(layers []LayerSpec) error {
	seenDense := false
	for i, l := range layers {
		switch l.Type {
		case LSTM:
			if seenDense {
				return fmt.Errorf("validate: layer %v: lstm layers must "+
					"precede dense layers", i)
			}
		case Dense:
			seenDense = true
			if _, err := ParseActivation(l.Activation); err != nil {
				return fmt.Errorf("validate: layer %v: %v", i, err)
			}
		default:
			return fmt.Errorf("validate: layer %v: unknown layer type %q", i,
				l.Type)
		}

		if l.Size < 1 {
			return fmt.Errorf("validate: layer %v: size must be positive, "+
				"have %v", i, l.Size)
		}
		if l.Dropout < 0 || l.Dropout >= 1 {
			return fmt.Errorf("validate: layer %v: dropout must be in [0, 1), "+
				"have %v", i, l.Dropout)
		}
	}
	return nil
}

// ParseLayers decodes a list of layer declarations, such as those held
// in a hyperparameter configuration, into LayerSpecs.
func ParseLayers(v interface{}) ([]LayerSpec, error) {
	if layers, ok := v.([]LayerSpec); ok {
		return layers, Validate(layers)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("parselayers: %v", err)
	}

	var layers []LayerSpec
	if err := yaml.Unmarshal(data, &layers); err != nil {
		return nil, fmt.Errorf("parselayers: %v", err)
	}
	return layers, Validate(layers)
}
