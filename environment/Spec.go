package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an acion, an observation, a discount, or a reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

func (s SpecType) String() string {
	switch s {
	case Action:
		return "action"
	case Observation:
		return "observation"
	case Discount:
		return "discount"
	default:
		return "reward"
	}
}

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, discount, or reward in
// an environment
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification
// The shape argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// arguments describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if shape.Len() != lowerBound.Len() {
		panic(fmt.Sprintf("shape length %v must match lower bounds length %v",
			shape.Len(), lowerBound.Len()))
	}
	if shape.Len() != upperBound.Len() {
		panic(fmt.Sprintf("shape length %v must match uuper bounds length %v",
			shape.Len(), upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}

// NewDiscreteActionSpec returns the Spec of a single discrete action
// enumerated as 0, 1, ..., numActions-1
func NewDiscreteActionSpec(numActions int) Spec {
	shape := mat.NewVecDense(1, nil)
	lower := mat.NewVecDense(1, []float64{0})
	upper := mat.NewVecDense(1, []float64{float64(numActions - 1)})
	return NewSpec(shape, Action, lower, upper, Discrete)
}

// NumActions returns the number of discrete actions described by an
// action Spec. It panics if the Spec does not describe one-dimensional
// discrete actions enumerated from 0.
func (s Spec) NumActions() int {
	if s.Type != Action || s.Cardinality != Discrete {
		panic("numActions: spec does not describe discrete actions")
	}
	if s.LowerBound.Len() != 1 || s.LowerBound.AtVec(0) != 0 {
		panic("numActions: actions must be 1-dimensional and start at 0")
	}
	return int(s.UpperBound.AtVec(0)) + 1
}

// Describe returns a plain description of the Spec, suitable for
// embedding into a hyperparameter configuration and printing
func (s Spec) Describe() map[string]interface{} {
	desc := map[string]interface{}{
		"type":  s.Type.String(),
		"shape": []int{s.Shape.Len()},
	}
	if s.Cardinality == Discrete {
		desc["kind"] = "int"
		desc["num_actions"] = int(s.UpperBound.AtVec(0)) + 1
	} else {
		desc["kind"] = "float"
	}
	return desc
}
