// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be described in hyperparameter configurations.
package solver

import (
	"fmt"
	"strings"

	"github.com/samuelfneumann/btcrl/hyper"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "adam"
	RMSProp Type = "rmsprop"
	Vanilla Type = "sgd"
)

// Solver wraps a Gorgonia Solver together with the configuration that
// created it.
type Solver struct {
	G.Solver
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}

// FromParams creates a Solver from an optimizer configuration such as
//
//	{type: rmsprop, momentum: 0.95, epsilon: 0.01}
//
// using the given learning rate. The optimizer type defaults to adam.
// Gorgonia's RMSProp has no momentum term, so an RMSProp momentum is
// used as the decay rate of the squared gradient average.
func FromParams(optimizer hyper.Params, learningRate float64,
	batchSize int) (*Solver, error) {
	name, err := optimizer.Str("type", string(Adam))
	if err != nil {
		return nil, fmt.Errorf("fromparams: %v", err)
	}

	clip, err := optimizer.Float("clip", -1.0)
	if err != nil {
		return nil, fmt.Errorf("fromparams: %v", err)
	}

	switch Type(strings.ToLower(name)) {
	case RMSProp:
		eps, err := optimizer.Float("epsilon", 1e-8)
		if err != nil {
			return nil, fmt.Errorf("fromparams: %v", err)
		}
		rho, err := optimizer.Float("decay", 0.999)
		if err != nil {
			return nil, fmt.Errorf("fromparams: %v", err)
		}
		if rho, err = optimizer.Float("momentum", rho); err != nil {
			return nil, fmt.Errorf("fromparams: %v", err)
		}
		return NewRMSProp(learningRate, eps, 0.001, rho, batchSize, clip)

	case Adam:
		eps, err := optimizer.Float("epsilon", 1e-8)
		if err != nil {
			return nil, fmt.Errorf("fromparams: %v", err)
		}
		beta1, err := optimizer.Float("beta1", 0.9)
		if err != nil {
			return nil, fmt.Errorf("fromparams: %v", err)
		}
		beta2, err := optimizer.Float("beta2", 0.999)
		if err != nil {
			return nil, fmt.Errorf("fromparams: %v", err)
		}
		return NewAdam(learningRate, eps, beta1, beta2, batchSize)

	case Vanilla, "vanilla":
		return NewVanilla(learningRate, batchSize, clip)
	}

	return nil, fmt.Errorf("fromparams: unknown optimizer type %q", name)
}
