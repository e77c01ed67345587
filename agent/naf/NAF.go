// Package naf registers the NAF and TRPO agent types so that their
// names resolve. Neither algorithm is implemented: NAF needs continuous
// actions, which the trading environment does not offer, and trust
// region policy optimization is outside this module's scope.
package naf

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/environment"
	"github.com/samuelfneumann/btcrl/hyper"
)

func init() {
	agent.Register(agent.NAF, NewNAF)
	agent.Register(agent.TRPO, NewTRPO)
}

// NewNAF returns an error wrapping agent.ErrUnsupported
func NewNAF(env environment.Environment, _ hyper.Params,
	_ uint64) (agent.Agent, error) {
	return nil, unsupported(agent.NAF, env,
		"normalized advantage functions require continuous actions")
}

// NewTRPO returns an error wrapping agent.ErrUnsupported
func NewTRPO(env environment.Environment, _ hyper.Params,
	_ uint64) (agent.Agent, error) {
	return nil, unsupported(agent.TRPO, env,
		"trust region policy optimization is not implemented, use PPO")
}

func unsupported(t agent.Type, env environment.Environment,
	reason string) error {
	return errors.Wrapf(agent.ErrUnsupported, "%v (%v actions): %v", t,
		env.ActionSpec().Cardinality, reason)
}
