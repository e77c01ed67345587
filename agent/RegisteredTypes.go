package agent

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samuelfneumann/btcrl/environment"
	"github.com/samuelfneumann/btcrl/hyper"
)

// Type represents a specific type of agent, named the way agents are
// named in experiment configurations.
type Type string

const (
	DQN  Type = "DQNAgent"
	PPO  Type = "PPOAgent"
	NAF  Type = "NAFAgent"
	TRPO Type = "TRPOAgent"
)

// ErrUnsupported is returned by constructors of registered agent types
// which cannot be built
var ErrUnsupported = errors.New("agent type not supported")

// Constructor creates a new agent acting in env from a flat map of
// hyperparameters
type Constructor func(env environment.Environment, params hyper.Params,
	seed uint64) (Agent, error)

// Registered types with the package. No Type's are registered with
// this package upon initialization. Each separate package is in charge
// of registering its Type with the package separately to avoid
// circular imports.
var (
	registeredMu    sync.RWMutex
	registeredTypes = make(map[Type]Constructor)
)

// Register registers the constructor of an agent's Type. Registering
// a Type twice replaces its constructor.
func Register(agentType Type, c Constructor) {
	registeredMu.Lock()
	defer registeredMu.Unlock()
	registeredTypes[agentType] = c
}

// Registered returns the sorted registered agent Types
func Registered() []Type {
	registeredMu.RLock()
	defer registeredMu.RUnlock()

	types := make([]Type, 0, len(registeredTypes))
	for t := range registeredTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// New creates a new agent of the given Type
func New(agentType Type, env environment.Environment, params hyper.Params,
	seed uint64) (Agent, error) {
	registeredMu.RLock()
	c, ok := registeredTypes[agentType]
	registeredMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("new: agent type %q not registered", agentType)
	}
	return c(env, params, seed)
}

// ParseName returns the agent Type of an agent name. Agent names
// describe the agent type followed by a semicolon separated list of
// details, for example "DQNAgent;priority;150-150".
func ParseName(name string) (Type, error) {
	t := strings.TrimSpace(strings.SplitN(name, ";", 2)[0])
	if t == "" {
		return "", fmt.Errorf("parsename: no agent type in name %q", name)
	}
	return Type(t), nil
}
