// Package sweep assembles and runs a single training run of a
// hyperparameter sweep: it resolves the agent's configuration from its
// layered sources and drives the agent on a Bitcoin market.
package sweep

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/environment/bitcoin"
	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/market"
	"github.com/samuelfneumann/btcrl/telemetry"
	"gopkg.in/yaml.v3"

	// Registered agents
	_ "github.com/samuelfneumann/btcrl/agent/deepq"
	_ "github.com/samuelfneumann/btcrl/agent/naf"
	_ "github.com/samuelfneumann/btcrl/agent/ppo"
)

// Price series sources
const (
	Synthetic = "synthetic"
	CSV       = "csv"
	SQL       = "sqlite"
)

// MarketConfig describes where the price series comes from
type MarketConfig struct {
	Source string `yaml:"source"`

	// csv and sqlite sources
	Path   string `yaml:"path"`
	Table  string `yaml:"table"`
	Column string `yaml:"column"`

	// synthetic source
	Length     int     `yaml:"length"`
	Start      float64 `yaml:"start"`
	Drift      float64 `yaml:"drift"`
	Volatility float64 `yaml:"volatility"`
}

// ReportConfig configures the episode finished callback
type ReportConfig struct {
	Period        int    `yaml:"period"`
	SnapshotEvery int    `yaml:"snapshot_every"`
	PlotDir       string `yaml:"plot_dir"`
}

// Experiment describes one training run. The agent's hyperparameters
// are assembled from Common, the block of Agents for the agent's type,
// values read from the environment, and Overrides followed by the
// selected Preset, with later sources winning.
type Experiment struct {
	Episodes  int    `yaml:"episodes"`
	Steps     int    `yaml:"steps"` // Steps per episode
	AgentName string `yaml:"agent_name"`
	Seed      uint64 `yaml:"seed"`

	Market      MarketConfig   `yaml:"market"`
	Environment bitcoin.Config `yaml:"environment"`
	Report      ReportConfig   `yaml:"report"`
	SaveDir     string         `yaml:"save_dir"` // Episode histories are saved here if set

	Common    hyper.Params            `yaml:"common"`
	Agents    map[string]hyper.Params `yaml:"agents"`
	Overrides hyper.Params            `yaml:"overrides"`
	Presets   map[string]hyper.Params `yaml:"presets"`
	Preset    string                  `yaml:"preset"`
}

// Default returns the default experiment: a double DQN with two
// 150 unit LSTM layers and prioritized replay, trained with the
// "custom" batch preset
func Default() Experiment {
	const (
		episodes = 50000
		steps    = 20000
		batch    = 16
	)

	lstm := func() []interface{} {
		return []interface{}{
			map[string]interface{}{"type": "lstm", "size": 150, "dropout": .2},
			map[string]interface{}{"type": "lstm", "size": 150, "dropout": .2},
		}
	}

	memAgent := func() hyper.Params {
		return hyper.Params{
			"clip_loss":  .1,
			"double_dqn": true,
			"discount":   .99,
		}
	}

	return Experiment{
		Episodes:  episodes,
		Steps:     steps,
		AgentName: "DQNAgent;priority;150-150",
		Market: MarketConfig{
			Source:     Synthetic,
			Length:     100000,
			Start:      1000,
			Drift:      0,
			Volatility: 0.01,
		},
		Environment: bitcoin.DefaultConfig(),
		Report: ReportConfig{
			Period:        5,
			SnapshotEvery: 200,
		},

		Common: hyper.Params{
			"network":    lstm(),
			"batch_size": 150,
			"exploration": map[string]interface{}{
				"type":              "epsilon_decay",
				"epsilon":           1.0,
				"epsilon_final":     0.1,
				"epsilon_timesteps": 5 * steps,
			},
			"optimizer": map[string]interface{}{
				"type":     "rmsprop",
				"momentum": 0.95,
				"epsilon":  0.01,
			},
			"learning_rate": 0.00025,
		},
		Agents: map[string]hyper.Params{
			string(agent.DQN): memAgent(),
			string(agent.NAF): memAgent(),
			string(agent.PPO): {
				"max_timesteps": steps,
				"learning_rate": .001,
			},
			string(agent.TRPO): {},
		},
		Overrides: hyper.Params{
			"tf_session_config": map[string]interface{}{
				"gpu_options": map[string]interface{}{
					"per_process_gpu_memory_fraction": .4,
				},
			},
			"memory":  "prioritized_replay",
			"network": lstm(),
		},
		Presets: map[string]hyper.Params{
			"tforce": {
				"batch_size":              8,
				"memory_capacity":         50,
				"first_update":            20,
				"target_update_frequency": 10,
			},
			"custom": {
				"batch_size":              batch,
				"memory_capacity":         int(batch * 6.25),
				"first_update":            int(batch * 2.5),
				"target_update_frequency": int(batch * 1.25),
			},
			"blog": {
				"batch_size":              32,
				"memory_capacity":         200000,
				"first_update":            int(32 * 2.5),
				"target_update_frequency": 10000,
			},
			"none": {},
		},
		Preset: "custom",
	}
}

// Load reads an experiment file. Keys missing from the file keep their
// Default values; top level keys of the parameter blocks are merged
// into the defaults.
func Load(path string) (Experiment, error) {
	exp := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Experiment{}, errors.Wrap(err, "load experiment")
	}
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return Experiment{}, errors.Wrapf(err, "load experiment %s", path)
	}
	return exp, nil
}

// Validate checks that the experiment can be run. Hyperparameters are
// not checked; the agent rejects those it cannot use when it is
// created.
func (e Experiment) Validate() error {
	if e.Episodes < 1 {
		return errors.Errorf("validate: episodes must be positive, have %d",
			e.Episodes)
	}
	if e.Steps < 1 {
		return errors.Errorf("validate: steps must be positive, have %d",
			e.Steps)
	}
	if _, err := agent.ParseName(e.AgentName); err != nil {
		return errors.Wrap(err, "validate")
	}
	if _, ok := e.Presets[e.Preset]; e.Preset != "" && !ok {
		return errors.Errorf("validate: unknown preset %q", e.Preset)
	}
	return nil
}

// AgentType returns the type of agent named by AgentName
func (e Experiment) AgentType() (agent.Type, error) {
	return agent.ParseName(e.AgentName)
}

// Env describes the environment an agent exposes to its configuration
type Env interface {
	States() map[string]interface{}
	Actions() map[string]interface{}
}

// Resolve returns the hyperparameters of the experiment's agent,
// merged in order from the common block, the agent type's block, the
// states and actions of env, the overrides, and the selected preset.
// Later sources win on every key.
func (e Experiment) Resolve(env Env) (hyper.Params, error) {
	agentType, err := e.AgentType()
	if err != nil {
		return nil, errors.Wrap(err, "resolve")
	}

	fromEnv := hyper.Params{
		"states":  env.States(),
		"actions": env.Actions(),
	}

	return hyper.Merge(
		e.Common,
		e.Agents[string(agentType)],
		fromEnv,
		e.Overrides,
		e.Presets[e.Preset],
	), nil
}

// Series loads the price series the experiment trades on
func (e Experiment) Series(ctx context.Context) (market.Series, error) {
	m := e.Market
	switch m.Source {
	case Synthetic, "":
		return market.Synthetic(m.Length, m.Start, m.Drift, m.Volatility,
			e.Seed)

	case CSV:
		return market.LoadCSV(m.Path, m.Column)

	case SQL:
		store, err := telemetry.Open(telemetry.Config{Path: m.Path,
			Name: "market"})
		if err != nil {
			return market.Series{}, errors.Wrap(err, "series")
		}
		defer store.Close()
		return market.LoadSQL(ctx, store.DB(), m.Table, m.Column)
	}
	return market.Series{}, errors.Errorf("series: unknown source %q",
		m.Source)
}

// NewEnv creates the trading environment of the experiment on series
func (e Experiment) NewEnv(series market.Series) (*bitcoin.BitcoinEnv, error) {
	c := e.Environment
	c.Name = e.AgentName
	c.Limit = e.Steps
	if c.Seed == 0 {
		c.Seed = e.Seed
	}
	return bitcoin.New(series, c)
}
