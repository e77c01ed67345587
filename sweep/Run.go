package sweep

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/experiment"
	"github.com/samuelfneumann/btcrl/experiment/tracker"
	"github.com/samuelfneumann/btcrl/hyper"
	"github.com/samuelfneumann/btcrl/report"
	"github.com/samuelfneumann/btcrl/telemetry"
	"github.com/samuelfneumann/btcrl/utils/progressbar"
)

const progressWidth = 40

// Store records the episodes of a run
type Store interface {
	report.Inserter
	DeleteAgent(ctx context.Context, agentName string) (int64, error)
}

// Deps are the collaborators of a run
type Deps struct {
	Store Store
	Log   zerolog.Logger
	Out   io.Writer // Resolved configuration is printed here, default os.Stdout
	RunID string    // Generated if empty

	// Progress draws a progress bar over the episodes if set. It should
	// not be the same writer as Out or the console log.
	Progress io.Writer
}

// PrintConfig writes the agent name followed by its resolved
// hyperparameters to w
func PrintConfig(w io.Writer, agentName string, params hyper.Params) error {
	doc, err := params.YAML()
	if err != nil {
		return errors.Wrap(err, "print config")
	}
	_, err = fmt.Fprintf(w, "%s\n%s", agentName, doc)
	return err
}

// Run runs the experiment. Before training it removes every stored
// episode of the experiment's agent name, prints the resolved
// configuration, and creates the agent. Every finished episode is then
// logged and stored until all episodes have run, ctx is done, or an
// episode cannot be stored.
//
// The Runner is returned, also on error, so that callers can inspect
// the episodes that did finish.
func Run(ctx context.Context, exp Experiment, deps Deps) (*experiment.Runner,
	error) {
	if err := exp.Validate(); err != nil {
		return nil, errors.Wrap(err, "run")
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.RunID == "" {
		deps.RunID = uuid.NewString()
	}
	log := deps.Log.With().Str("run", deps.RunID).Logger()

	series, err := exp.Series(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "run")
	}
	env, err := exp.NewEnv(series)
	if err != nil {
		return nil, errors.Wrap(err, "run")
	}

	agentType, err := exp.AgentType()
	if err != nil {
		return nil, errors.Wrap(err, "run")
	}
	params, err := exp.Resolve(env)
	if err != nil {
		return nil, errors.Wrap(err, "run")
	}

	removed, err := deps.Store.DeleteAgent(ctx, exp.AgentName)
	if err != nil {
		return nil, errors.Wrap(err, "run")
	}
	log.Debug().Int64("rows", removed).Str("agent", exp.AgentName).
		Msg("removed previous episodes")

	if err := PrintConfig(deps.Out, exp.AgentName, params); err != nil {
		return nil, errors.Wrap(err, "run")
	}

	a, err := agent.New(agentType, env, params, exp.Seed)
	if err != nil {
		return nil, errors.Wrapf(err, "run: could not create %s", agentType)
	}
	if c, ok := a.(agent.Closer); ok {
		defer c.Close()
	}

	runner := experiment.NewRunner(a, env)
	if exp.SaveDir != "" {
		if err := os.MkdirAll(exp.SaveDir, 0755); err != nil {
			return nil, errors.Wrap(err, "run")
		}
		runner.Register(tracker.NewReturn(
			filepath.Join(exp.SaveDir, deps.RunID+"_returns.gob")))
		runner.Register(tracker.NewEpisodeLength(
			filepath.Join(exp.SaveDir, deps.RunID+"_lengths.gob")))
	}

	reporter := report.New(env, deps.Store, log, report.Options{
		Period:        exp.Report.Period,
		SnapshotEvery: exp.Report.SnapshotEvery,
		PlotDir:       exp.Report.PlotDir,
		RunID:         deps.RunID,
	})

	callback := reporter.Callback(ctx)
	if deps.Progress != nil {
		bar := progressbar.New(deps.Progress, progressWidth, exp.Episodes)
		defer bar.Close()
		callback = withProgress(callback, bar)
	}

	log.Info().Str("agent", exp.AgentName).Int("episodes", exp.Episodes).
		Int("steps", exp.Steps).Msg("training started")
	runErr := runner.Run(ctx, exp.Episodes, callback)

	log.Info().Int("episode", runner.Episode()).
		Msg(report.Finished(runner.Episode(), runner.EpisodeRewards()))

	if exp.SaveDir != "" {
		if err := runner.Save(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return runner, errors.Wrap(runErr, "run")
	}
	return runner, nil
}

// withProgress advances bar after every episode handled by fn
func withProgress(fn experiment.EpisodeFinished,
	bar *progressbar.ProgressBar) experiment.EpisodeFinished {
	return func(r *experiment.Runner) (bool, error) {
		cont, err := fn(r)
		bar.Increment()
		bar.Display()
		return cont, err
	}
}

var _ Store = (*telemetry.Store)(nil)
