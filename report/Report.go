// Package report implements the episode finished callback of a
// training run. After every episode it logs a short summary of recent
// episodes and records the episode in the telemetry store.
package report

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samuelfneumann/btcrl/experiment"
	"github.com/samuelfneumann/btcrl/telemetry"
	"github.com/samuelfneumann/btcrl/utils/floatutils"
)

// Metrics are the episode statistics a trading environment exposes
type Metrics interface {
	Name() string
	Time() int
	Cash() float64
	Value() float64
	EpisodeCashs() []float64
	EpisodeValues() []float64
	YTrain() []float64
	Signals() []float64
	ActionCounter() map[string]int
}

// Inserter stores finished episodes
type Inserter interface {
	InsertEpisode(ctx context.Context, e telemetry.Episode) (int64, error)
}

// Options configures a Reporter
type Options struct {
	Period        int    // Episodes summarised, default 5
	SnapshotEvery int    // Episodes between price/signal snapshots, default 200
	PlotDir       string // Snapshots are also plotted here if set
	RunID         string
}

// Reporter summarises and records finished episodes
type Reporter struct {
	env   Metrics
	store Inserter
	log   zerolog.Logger
	Options
}

// New returns a new Reporter of the environment m, storing episodes
// in store
func New(m Metrics, store Inserter, log zerolog.Logger, opts Options) *Reporter {
	if opts.Period <= 0 {
		opts.Period = 5
	}
	if opts.SnapshotEvery <= 0 {
		opts.SnapshotEvery = 200
	}
	return &Reporter{
		env:     m,
		store:   store,
		log:     log,
		Options: opts,
	}
}

// Summary holds the statistics logged after an episode
type Summary struct {
	Episode   int
	Time      int
	AvgLen    int
	AvgReward float64
	AvgCash   float64
	AvgValue  float64
	CashValue float64
	Actions   map[string]int
}

// String implements the fmt.Stringer interface
func (s Summary) String() string {
	return fmt.Sprintf("Ep.%v time:%v, reward:%v cash_val:%v, actions:%v",
		s.Episode, s.Time, s.AvgReward, s.CashValue, s.Actions)
}

// Summarize computes the Summary of episode from the last period
// entries of the episode histories. Medians of lengths are truncated
// to whole steps. Rewards are fractions of the starting cash and are
// rounded to three places rather than truncated to an integer, which
// would log 0 for almost every episode. Cash and value medians are
// rounded to one place.
func Summarize(episode int, rewards []float64, lengths []int, m Metrics,
	period int) Summary {
	avgLen := floatutils.Median(floatutils.Tail(floatutils.Ints(lengths), period))
	if math.IsNaN(avgLen) {
		avgLen = 0
	}

	avgCash := floatutils.Round(floatutils.Median(floatutils.Tail(m.EpisodeCashs(), period)), 1)
	avgValue := floatutils.Round(floatutils.Median(floatutils.Tail(m.EpisodeValues(), period)), 1)

	return Summary{
		Episode:   episode,
		Time:      m.Time(),
		AvgLen:    int(avgLen),
		AvgReward: floatutils.Round(floatutils.Median(floatutils.Tail(rewards, period)), 3),
		AvgCash:   avgCash,
		AvgValue:  avgValue,
		CashValue: floatutils.Round(avgCash+avgValue, 2),
		Actions:   m.ActionCounter(),
	}
}

// Snapshot reports whether the prices and signals of episode are
// recorded
func (r *Reporter) Snapshot(episode int) bool {
	return episode%r.SnapshotEvery == 0
}

// Record builds the telemetry row of the episode that just finished.
// Prices and signals are copied only on snapshot episodes.
func (r *Reporter) Record(episode int, reward float64, steps int) telemetry.Episode {
	e := telemetry.Episode{
		RunID:     r.RunID,
		Episode:   episode,
		Reward:    reward,
		Cash:      r.env.Cash(),
		Value:     r.env.Value(),
		AgentName: r.env.Name(),
		Steps:     steps,
	}
	if r.Snapshot(episode) {
		e.Y = append([]float64{}, r.env.YTrain()...)
		e.Signals = append([]float64{}, r.env.Signals()...)
	}
	return e
}

// Callback returns the experiment.EpisodeFinished function that logs
// and stores every episode run by a Runner. The callback never stops
// training itself; it only returns an error when an episode cannot be
// stored.
func (r *Reporter) Callback(ctx context.Context) experiment.EpisodeFinished {
	return func(run *experiment.Runner) (bool, error) {
		rewards, lengths := run.EpisodeRewards(), run.EpisodeLengths()
		if len(rewards) == 0 || len(lengths) == 0 {
			return true, errors.New("report: no finished episode")
		}

		s := Summarize(run.Episode(), rewards, lengths, r.env, r.Period)
		r.log.Info().
			Int("episode", s.Episode).
			Int("time", s.Time).
			Int("avg_len", s.AvgLen).
			Float64("avg_reward", s.AvgReward).
			Float64("cash_val", s.CashValue).
			Msg(s.String())

		e := r.Record(run.Episode(), rewards[len(rewards)-1],
			lengths[len(lengths)-1])
		if _, err := r.store.InsertEpisode(ctx, e); err != nil {
			return true, errors.Wrap(err, "report")
		}

		if e.Y != nil && r.PlotDir != "" {
			file := filepath.Join(r.PlotDir, PlotName(e.AgentName, e.Episode))
			if err := PlotTrades(file, e.Y, e.Signals); err != nil {
				r.log.Warn().Err(err).Str("file", file).Msg("could not plot trades")
			}
		}
		return true, nil
	}
}

// Finished returns the message logged once training has finished
func Finished(episode int, rewards []float64) string {
	return fmt.Sprintf("Learning finished. Total episodes: %v. "+
		"AVG(rewards[-100:])=%v.", episode,
		floatutils.Round(floatutils.Median(floatutils.Tail(rewards, 100)), 1))
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// PlotName returns the file name of the trade plot of an episode
func PlotName(agent string, episode int) string {
	return fmt.Sprintf("%s_ep%d.png", unsafeName.ReplaceAllString(agent, "_"),
		episode)
}
