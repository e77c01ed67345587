// Package bitcoin implements a simulated Bitcoin trading environment.
//
// The agent starts each episode holding only cash at a random offset
// into a price series. On every step it may sell, hold, or buy a fixed
// dollar amount of Bitcoin, paying a proportional fee on each trade.
// Observations are a window of recent per-step market features plus
// the fraction of the portfolio currently held in Bitcoin.
package bitcoin

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/btcrl/environment"
	"github.com/samuelfneumann/btcrl/market"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"gonum.org/v1/gonum/mat"
)

// Discrete actions
const (
	Sell = iota
	Hold
	Buy

	NumActions
)

// Signals recorded for each step
const (
	SellSignal = -1.0
	HoldSignal = 0.0
	BuySignal  = 1.0
)

// ActionNames maps each action to the name used in action counters
var ActionNames = [NumActions]string{"sell", "hold", "buy"}

// Config describes a BitcoinEnv
type Config struct {
	Name          string     `yaml:"-"`
	Limit         int        `yaml:"-"`
	Window        int        `yaml:"window"`
	InitialCash   float64    `yaml:"initial_cash"`
	TradeAmount   float64    `yaml:"trade_amount"`
	Fee           float64    `yaml:"fee"`
	Ruin          float64    `yaml:"ruin"`
	UseIndicators bool       `yaml:"use_indicators"`
	Reward        RewardType `yaml:"reward"`
	Discount      float64    `yaml:"discount"`
	Seed          uint64     `yaml:"seed"`
}

// DefaultConfig returns the default environment configuration
func DefaultConfig() Config {
	return Config{
		Window:      30,
		InitialCash: 1000,
		TradeAmount: 100,
		Fee:         0.0026,
		Ruin:        0.05,
		Reward:      Delta,
		Discount:    1.0,
	}
}

// Validate checks that a Config describes a usable environment
func (c Config) Validate() error {
	switch {
	case c.Limit < 1:
		return fmt.Errorf("validate: step limit must be positive, have %v",
			c.Limit)
	case c.Window < 1:
		return fmt.Errorf("validate: window must be positive, have %v",
			c.Window)
	case c.InitialCash <= 0 || c.TradeAmount <= 0:
		return fmt.Errorf("validate: initial cash and trade amount must be " +
			"positive")
	case c.Fee < 0 || c.Fee >= 1:
		return fmt.Errorf("validate: fee must be in [0, 1), have %v", c.Fee)
	case c.Ruin < 0 || c.Ruin >= 1:
		return fmt.Errorf("validate: ruin must be in [0, 1), have %v", c.Ruin)
	case c.Discount < 0 || c.Discount > 1:
		return fmt.Errorf("validate: discount must be in [0, 1], have %v",
			c.Discount)
	}
	return nil
}

// BitcoinEnv implements environment.Environment for trading Bitcoin
// against a replayed price series
type BitcoinEnv struct {
	environment.Task
	Config

	series   market.Series
	features [][]float64
	perStep  int

	// Portfolio
	cash   float64
	units  float64
	cursor int

	lastStep ts.TimeStep
	state    *mat.VecDense

	// Episode history
	yTrain        []float64
	signals       []float64
	actionCounter map[string]int
	episodeCashs  []float64
	episodeValues []float64
}

// New returns a new BitcoinEnv trading on series. The environment
// must be Reset before it is stepped.
func New(series market.Series, c Config) (*BitcoinEnv, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	if c.UseIndicators && series.Len() <= IndicatorHistory {
		return nil, fmt.Errorf("new: series of length %v too short for "+
			"indicators, need more than %v prices", series.Len(),
			IndicatorHistory)
	}

	// Every episode needs a full window of history and at least one
	// price to step to
	starts := series.Len() - c.Window - 1
	if starts < 1 {
		return nil, fmt.Errorf("new: series of length %v too short for "+
			"window %v", series.Len(), c.Window)
	}

	starter := environment.NewCategoricalStarter([]int{starts}, c.Seed)
	task, err := NewTask(c.Reward, starter, c.Limit, series.Len(),
		c.InitialCash, c.Ruin)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return &BitcoinEnv{
		Task:          task,
		Config:        c,
		series:        series,
		features:      features(series, c.UseIndicators),
		perStep:       featuresPerStep(c.UseIndicators) + 1,
		actionCounter: newActionCounter(),
	}, nil
}

func newActionCounter() map[string]int {
	counter := make(map[string]int, NumActions)
	for _, name := range ActionNames {
		counter[name] = 0
	}
	return counter
}

// Reset resets the environment, begins a new episode, and returns
// the first timestep of the new episode
func (b *BitcoinEnv) Reset() (ts.TimeStep, error) {
	b.cursor = int(b.Start().AtVec(0)) + b.Window
	b.cash = b.InitialCash
	b.units = 0

	b.yTrain = b.yTrain[:0]
	b.signals = b.signals[:0]
	b.actionCounter = newActionCounter()

	b.state = newState(b.cash, b.units, b.price(), b.cursor)
	b.lastStep = ts.New(ts.First, 0, b.Discount, b.observation(), 0)
	return b.lastStep, nil
}

// Step takes one environmental step given action a and returns the next
// timestep and whether or not the episode has ended. Actions are
// discrete: 0 sells, 1 holds, and 2 buys.
func (b *BitcoinEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if b.state == nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: environment must be " +
			"reset before stepping")
	}
	if b.lastStep.Last() {
		return b.lastStep, true, fmt.Errorf("step: episode has ended")
	}
	if a.Len() != 1 {
		return ts.TimeStep{}, false, fmt.Errorf("step: actions should be "+
			"1-dimensional, have %v", a.Len())
	}

	action := int(a.AtVec(0))
	if float64(action) != a.AtVec(0) || action < 0 || action >= NumActions {
		return ts.TimeStep{}, false, fmt.Errorf("step: illegal action %v "+
			"∉ (0, 1, 2)", a.AtVec(0))
	}

	price := b.price()
	b.yTrain = append(b.yTrain, price)
	b.signals = append(b.signals, b.trade(action, price))
	b.actionCounter[ActionNames[action]]++

	b.cursor++
	nextState := newState(b.cash, b.units, b.price(), b.cursor)
	reward := b.GetReward(b.state, a, nextState)

	// Enders act on the portfolio state, the agent sees the observation
	number := b.lastStep.Number + 1
	stateStep := ts.New(ts.Mid, reward, b.Discount, nextState, number)
	b.End(&stateStep)

	nextStep := ts.New(stateStep.StepType, reward, b.Discount,
		b.observation(), number)
	nextStep.SetEnd(stateStep.EndType())

	b.state = nextState
	b.lastStep = nextStep

	if nextStep.Last() {
		b.yTrain = append(b.yTrain, b.price())
		b.signals = append(b.signals, HoldSignal)
		b.episodeCashs = append(b.episodeCashs, b.Cash())
		b.episodeValues = append(b.episodeValues, b.Value())
	}

	return nextStep, nextStep.Last(), nil
}

// trade executes action at the given price and returns its signal
func (b *BitcoinEnv) trade(action int, price float64) float64 {
	switch action {
	case Buy:
		spend := math.Min(b.cash, b.TradeAmount)
		if spend <= 0 {
			return HoldSignal
		}
		b.cash -= spend
		b.units += spend * (1 - b.Fee) / price
		return BuySignal

	case Sell:
		proceeds := math.Min(b.units*price, b.TradeAmount)
		if proceeds <= 0 {
			return HoldSignal
		}
		b.units -= proceeds / price
		if b.units < 1e-12 {
			b.units = 0
		}
		b.cash += proceeds * (1 - b.Fee)
		return SellSignal
	}
	return HoldSignal
}

func (b *BitcoinEnv) price() float64 {
	return b.series.Prices[b.cursor]
}

// observation returns the feature window ending at the current price,
// oldest first. Each step's market features are followed by the
// fraction of the portfolio currently held in Bitcoin, so that every
// step of the window has the same width.
func (b *BitcoinEnv) observation() *mat.VecDense {
	position := 0.0
	if total := b.cash + b.Value(); total > 0 {
		position = b.Value() / total
	}

	obs := make([]float64, 0, b.Window*b.perStep)
	for t := b.cursor - b.Window + 1; t <= b.cursor; t++ {
		obs = append(obs, b.features[t]...)
		obs = append(obs, position)
	}

	return mat.NewVecDense(len(obs), obs)
}

// CurrentTimeStep returns the current timestep of the environment
func (b *BitcoinEnv) CurrentTimeStep() ts.TimeStep {
	return b.lastStep
}

// ActionSpec returns the action specification of the environment
func (b *BitcoinEnv) ActionSpec() environment.Spec {
	return environment.NewDiscreteActionSpec(NumActions)
}

// ObservationSpec returns the observation specification of the
// environment
func (b *BitcoinEnv) ObservationSpec() environment.Spec {
	dims := b.Window * b.perStep

	lower := make([]float64, dims)
	upper := make([]float64, dims)
	for i := range lower {
		if (i+1)%b.perStep == 0 {
			lower[i], upper[i] = 0, 1
			continue
		}
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}

	return environment.NewSpec(mat.NewVecDense(dims, nil),
		environment.Observation, mat.NewVecDense(dims, lower),
		mat.NewVecDense(dims, upper), environment.Continuous)
}

// DiscountSpec returns the discounting specification of the environment
func (b *BitcoinEnv) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{b.Discount})
	upperBound := mat.NewVecDense(1, []float64{b.Discount})

	return environment.NewSpec(shape, environment.Discount, lowerBound,
		upperBound, environment.Continuous)
}

// States describes the observations of the environment
func (b *BitcoinEnv) States() map[string]interface{} {
	return b.ObservationSpec().Describe()
}

// Actions describes the actions of the environment
func (b *BitcoinEnv) Actions() map[string]interface{} {
	return b.ActionSpec().Describe()
}

// SeqLen returns the number of timesteps in each observation window
func (b *BitcoinEnv) SeqLen() int {
	return b.Window
}

// StepFeatures returns the number of features observed for each
// timestep of the observation window
func (b *BitcoinEnv) StepFeatures() int {
	return b.perStep
}

// Name returns the name of the agent trading in the environment
func (b *BitcoinEnv) Name() string {
	return b.Config.Name
}

// Time returns the number of steps taken in the current episode
func (b *BitcoinEnv) Time() int {
	return b.lastStep.Number
}

// Cash returns the cash currently held
func (b *BitcoinEnv) Cash() float64 {
	return b.cash
}

// Value returns the current market value of the Bitcoin held
func (b *BitcoinEnv) Value() float64 {
	if b.state == nil {
		return 0
	}
	return b.units * b.price()
}

// EpisodeCashs returns the final cash of every finished episode
func (b *BitcoinEnv) EpisodeCashs() []float64 {
	return b.episodeCashs
}

// EpisodeValues returns the final holdings value of every finished
// episode
func (b *BitcoinEnv) EpisodeValues() []float64 {
	return b.episodeValues
}

// YTrain returns the prices seen so far in the current episode
func (b *BitcoinEnv) YTrain() []float64 {
	return b.yTrain
}

// Signals returns the trade signal of every step of the current
// episode, aligned with YTrain
func (b *BitcoinEnv) Signals() []float64 {
	return b.signals
}

// ActionCounter returns how often each action was selected in the
// current episode
func (b *BitcoinEnv) ActionCounter() map[string]int {
	return b.actionCounter
}

// String implements the fmt.Stringer interface
func (b *BitcoinEnv) String() string {
	return fmt.Sprintf("BitcoinEnv  |  Step: %v  |  Cash: %.2f  |  "+
		"Value: %.2f  |  Price: %.2f", b.Time(), b.Cash(), b.Value(),
		b.series.Prices[b.cursor])
}
