package bitcoin

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/samuelfneumann/btcrl/market"
)

// Indicator periods
const (
	RSIPeriod = 14
	EMAPeriod = 20
	BBPeriod  = 20
	BBDev     = 2.0
)

// IndicatorHistory is the number of prices the indicators need before
// they can be computed. Series used with indicators must be longer.
const IndicatorHistory = BBPeriod

// returnScale scales log returns so that typical per-step moves are of
// order one
const returnScale = 100.0

// features computes the per-step feature rows of a price series. Row t
// only depends on prices up to and including t. Indicator values are
// zero until enough history exists to compute them.
func features(series market.Series, useIndicators bool) [][]float64 {
	returns := series.LogReturns()

	var rsi, ema, upper, middle, lower []float64
	if useIndicators {
		closes := series.Prices
		rsi = talib.Rsi(closes, RSIPeriod)
		ema = talib.Ema(closes, EMAPeriod)
		upper, middle, lower = talib.BBands(closes, BBPeriod, BBDev, BBDev,
			talib.SMA)
	}

	rows := make([][]float64, series.Len())
	for t := range rows {
		row := []float64{returns[t] * returnScale}

		if useIndicators {
			price := series.Prices[t]

			r := 0.0
			if t >= RSIPeriod {
				r = rsi[t]/100 - 0.5
			}

			gap := 0.0
			if t >= EMAPeriod-1 && ema[t] > 0 {
				gap = (price/ema[t] - 1) * returnScale
			}

			width := 0.0
			if t >= BBPeriod-1 && middle[t] > 0 {
				width = (upper[t] - lower[t]) / middle[t]
			}

			row = append(row, finite(r), finite(gap), finite(width))
		}
		rows[t] = row
	}
	return rows
}

// featuresPerStep returns the length of each row produced by features
func featuresPerStep(useIndicators bool) int {
	if useIndicators {
		return 4
	}
	return 1
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
