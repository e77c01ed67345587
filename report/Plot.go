package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/samuelfneumann/btcrl/environment/bitcoin"
	"gonum.org/v1/gonum/floats"
)

// Plot dimensions in pixels
const (
	PlotW   = 1200
	PlotH   = 500
	margin  = 20.0
	markerR = 4.0
)

var (
	background = color.RGBA{255, 255, 255, 255}
	priceLine  = color.RGBA{60, 60, 60, 255}
	buyColour  = color.RGBA{30, 150, 60, 255}
	sellColour = color.RGBA{200, 40, 40, 255}
)

// PlotTrades draws the price series y with a green marker at every buy
// signal and a red marker at every sell signal, and saves it as a PNG
// at filename
func PlotTrades(filename string, y, signals []float64) error {
	if len(y) < 2 {
		return fmt.Errorf("plotTrades: need at least 2 prices, have %v",
			len(y))
	}
	if len(signals) != len(y) {
		return fmt.Errorf("plotTrades: have %v signals for %v prices",
			len(signals), len(y))
	}

	lo, hi := floats.Min(y), floats.Max(y)
	if hi == lo {
		hi = lo + 1
	}
	x := func(i int) float64 {
		return margin + float64(i)*(PlotW-2*margin)/float64(len(y)-1)
	}
	py := func(price float64) float64 {
		return PlotH - margin - (price-lo)*(PlotH-2*margin)/(hi-lo)
	}

	dc := gg.NewContext(PlotW, PlotH)
	dc.SetColor(background)
	dc.Clear()

	dc.MoveTo(x(0), py(y[0]))
	for i := 1; i < len(y); i++ {
		dc.LineTo(x(i), py(y[i]))
	}
	dc.SetColor(priceLine)
	dc.SetLineWidth(1.5)
	dc.Stroke()

	for i, s := range signals {
		switch s {
		case bitcoin.BuySignal:
			dc.SetColor(buyColour)
		case bitcoin.SellSignal:
			dc.SetColor(sellColour)
		default:
			continue
		}
		dc.DrawCircle(x(i), py(y[i]), markerR)
		dc.Fill()
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("plotTrades: %v", err)
	}
	return dc.SavePNG(filename)
}
