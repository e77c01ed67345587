// Package progressbar implements functionality of printing a progress
// bar to a terminal
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar implements progress bar functionality that must be
// manually managed. That is, Display must be called whenever an
// updated progress bar should be drawn. Each call redraws the bar in
// place on the current line of its writer, so the bar should be given
// a writer that nothing else prints to, such as os.Stderr when other
// output goes to os.Stdout.
//
// ProgressBar does not use concurrency.
type ProgressBar struct {
	w               io.Writer
	width           float64
	maxProgress     float64
	currentProgress float64
	bar             strings.Builder
	startTime       time.Time
}

// New returns a new ProgressBar that is width characters wide, reaches
// 100% after max calls to Increment, and draws to w
func New(w io.Writer, width, max int) *ProgressBar {
	if max < 1 {
		max = 1
	}
	return &ProgressBar{
		w:           w,
		width:       float64(width),
		maxProgress: float64(max),
		startTime:   time.Now(),
	}
}

// Increment increments the internal progress counter. Each time an
// iteration is performed, Increment should be called.
func (p *ProgressBar) Increment() {
	if p.currentProgress < p.maxProgress {
		p.currentProgress++
	}
}

// Progress returns the fraction of iterations completed
func (p *ProgressBar) Progress() float64 {
	return p.currentProgress / p.maxProgress
}

// String returns the bar as it is currently drawn
func (p *ProgressBar) String() string {
	p.bar.Reset()
	p.bar.WriteString("|")

	currentProg := p.Progress() * p.width
	for i := 0.0; i < currentProg; i++ {
		p.bar.WriteString("█")
	}
	for i := currentProg; i < p.width; i++ {
		p.bar.WriteString(" ")
	}
	fmt.Fprintf(&p.bar, "| [%.2f%% | elapsed: %v]", p.Progress()*100,
		time.Since(p.startTime).Truncate(time.Second))

	return p.bar.String()
}

// Display redraws the progress bar
func (p *ProgressBar) Display() {
	fmt.Fprintf(p.w, "\r\033[K%v", p.String())
}

// Close moves the writer past the bar
func (p *ProgressBar) Close() {
	fmt.Fprintln(p.w)
}
