package tracker

import (
	"fmt"

	ts "github.com/samuelfneumann/btcrl/timestep"
)

// EpisodeLength tracks and saves the lengths of episodes in an
// experiment.
// Note that an episode must finish for this Tracker to record its
// length.
type EpisodeLength struct {
	episodeLengths []int
	filename       string
}

// NewEpisodeLength returns a new EpisodeLength Tracker which will save
// its data at the specified location filename
func NewEpisodeLength(filename string) *EpisodeLength {
	return &EpisodeLength{filename: filename}
}

// Track caches the episode length if the timestep passed to it is the
// last timestep in the episode.
func (e *EpisodeLength) Track(t ts.TimeStep) error {
	if t.Last() {
		e.episodeLengths = append(e.episodeLengths, t.Number)
	}
	return nil
}

// Data returns the length of every finished episode, oldest first
func (e *EpisodeLength) Data() []int {
	return e.episodeLengths
}

// Save saves the data tracked by the EpisodeLength Tracker to disk.
func (e *EpisodeLength) Save() error {
	if e.filename == "" {
		return fmt.Errorf("save: no file to save episode lengths to")
	}
	return Save(e.filename, e.episodeLengths)
}
