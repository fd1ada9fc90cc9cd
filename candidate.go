package pulsescan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PulseCandidate describes one detected pulse: a statistically significant,
// short-lived excursion of a pixel (or merged cluster of adjacent pixels)
// above its running baseline. Once emitted a candidate is immutable and keeps
// no reference to the frames that produced it.
type PulseCandidate struct {
	// Timestamp of the frame that triggered the excursion.
	Timestamp time.Time `json:"timestamp"`

	// Pixel is the flattened index of the candidate location; X and Y are
	// its coordinates. For merged clusters this is the lowest pixel index
	// in the cluster.
	Pixel int `json:"pixel"`
	X     int `json:"x"`
	Y     int `json:"y"`

	// Magnitude is the peak deviation in standard deviations above the
	// local baseline.
	Magnitude float64 `json:"magnitude"`

	// Duration is the number of consecutive frames the excursion
	// persisted, at least 1.
	Duration int `json:"duration"`

	// Run identifies the detection run that produced this candidate.
	Run uuid.UUID `json:"run"`
}

// String returns a one-line summary of the candidate.
func (c PulseCandidate) String() string {
	return fmt.Sprintf("pulse at (%d,%d) t=%s magnitude=%.1fσ duration=%d", c.X, c.Y, c.Timestamp.UTC().Format(time.RFC3339Nano), c.Magnitude, c.Duration)
}

// Sink receives emitted candidates, append-only. The detector calls Emit once
// per finalized candidate, in emission order; an Emit error propagates to the
// detector's caller.
type Sink interface {
	Emit(PulseCandidate) error
}
