// Package detect scans a frame stream for short, statistically significant
// brightness pulses against a per-pixel running baseline.
package detect

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	pulsescan "github.com/skywatch/pulsescan-go"
)

// Config holds detector parameters. Validate before use; Run validates on
// entry and returns a ConfigError for bad values.
type Config struct {
	// Threshold is the detection threshold in standard deviations above
	// the running baseline. Must be > 0.
	Threshold float64

	// Warmup is the number of initial frames used only to seed the
	// baseline. No candidates are emitted during warm-up. Must be > 0.
	Warmup int

	// Decay is the exponential weight given to each new sample in the
	// baseline update, in (0, 1].
	Decay float64

	// SigmaFloor substitutes for the standard deviation when the running
	// estimate is smaller, so constant backgrounds never divide by zero.
	// Must be > 0.
	SigmaFloor float64

	// Connectivity is the pixel neighborhood used to merge adjacent
	// excursions into one candidate: 4 or 8.
	Connectivity int

	// Bin is the spatial binning factor. 1 detects per pixel; larger
	// values average Bin x Bin blocks and detect per region. Candidate
	// coordinates are the pixel origin of the region.
	Bin int

	// TraceDir, if not empty, receives a PNG of every frame that opens a
	// new excursion.
	TraceDir string

	Verbose bool
	Logger  golog.Logger
}

// DefaultConfig returns a config with reasonable starting parameters:
// 5 sigma threshold, 20 frame warm-up, per-pixel detection.
func DefaultConfig() Config {
	return Config{
		Threshold:    5,
		Warmup:       20,
		Decay:        0.05,
		SigmaFloor:   1,
		Connectivity: 8,
		Bin:          1,
	}
}

// Validate checks the config, returning a ConfigError naming the first bad
// field.
func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return &pulsescan.ConfigError{Field: "Threshold", Reason: "must be > 0"}
	}
	if c.Warmup <= 0 {
		return &pulsescan.ConfigError{Field: "Warmup", Reason: "must be > 0"}
	}
	if c.Decay <= 0 || c.Decay > 1 {
		return &pulsescan.ConfigError{Field: "Decay", Reason: "must be in (0, 1]"}
	}
	if c.SigmaFloor <= 0 {
		return &pulsescan.ConfigError{Field: "SigmaFloor", Reason: "must be > 0"}
	}
	if c.Connectivity != 4 && c.Connectivity != 8 {
		return &pulsescan.ConfigError{Field: "Connectivity", Reason: "must be 4 or 8"}
	}
	if c.Bin < 1 {
		return &pulsescan.ConfigError{Field: "Bin", Reason: "must be >= 1"}
	}
	return nil
}

// Stats summarizes one detection run.
type Stats struct {
	Frames     int
	Candidates int
	Run        uuid.UUID
}

// pixelState is the excursion state machine tag for one tracked location.
type pixelState uint8

const (
	stateBaseline pixelState = iota
	stateExcursion
)

// excursion is an in-progress candidate for one tracked location.
type excursion struct {
	start    time.Time
	duration int
	peak     float64
}

// detector holds the per-run arenas. All per-location state lives in flat
// slices indexed by binned pixel position.
type detector struct {
	cfg  Config
	run  uuid.UUID
	sink pulsescan.Sink

	// Source frame geometry, fixed for the stream's lifetime.
	srcWidth, srcHeight int
	// Working (binned) geometry.
	width, height int

	mean  []float64
	vari  []float64
	state []pixelState
	open  []excursion

	// warm holds per-location samples collected during warm-up.
	warm   [][]float64
	warmed bool

	frames  int
	emitted int
	traceN  int
}

// Run pulls frames from stream until io.EOF and emits pulse candidates to
// sink. The stream is wrapped with ordering and dimension checks; violations
// are fatal. On io.EOF or a mid-stream storage error, open excursions are
// finalized and emitted before Run returns. Cancelling ctx discards open
// excursions and returns ctx.Err().
func Run(ctx context.Context, cfg Config, stream pulsescan.FrameStream, sink pulsescan.Sink) (Stats, error) {
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	d := &detector{cfg: cfg, run: uuid.New(), sink: sink}
	d.logf("detection run %s starting", d.run)

	src := pulsescan.Order(stream)
	for {
		select {
		case <-ctx.Done():
			d.logf("run %s cancelled after %d frames, discarding open excursions", d.run, d.frames)
			return d.stats(), ctx.Err()
		default:
		}

		f, err := src.Next()
		if err == io.EOF {
			if ferr := d.finish(); ferr != nil {
				return d.stats(), ferr
			}
			d.logf("run %s done: %d frames, %d candidates", d.run, d.frames, d.emitted)
			return d.stats(), nil
		}
		if err != nil {
			if pulsescan.IsIO(err) {
				// Bad storage: keep what the statistics already
				// support, then report.
				if ferr := d.finish(); ferr != nil {
					return d.stats(), ferr
				}
				return d.stats(), err
			}
			return d.stats(), err
		}

		if err := d.frame(f); err != nil {
			return d.stats(), err
		}
	}
}

func (d *detector) stats() Stats {
	return Stats{Frames: d.frames, Candidates: d.emitted, Run: d.run}
}

func (d *detector) logf(format string, args ...interface{}) {
	if !d.cfg.Verbose {
		return
	}
	logger := d.cfg.Logger
	if logger == nil {
		logger = golog.Global()
	}
	logger.Debugf(format, args...)
}

// frame feeds one frame through warm-up, detection and baseline update.
func (d *detector) frame(f *pulsescan.Frame) error {
	if d.frames == 0 {
		d.init(f)
	}
	d.frames++

	samples := d.binned(f)

	if !d.warmed {
		for i, v := range samples {
			d.warm[i] = append(d.warm[i], v)
		}
		if d.frames == d.cfg.Warmup {
			d.seed()
		}
		return nil
	}

	return d.scan(f.Timestamp, samples)
}

// init sizes the arenas from the first frame's geometry.
func (d *detector) init(f *pulsescan.Frame) {
	d.srcWidth, d.srcHeight = f.Width, f.Height
	d.width = (f.Width + d.cfg.Bin - 1) / d.cfg.Bin
	d.height = (f.Height + d.cfg.Bin - 1) / d.cfg.Bin
	n := d.width * d.height
	d.mean = make([]float64, n)
	d.vari = make([]float64, n)
	d.state = make([]pixelState, n)
	d.open = make([]excursion, n)
	d.warm = make([][]float64, n)
	for i := range d.warm {
		d.warm[i] = make([]float64, 0, d.cfg.Warmup)
	}
	d.logf("run %s: %dx%d frames, %dx%d tracked locations (bin %d)", d.run, f.Width, f.Height, d.width, d.height, d.cfg.Bin)
}

// binned returns the frame's samples in working geometry: the frame itself
// for Bin == 1, or block averages for region mode.
func (d *detector) binned(f *pulsescan.Frame) []float64 {
	out := make([]float64, d.width*d.height)
	if d.cfg.Bin == 1 {
		for i, v := range f.Samples {
			out[i] = float64(v)
		}
		return out
	}
	b := d.cfg.Bin
	for by := 0; by < d.height; by++ {
		for bx := 0; bx < d.width; bx++ {
			var sum float64
			var n int
			for y := by * b; y < (by+1)*b && y < f.Height; y++ {
				for x := bx * b; x < (bx+1)*b && x < f.Width; x++ {
					sum += float64(f.Samples[y*f.Width+x])
					n++
				}
			}
			out[by*d.width+bx] = sum / float64(n)
		}
	}
	return out
}

// seed computes the initial baseline from the warm-up buffer and releases it.
func (d *detector) seed() {
	for i, series := range d.warm {
		mean, std := stat.MeanStdDev(series, nil)
		if math.IsNaN(std) {
			// A single warm-up sample has no sample stddev. Start at
			// zero variance; the sigma floor takes over from there.
			std = 0
		}
		d.mean[i] = mean
		d.vari[i] = std * std
	}
	d.warm = nil
	d.warmed = true
	d.logf("run %s: baseline seeded from %d warm-up frames", d.run, d.cfg.Warmup)
}

// scan runs the excursion state machine over one post-warm-up frame.
func (d *detector) scan(ts time.Time, samples []float64) error {
	var ended []int
	opened := false

	for i, v := range samples {
		sigma := sigmaFloor(d.vari[i], d.cfg.SigmaFloor)
		z := (v - d.mean[i]) / sigma

		if z >= d.cfg.Threshold || z <= -d.cfg.Threshold {
			az := z
			if az < 0 {
				az = -az
			}
			if d.state[i] == stateBaseline {
				d.state[i] = stateExcursion
				d.open[i] = excursion{start: ts, duration: 1, peak: az}
				opened = true
			} else {
				d.open[i].duration++
				if az > d.open[i].peak {
					d.open[i].peak = az
				}
			}
			// The baseline is frozen while a location is in
			// excursion, so the pulse cannot pollute the estimate
			// it is measured against.
			continue
		}

		if d.state[i] == stateExcursion {
			d.state[i] = stateBaseline
			ended = append(ended, i)
		}
		d.update(i, v)
	}

	if opened && d.cfg.TraceDir != "" {
		d.trace(ts, samples)
	}
	if len(ended) > 0 {
		return d.emit(ended)
	}
	return nil
}

// update applies the exponentially decayed baseline update for one location.
func (d *detector) update(i int, v float64) {
	diff := v - d.mean[i]
	incr := d.cfg.Decay * diff
	d.mean[i] += incr
	d.vari[i] = (1 - d.cfg.Decay) * (d.vari[i] + diff*incr)
}

// finish finalizes and emits any still-open excursions at end of stream.
func (d *detector) finish() error {
	var ended []int
	for i, st := range d.state {
		if st == stateExcursion {
			d.state[i] = stateBaseline
			ended = append(ended, i)
		}
	}
	if len(ended) == 0 {
		return nil
	}
	return d.emit(ended)
}

// emit merges the locations whose excursions ended on this frame into
// candidates and hands them to the sink.
func (d *detector) emit(ended []int) error {
	for _, cl := range clusters(ended, d.width, d.height, d.cfg.Connectivity) {
		c := d.candidate(cl)
		if err := d.sink.Emit(c); err != nil {
			return errors.Wrap(err, "emitting candidate")
		}
		d.emitted++
		d.logf("run %s: %s", d.run, c)
	}
	return nil
}

// candidate builds one merged candidate from a cluster of finalized
// locations. Location is the lowest pixel index in the cluster; magnitude and
// duration take the cluster maxima; timestamp is the earliest trigger.
func (d *detector) candidate(cl []int) pulsescan.PulseCandidate {
	lowest := cl[0]
	ex := d.open[lowest]
	start := ex.start
	peak := ex.peak
	dur := ex.duration
	for _, i := range cl[1:] {
		e := d.open[i]
		if e.start.Before(start) {
			start = e.start
		}
		if e.peak > peak {
			peak = e.peak
		}
		if e.duration > dur {
			dur = e.duration
		}
	}

	bx, by := lowest%d.width, lowest/d.width
	x, y := bx*d.cfg.Bin, by*d.cfg.Bin
	return pulsescan.PulseCandidate{
		Timestamp: start,
		Pixel:     y*d.srcWidth + x,
		X:         x,
		Y:         y,
		Magnitude: peak,
		Duration:  dur,
		Run:       d.run,
	}
}

func sigmaFloor(vari, floor float64) float64 {
	if vari <= floor*floor {
		return floor
	}
	return math.Sqrt(vari)
}
