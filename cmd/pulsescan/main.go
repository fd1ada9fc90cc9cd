// Command pulsescan runs pulse detection over one frame file and prints the
// candidates.
//
// Examples:
//
//	# Scan a packed binary frame file with default parameters.
//	pulsescan run0.pbf
//
//	# Lower the threshold, write candidates as JSON lines.
//	pulsescan -threshold 4 -out candidates.jsonl run0.pbf
//
//	# Region mode on an HDF5 cube, 2x2 binning.
//	pulsescan -format hdf -bin 2 frames.h5
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/edaniels/golog"

	pulsescan "github.com/skywatch/pulsescan-go"
	"github.com/skywatch/pulsescan-go/detect"
	"github.com/skywatch/pulsescan-go/fits"
	"github.com/skywatch/pulsescan-go/hdf"
	"github.com/skywatch/pulsescan-go/pbf"
	"github.com/skywatch/pulsescan-go/sink"
)

var (
	format    string
	threshold float64
	warmup    int
	decay     float64
	floor     float64
	conn      int
	bin       int
	outPath   string
	traceDir  string
	verbose   bool
)

func init() {
	def := detect.DefaultConfig()
	flag.StringVar(&format, "format", "", "source format: pbf, hdf or fits; guessed from the file extension if empty")
	flag.Float64Var(&threshold, "threshold", def.Threshold, "detection threshold in standard deviations")
	flag.IntVar(&warmup, "warmup", def.Warmup, "warm-up frames used to seed the baseline")
	flag.Float64Var(&decay, "decay", def.Decay, "exponential baseline decay per frame")
	flag.Float64Var(&floor, "sigmafloor", def.SigmaFloor, "minimum standard deviation used for scoring")
	flag.IntVar(&conn, "connectivity", def.Connectivity, "pixel neighborhood for merging, 4 or 8")
	flag.IntVar(&bin, "bin", def.Bin, "spatial binning factor, 1 for per-pixel detection")
	flag.StringVar(&outPath, "out", "", "if set, append candidates as JSON lines to this file")
	flag.StringVar(&traceDir, "tracedir", "", "if set, store a PNG of every frame opening an excursion")
	flag.BoolVar(&verbose, "verbose", false, "print verbose output")
}

func openStream(path string) (pulsescan.FrameStream, error) {
	kind := format
	if kind == "" {
		switch {
		case strings.HasSuffix(path, ".pbf"):
			kind = "pbf"
		case strings.HasSuffix(path, ".h5"), strings.HasSuffix(path, ".hdf5"):
			kind = "hdf"
		case strings.HasSuffix(path, ".fits"), strings.HasSuffix(path, ".fit"):
			kind = "fits"
		default:
			return nil, fmt.Errorf("cannot guess format of %q, use -format", path)
		}
	}
	switch kind {
	case "pbf":
		return pbf.Open(path)
	case "hdf":
		return hdf.Open(path, nil)
	case "fits":
		return fits.Open(path)
	}
	return nil, fmt.Errorf("unknown format %q, need one of: pbf, hdf, fits", kind)
}

// printSink prints each candidate and forwards to an optional JSONL sink.
type printSink struct {
	logger golog.Logger
	next   pulsescan.Sink
}

func (s *printSink) Emit(c pulsescan.PulseCandidate) error {
	s.logger.Infof("%s", c)
	if s.next != nil {
		return s.next.Emit(c)
	}
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: pulsescan [flags] file")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	logger := golog.NewDevelopmentLogger("pulsescan")

	stream, err := openStream(flag.Arg(0))
	if err != nil {
		logger.Fatalf("opening source: %v", err)
	}
	defer stream.Close()

	out := &printSink{logger: logger}
	if outPath != "" {
		js, err := sink.File(outPath)
		if err != nil {
			logger.Fatalf("opening output: %v", err)
		}
		defer js.Close()
		out.next = js
	}

	cfg := detect.Config{
		Threshold:    threshold,
		Warmup:       warmup,
		Decay:        decay,
		SigmaFloor:   floor,
		Connectivity: conn,
		Bin:          bin,
		TraceDir:     traceDir,
		Verbose:      verbose,
		Logger:       logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := detect.Run(ctx, cfg, stream, out)
	if err != nil {
		switch {
		case pulsescan.IsConfig(err):
			logger.Fatalf("bad configuration: %v", err)
		case pulsescan.IsFormat(err) || pulsescan.IsOrdering(err):
			logger.Fatalf("bad data: %v", err)
		default:
			logger.Fatalf("reading frames: %v", err)
		}
	}
	logger.Infof("%d frames scanned, %d candidates (run %s)", stats.Frames, stats.Candidates, stats.Run)
}
