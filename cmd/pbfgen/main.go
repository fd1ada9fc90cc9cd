// Command pbfgen synthesizes frame files: a flat noisy background with an
// optional injected pulse, for exercising readers and the detector.
//
// Examples:
//
//	# 100 4x4 frames of value 10, one bright frame at pixel (2,2).
//	pbfgen -frames 100 -width 4 -height 4 -level 10 -pulse 50,2,2,200 out.pbf
//
//	# Noisy 32x32 sequence as FITS.
//	pbfgen -format fits -frames 500 -width 32 -height 32 -level 100 -noise 5 out.fits
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	pulsescan "github.com/skywatch/pulsescan-go"
	"github.com/skywatch/pulsescan-go/fits"
	"github.com/skywatch/pulsescan-go/pbf"
)

var (
	format   string
	width    int
	height   int
	frames   int
	level    int
	noise    int
	pulse    string
	pulseDur int
	variable bool
	seed     int64
)

func init() {
	flag.StringVar(&format, "format", "pbf", "output format: pbf or fits")
	flag.IntVar(&width, "width", 32, "frame width in pixels")
	flag.IntVar(&height, "height", 32, "frame height in pixels")
	flag.IntVar(&frames, "frames", 100, "number of frames")
	flag.IntVar(&level, "level", 100, "background level")
	flag.IntVar(&noise, "noise", 0, "uniform noise amplitude added to the background")
	flag.StringVar(&pulse, "pulse", "", "injected pulse as frame,x,y,value")
	flag.IntVar(&pulseDur, "pulseduration", 1, "how many consecutive frames the pulse lasts")
	flag.BoolVar(&variable, "variable", false, "write length-prefixed pbf records")
	flag.Int64Var(&seed, "seed", 1, "noise seed")
}

type frameWriter interface {
	WriteFrame(*pulsescan.Frame) error
	Close() error
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: pbfgen [flags] file")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	pulseFrame, pulseX, pulseY, pulseValue := -1, 0, 0, 0
	if pulse != "" {
		if _, err := fmt.Sscanf(strings.TrimSpace(pulse), "%d,%d,%d,%d", &pulseFrame, &pulseX, &pulseY, &pulseValue); err != nil {
			fmt.Fprintf(os.Stderr, "pbfgen: bad -pulse %q, need frame,x,y,value\n", pulse)
			os.Exit(2)
		}
	}

	var w frameWriter
	var err error
	switch format {
	case "pbf":
		hdr := pbf.Header{Width: width, Height: height, SampleType: pulsescan.Uint16, Frames: int64(frames)}
		if variable {
			hdr.Flags |= pbf.FlagVariable
		}
		w, err = pbf.Create(path, hdr)
	case "fits":
		w, err = fits.Create(path, width, height)
	default:
		fmt.Fprintf(os.Stderr, "pbfgen: unknown format %q\n", format)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pbfgen: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(seed))
	start := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < frames; i++ {
		samples := make([]uint16, width*height)
		for j := range samples {
			v := level
			if noise > 0 {
				v += rng.Intn(2*noise+1) - noise
			}
			if v < 0 {
				v = 0
			}
			samples[j] = uint16(v)
		}
		if pulseFrame >= 0 && i >= pulseFrame && i < pulseFrame+pulseDur {
			samples[pulseY*width+pulseX] = uint16(pulseValue)
		}
		f := &pulsescan.Frame{
			Timestamp: start.Add(time.Duration(i) * 10 * time.Millisecond),
			Width:     width,
			Height:    height,
			Samples:   samples,
		}
		if err := w.WriteFrame(f); err != nil {
			fmt.Fprintf(os.Stderr, "pbfgen: writing frame %d: %v\n", i, err)
			os.Exit(1)
		}
	}
	if err := w.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "pbfgen: closing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d %dx%d frames to %s\n", frames, width, height, path)
}
