// Command pbfinfo dumps the header and per-frame timestamps of packed binary
// frame files.
//
// Examples:
//
//	# Header and timestamps of one file.
//	pbfinfo run0.pbf
//
//	# Timestamps of several files as CSV.
//	pbfinfo -csv run0.pbf run1.pbf > times.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/skywatch/pulsescan-go/pbf"
)

var csvOut bool

func init() {
	flag.BoolVar(&csvOut, "csv", false, "print one CSV line per frame: file,index,time,nanoseconds")
}

func dump(path string) error {
	r, err := pbf.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	hdr := r.Header()
	if !csvOut {
		count := fmt.Sprintf("%d", hdr.Frames)
		if hdr.Frames == pbf.StreamingFrames {
			count = "streaming (file not finalized)"
		}
		records := "fixed"
		if hdr.Variable() {
			records = "length-prefixed"
		}
		fmt.Printf("%s: %dx%d %s, %s records, frames: %s\n", path, hdr.Width, hdr.Height, hdr.SampleType, records, count)
	}

	for i := 0; ; i++ {
		f, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if csvOut {
			fmt.Printf("%s,%d,%s,%d\n", path, i, f.Timestamp.UTC().Format(time.RFC3339), f.Timestamp.Nanosecond())
		} else {
			fmt.Printf("  frame %4d  %s\n", i, f.Timestamp.UTC().Format(time.RFC3339Nano))
		}
	}
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: pbfinfo [flags] file...")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if csvOut {
		fmt.Println("file,index,time,nanoseconds")
	}
	exit := 0
	for _, path := range flag.Args() {
		if err := dump(path); err != nil {
			fmt.Fprintf(os.Stderr, "pbfinfo: %s: %v\n", path, err)
			exit = 1
		}
	}
	os.Exit(exit)
}
