// Package pbf reads and writes the packed binary frame format: a
// self-describing header followed by a sequence of timestamped raster
// records, either fixed-size or length-prefixed.
package pbf

import (
	pulsescan "github.com/skywatch/pulsescan-go"
)

// Magic marks the start of every pbf file.
var Magic = [4]byte{'P', 'B', 'F', '1'}

// Version is the current format version. Readers reject anything else.
const Version uint16 = 1

// FlagVariable declares length-prefixed frame records. Without it every
// record carries exactly Width*Height samples of the declared type.
const FlagVariable uint16 = 1 << 0

// StreamingFrames is the frame-count sentinel for files whose final length is
// not known when the header is written. A file still carrying it after close
// was not written to completion by Writer.Close on a seekable destination.
const StreamingFrames int64 = -1

// headerSize is the fixed on-disk header length in bytes:
// magic 4, version 2, flags 2, width 4, height 4, sample type 1,
// reserved 3, frame count 8.
const headerSize = 28

// Header describes a pbf file: dimensions, sample width and the number of
// frame records that follow (or StreamingFrames).
type Header struct {
	Flags      uint16
	Width      int
	Height     int
	SampleType pulsescan.SampleType
	Frames     int64
}

// Variable reports whether frame records are length-prefixed.
func (h Header) Variable() bool {
	return h.Flags&FlagVariable != 0
}

// payloadSize returns the byte length of one frame's samples.
func (h Header) payloadSize() int {
	return h.Width * h.Height * h.SampleType.Size()
}

func (h Header) check() error {
	if h.Width <= 0 || h.Height <= 0 {
		return &pulsescan.FormatError{Format: "pbf", Reason: "header declares non-positive dimensions"}
	}
	if h.SampleType.Size() == 0 {
		return &pulsescan.FormatError{Format: "pbf", Reason: "header declares unknown sample type"}
	}
	if h.Frames < StreamingFrames {
		return &pulsescan.FormatError{Format: "pbf", Reason: "header declares negative frame count"}
	}
	return nil
}
