package pulsescan

import (
	"fmt"
	"image"
	"time"
)

// SampleType is the on-disk width of one intensity sample. Adapters widen
// everything to uint16 in memory.
type SampleType uint8

// Sample types declared by format headers.
const (
	Uint8  SampleType = 1
	Uint16 SampleType = 2
)

// Size returns the number of bytes per sample on disk.
func (t SampleType) Size() int {
	switch t {
	case Uint8:
		return 1
	case Uint16:
		return 2
	}
	return 0
}

// String returns a short name like "uint16".
func (t SampleType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	}
	return fmt.Sprintf("sampletype(%d)", uint8(t))
}

// Frame is one timestamped raster of intensity samples, row-major. A frame is
// immutable once produced by an adapter; the holder that pulled it owns it.
type Frame struct {
	Timestamp time.Time
	Width     int
	Height    int
	Samples   []uint16
}

// Index returns the flattened index of pixel (x, y).
func (f *Frame) Index(x, y int) int {
	return y*f.Width + x
}

// At returns the sample at pixel (x, y).
func (f *Frame) At(x, y int) uint16 {
	return f.Samples[y*f.Width+x]
}

// Check validates the frame's internal consistency: positive dimensions and
// len(Samples) == Width*Height.
func (f *Frame) Check() error {
	if f.Width <= 0 || f.Height <= 0 {
		return &FormatError{Reason: fmt.Sprintf("invalid frame dimensions %dx%d", f.Width, f.Height)}
	}
	if len(f.Samples) != f.Width*f.Height {
		return &FormatError{Reason: fmt.Sprintf("frame has %d samples, dimensions %dx%d need %d", len(f.Samples), f.Width, f.Height, f.Width*f.Height)}
	}
	return nil
}

// Gray16 converts the frame to an image.Gray16, e.g. for binning or export.
func (f *Frame) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Samples {
		img.Pix[2*i] = uint8(v >> 8)
		img.Pix[2*i+1] = uint8(v)
	}
	return img
}
