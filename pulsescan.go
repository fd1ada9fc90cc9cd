// Package pulsescan streams astronomical image frames from heterogeneous
// on-disk formats and scans them for short, statistically significant
// brightness pulses.
package pulsescan

import (
	"io"
	"time"
)

// FrameStream is a pull-based source of frames, for example a pbf, hdf or
// fits file. Next returns frames in acquisition order and io.EOF once the
// source is exhausted. After io.EOF or an error, every further call to Next
// returns the same terminal result.
type FrameStream interface {
	// Next returns the next frame, or io.EOF at end of stream.
	Next() (*Frame, error)

	// Close releases the underlying file or handle. Close is idempotent;
	// calling it after exhaustion or a previous Close is not an error.
	Close() error
}

// OrderedStream wraps a FrameStream and enforces the invariants the detector
// depends on: non-decreasing timestamps, fixed dimensions for the lifetime of
// the stream, and samples matching those dimensions. Violations terminate the
// stream with an OrderingError or FormatError.
type OrderedStream struct {
	src FrameStream

	width, height int
	last          time.Time
	seen          bool
	err           error
}

// Order wraps src with ordering and dimension checks.
func Order(src FrameStream) *OrderedStream {
	return &OrderedStream{src: src}
}

// Next returns the next frame from the wrapped stream after validating it.
func (s *OrderedStream) Next() (*Frame, error) {
	if s.err != nil {
		return nil, s.err
	}
	f, err := s.src.Next()
	if err != nil {
		s.err = err
		return nil, err
	}
	if err := f.Check(); err != nil {
		s.err = err
		return nil, err
	}
	if !s.seen {
		s.width, s.height = f.Width, f.Height
		s.seen = true
	} else {
		if f.Width != s.width || f.Height != s.height {
			s.err = &FormatError{Reason: "frame dimensions changed mid-stream"}
			return nil, s.err
		}
		if f.Timestamp.Before(s.last) {
			s.err = &OrderingError{Prev: s.last, Got: f.Timestamp}
			return nil, s.err
		}
	}
	s.last = f.Timestamp
	return f, nil
}

// Close closes the wrapped stream.
func (s *OrderedStream) Close() error {
	return s.src.Close()
}

// Check that OrderedStream implements interface FrameStream.
var _ FrameStream = (*OrderedStream)(nil)

// SliceStream serves frames from memory. Used by harnesses and tests that
// synthesize frame sequences.
type SliceStream struct {
	frames []*Frame
	pos    int
	err    error
}

// NewSliceStream returns a stream over the given frames.
func NewSliceStream(frames []*Frame) *SliceStream {
	return &SliceStream{frames: frames}
}

// Next returns the next frame, or io.EOF after the last one.
func (s *SliceStream) Next() (*Frame, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.pos == len(s.frames) {
		s.err = io.EOF
		return nil, s.err
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Close marks the stream exhausted. Idempotent.
func (s *SliceStream) Close() error {
	if s.err == nil {
		s.err = io.EOF
	}
	return nil
}

// Check that SliceStream implements interface FrameStream.
var _ FrameStream = (*SliceStream)(nil)

// Drain reads and discards frames until io.EOF, returning the number of
// frames seen. Useful for harnesses that only need counts or validation.
func Drain(s FrameStream) (int, error) {
	n := 0
	for {
		_, err := s.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
