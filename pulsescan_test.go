package pulsescan_test

import (
	"io"
	"testing"
	"time"

	pulsescan "github.com/skywatch/pulsescan-go"
)

func frame(sec int64, w, h int) *pulsescan.Frame {
	return &pulsescan.Frame{
		Timestamp: time.Unix(sec, 0).UTC(),
		Width:     w,
		Height:    h,
		Samples:   make([]uint16, w*h),
	}
}

func TestFrameCheck(t *testing.T) {
	f := frame(0, 4, 4)
	if err := f.Check(); err != nil {
		t.Fatalf("valid frame: %v", err)
	}

	f.Samples = f.Samples[:10]
	if err := f.Check(); err == nil || !pulsescan.IsFormat(err) {
		t.Fatalf("short samples, got %v, expected FormatError", err)
	}

	f = frame(0, 0, 4)
	if err := f.Check(); err == nil {
		t.Fatalf("missing error for zero width")
	}
}

func TestOrderedStream(t *testing.T) {
	t.Run("non-decreasing ok", func(t *testing.T) {
		s := pulsescan.Order(pulsescan.NewSliceStream([]*pulsescan.Frame{
			frame(10, 4, 4), frame(10, 4, 4), frame(11, 4, 4),
		}))
		n, err := pulsescan.Drain(s)
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		if n != 3 {
			t.Fatalf("frames, got %d, expected 3", n)
		}
	})

	t.Run("regression fails", func(t *testing.T) {
		s := pulsescan.Order(pulsescan.NewSliceStream([]*pulsescan.Frame{
			frame(10, 4, 4), frame(9, 4, 4),
		}))
		if _, err := s.Next(); err != nil {
			t.Fatalf("first frame: %v", err)
		}
		_, err := s.Next()
		if err == nil || !pulsescan.IsOrdering(err) {
			t.Fatalf("got %v, expected OrderingError", err)
		}
		// Terminal error is sticky.
		if _, err2 := s.Next(); err2 != err {
			t.Fatalf("second call, got %v, expected same error", err2)
		}
	})

	t.Run("dimension change fails", func(t *testing.T) {
		s := pulsescan.Order(pulsescan.NewSliceStream([]*pulsescan.Frame{
			frame(10, 4, 4), frame(11, 8, 8),
		}))
		if _, err := s.Next(); err != nil {
			t.Fatalf("first frame: %v", err)
		}
		if _, err := s.Next(); err == nil || !pulsescan.IsFormat(err) {
			t.Fatalf("got %v, expected FormatError", err)
		}
	})

	t.Run("malformed frame fails", func(t *testing.T) {
		bad := frame(10, 4, 4)
		bad.Samples = bad.Samples[:3]
		s := pulsescan.Order(pulsescan.NewSliceStream([]*pulsescan.Frame{bad}))
		if _, err := s.Next(); err == nil || !pulsescan.IsFormat(err) {
			t.Fatalf("got %v, expected FormatError", err)
		}
	})
}

func TestSliceStream(t *testing.T) {
	s := pulsescan.NewSliceStream([]*pulsescan.Frame{frame(1, 2, 2)})
	if _, err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("got %v, expected io.EOF", err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("repeat, got %v, expected io.EOF", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	format := &pulsescan.FormatError{Format: "pbf", Reason: "bad magic marker"}
	ordering := &pulsescan.OrderingError{}
	config := &pulsescan.ConfigError{Field: "Threshold", Reason: "must be > 0"}

	if !pulsescan.IsFormat(format) || pulsescan.IsFormat(ordering) {
		t.Fatalf("IsFormat misclassifies")
	}
	if !pulsescan.IsOrdering(ordering) || pulsescan.IsOrdering(config) {
		t.Fatalf("IsOrdering misclassifies")
	}
	if !pulsescan.IsConfig(config) || pulsescan.IsConfig(format) {
		t.Fatalf("IsConfig misclassifies")
	}

	if pulsescan.IsIO(format) || pulsescan.IsIO(io.EOF) || pulsescan.IsIO(nil) {
		t.Fatalf("IsIO misclassifies taxonomy errors")
	}
	if !pulsescan.IsIO(io.ErrClosedPipe) {
		t.Fatalf("IsIO rejects a storage error")
	}

	if format.Error() != "pbf: bad magic marker" {
		t.Fatalf("format error message: %q", format.Error())
	}
}
