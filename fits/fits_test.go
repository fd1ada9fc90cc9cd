package fits

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/astrogo/fitsio"

	pulsescan "github.com/skywatch/pulsescan-go"
)

func synthFrames(w, h, n int) []*pulsescan.Frame {
	frames := make([]*pulsescan.Frame, n)
	for i := 0; i < n; i++ {
		samples := make([]uint16, w*h)
		for j := range samples {
			samples[j] = uint16((i*17 + j) % 1021)
		}
		frames[i] = &pulsescan.Frame{
			Timestamp: time.Unix(1700000000+int64(i), int64(i)*500).UTC(),
			Width:     w,
			Height:    h,
			Samples:   samples,
		}
	}
	return frames
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.fits")
	frames := synthFrames(6, 4, 5)

	w, err := Create(path, 6, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	for i, want := range frames {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("reading frame %d: %v", i, err)
		}
		if !got.Timestamp.Equal(want.Timestamp) {
			t.Fatalf("frame %d timestamp, got %v, expected %v", i, got.Timestamp, want.Timestamp)
		}
		if got.Width != 6 || got.Height != 4 {
			t.Fatalf("frame %d is %dx%d, expected 6x4", i, got.Width, got.Height)
		}
		for j := range want.Samples {
			if got.Samples[j] != want.Samples[j] {
				t.Fatalf("frame %d sample %d, got %d, expected %d", i, j, got.Samples[j], want.Samples[j])
			}
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("after last frame, got %v, expected io.EOF", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpenNotFits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.fits")
	if err := os.WriteFile(path, []byte("this is not a fits file, not even close"), 0o644); err != nil {
		t.Fatalf("writing garbage: %v", err)
	}
	_, err := Open(path)
	if err == nil {
		t.Fatalf("missing error for non-fits file")
	}
	if !pulsescan.IsFormat(err) {
		t.Fatalf("got %v, expected FormatError", err)
	}
}

func TestWriterDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.fits")
	w, err := Create(path, 4, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer w.Close()
	if err := w.WriteFrame(synthFrames(3, 3, 1)[0]); err == nil {
		t.Fatalf("missing error for dimension mismatch")
	}
}

func TestMissingTimestampCard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notime.fits")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	ff, err := fitsio.Create(f)
	if err != nil {
		t.Fatalf("create fits: %v", err)
	}
	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		t.Fatalf("primary hdu: %v", err)
	}
	if err := ff.Write(phdu); err != nil {
		t.Fatalf("write primary: %v", err)
	}
	img := fitsio.NewImage(32, []int{2, 2})
	raw := []int32{1, 2, 3, 4}
	if err := img.Write(&raw); err != nil {
		t.Fatalf("write image data: %v", err)
	}
	if err := ff.Write(img); err != nil {
		t.Fatalf("write image hdu: %v", err)
	}
	img.Close()
	if err := ff.Close(); err != nil {
		t.Fatalf("close fits: %v", err)
	}
	f.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if _, err := r.Next(); err == nil || !pulsescan.IsFormat(err) {
		t.Fatalf("missing timestamp cards, got %v, expected FormatError", err)
	}
}
