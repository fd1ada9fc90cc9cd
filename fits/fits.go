// Package fits maps FITS image HDUs onto the frame stream interface. Each
// frame is one 2-D image HDU carrying TVSEC/TVNSEC timestamp cards. The FITS
// container itself is handled entirely by the fitsio library; this package
// only translates its HDUs into frames and its failures into the error
// taxonomy.
package fits

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	pulsescan "github.com/skywatch/pulsescan-go"
)

// Timestamp card names, after the capture software's tv_sec/tv_nsec fields.
const (
	cardSec  = "TVSEC"
	cardNsec = "TVNSEC"
)

// Reader streams frames from the image HDUs of a FITS file.
type Reader struct {
	fits *fitsio.File
	file *os.File

	width, height int
	pos           int // next HDU index
	err           error
	closed        bool
}

// Check that Reader implements interface FrameStream.
var _ pulsescan.FrameStream = (*Reader)(nil)

// Open opens the named FITS file and validates that its image HDUs form a
// consistent frame sequence: every data-bearing HDU is 2-D with the same
// dimensions.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	fits, err := fitsio.Open(f)
	if err != nil {
		f.Close()
		return nil, &pulsescan.FormatError{Format: "fits", Reason: err.Error()}
	}
	r := &Reader{fits: fits, file: f}

	// Header validation up front: every frame HDU must agree on geometry.
	n := 0
	for i, hdu := range fits.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		axes := img.Header().Axes()
		if len(axes) == 0 {
			continue // empty primary HDU
		}
		if len(axes) != 2 || axes[0] <= 0 || axes[1] <= 0 {
			r.Close()
			return nil, &pulsescan.FormatError{Format: "fits", Reason: fmt.Sprintf("HDU %d has axes %v, expected a 2-D image", i, axes)}
		}
		if n == 0 {
			r.width, r.height = axes[0], axes[1]
		} else if axes[0] != r.width || axes[1] != r.height {
			r.Close()
			return nil, &pulsescan.FormatError{Format: "fits", Reason: fmt.Sprintf("HDU %d is %dx%d, first frame was %dx%d", i, axes[0], axes[1], r.width, r.height)}
		}
		n++
	}
	return r, nil
}

// Next returns the next frame, or io.EOF after the last image HDU.
func (r *Reader) Next() (*pulsescan.Frame, error) {
	if r.err != nil {
		return nil, r.err
	}
	for {
		if r.pos >= len(r.fits.HDUs()) {
			r.err = io.EOF
			return nil, r.err
		}
		hdu := r.fits.HDU(r.pos)
		r.pos++
		img, ok := hdu.(fitsio.Image)
		if !ok || len(img.Header().Axes()) == 0 {
			continue
		}

		ts, err := timestamp(img.Header())
		if err != nil {
			r.err = err
			return nil, r.err
		}

		raw := make([]int32, r.width*r.height)
		if err := img.Read(&raw); err != nil {
			r.err = errors.Wrapf(err, "reading HDU %d", r.pos-1)
			return nil, r.err
		}
		if len(raw) != r.width*r.height {
			r.err = &pulsescan.FormatError{Format: "fits", Reason: fmt.Sprintf("HDU %d decoded %d samples, expected %d", r.pos-1, len(raw), r.width*r.height)}
			return nil, r.err
		}
		samples := make([]uint16, len(raw))
		for i, v := range raw {
			if v < 0 || v > 0xffff {
				r.err = &pulsescan.FormatError{Format: "fits", Reason: fmt.Sprintf("HDU %d sample %d value %d outside uint16 range", r.pos-1, i, v)}
				return nil, r.err
			}
			samples[i] = uint16(v)
		}
		return &pulsescan.Frame{
			Timestamp: ts,
			Width:     r.width,
			Height:    r.height,
			Samples:   samples,
		}, nil
	}
}

// timestamp extracts the frame time from the TVSEC/TVNSEC cards, falling back
// to DATE-OBS.
func timestamp(hdr *fitsio.Header) (time.Time, error) {
	if c := hdr.Get(cardSec); c != nil {
		sec, ok := cardInt(c.Value)
		if !ok {
			return time.Time{}, &pulsescan.FormatError{Format: "fits", Reason: fmt.Sprintf("%s card is %T, expected integer", cardSec, c.Value)}
		}
		var nsec int64
		if c := hdr.Get(cardNsec); c != nil {
			if v, ok := cardInt(c.Value); ok {
				nsec = v
			}
		}
		return time.Unix(sec, nsec).UTC(), nil
	}
	if c := hdr.Get("DATE-OBS"); c != nil {
		if s, ok := c.Value.(string); ok {
			if ts, err := time.Parse("2006-01-02T15:04:05.999999999", s); err == nil {
				return ts.UTC(), nil
			}
		}
	}
	return time.Time{}, &pulsescan.FormatError{Format: "fits", Reason: "frame HDU carries neither " + cardSec + " nor a parseable DATE-OBS"}
}

func cardInt(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

// Close releases the FITS handle and file. Idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.err == nil {
		r.err = errors.New("fits: reader closed")
	}
	var err error
	if r.fits != nil {
		err = r.fits.Close()
	}
	if r.file != nil {
		err = multierr.Append(err, r.file.Close())
	}
	return err
}
