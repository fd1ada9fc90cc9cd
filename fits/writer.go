package fits

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	pulsescan "github.com/skywatch/pulsescan-go"
)

// Writer serializes frames as FITS image HDUs, one per frame, with
// TVSEC/TVNSEC timestamp cards.
type Writer struct {
	fits   *fitsio.File
	file   *os.File
	width  int
	height int
	closed bool
}

// Create creates the named FITS file for frames of the given dimensions and
// writes the empty primary HDU.
func Create(path string, width, height int) (*Writer, error) {
	if width <= 0 || height <= 0 {
		return nil, &pulsescan.FormatError{Format: "fits", Reason: fmt.Sprintf("invalid frame dimensions %dx%d", width, height)}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	fits, err := fitsio.Create(f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrap(err, "creating fits container")
	}
	w := &Writer{fits: fits, file: f, width: width, height: height}

	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		w.Close()
		return nil, errors.Wrap(err, "creating primary HDU")
	}
	if err := fits.Write(phdu); err != nil {
		w.Close()
		return nil, errors.Wrap(err, "writing primary HDU")
	}
	return w, nil
}

// WriteFrame appends one frame as an image HDU.
func (w *Writer) WriteFrame(f *pulsescan.Frame) error {
	if w.closed {
		return errors.New("fits: writer closed")
	}
	if err := f.Check(); err != nil {
		return err
	}
	if f.Width != w.width || f.Height != w.height {
		return &pulsescan.FormatError{Format: "fits", Reason: fmt.Sprintf("frame is %dx%d, writer expects %dx%d", f.Width, f.Height, w.width, w.height)}
	}

	img := fitsio.NewImage(32, []int{f.Width, f.Height})
	defer img.Close()
	err := img.Header().Append(
		fitsio.Card{Name: cardSec, Value: int(f.Timestamp.Unix()), Comment: "frame time, unix seconds"},
		fitsio.Card{Name: cardNsec, Value: f.Timestamp.Nanosecond(), Comment: "frame time, nanoseconds"},
	)
	if err != nil {
		return errors.Wrap(err, "appending timestamp cards")
	}

	raw := make([]int32, len(f.Samples))
	for i, v := range f.Samples {
		raw[i] = int32(v)
	}
	if err := img.Write(&raw); err != nil {
		return errors.Wrap(err, "writing image data")
	}
	return errors.Wrap(w.fits.Write(img), "writing image HDU")
}

// Close flushes and closes the container and file. Idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var err error
	if w.fits != nil {
		err = w.fits.Close()
	}
	if w.file != nil {
		err = multierr.Append(err, w.file.Close())
	}
	return err
}
