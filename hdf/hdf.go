// Package hdf maps HDF5 frame cubes onto the frame stream interface. The
// container is handled entirely by the hdf5 bindings; this package locates
// the frame and timestamp datasets, validates their shapes, and reads one
// frame hyperslab per pull.
//
// Expected layout: a 3-D dataset of shape [nframes, height, width] holding
// the intensity samples, plus 1-D datasets "tv_sec" (seconds) and, optionally,
// "tv_nsec" (nanoseconds), both of length nframes.
package hdf

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/hdf5"

	pulsescan "github.com/skywatch/pulsescan-go"
)

// Default dataset names, after the capture software's field names.
const (
	DefaultFrames = "frames"
	DefaultSec    = "tv_sec"
	DefaultNsec   = "tv_nsec"
)

// Opts selects non-default dataset names.
type Opts struct {
	Frames string
	Sec    string
	Nsec   string
}

// Reader streams frames from an HDF5 file, one hyperslab per pull.
type Reader struct {
	file *hdf5.File
	ds   *hdf5.Dataset

	width, height int
	count         int
	secs          []int64
	nsecs         []int32

	pos    int
	err    error
	closed bool
}

// Check that Reader implements interface FrameStream.
var _ pulsescan.FrameStream = (*Reader)(nil)

// Open opens the named HDF5 file and validates the frame and timestamp
// datasets before any frame is produced.
func Open(path string, opts *Opts) (r *Reader, rerr error) {
	var o Opts
	if opts != nil {
		o = *opts
	}
	if o.Frames == "" {
		o.Frames = DefaultFrames
	}
	if o.Sec == "" {
		o.Sec = DefaultSec
	}
	if o.Nsec == "" {
		o.Nsec = DefaultNsec
	}

	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	file, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, &pulsescan.FormatError{Format: "hdf", Reason: fmt.Sprintf("not a readable HDF5 file: %v", err)}
	}
	r = &Reader{file: file}
	defer func() {
		if rerr != nil {
			r.Close()
		}
	}()

	ds, err := file.OpenDataset(o.Frames)
	if err != nil {
		return nil, &pulsescan.FormatError{Format: "hdf", Reason: fmt.Sprintf("missing frame dataset %q: %v", o.Frames, err)}
	}
	r.ds = ds

	space := ds.Space()
	dims, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil {
		return nil, &pulsescan.FormatError{Format: "hdf", Reason: fmt.Sprintf("reading %q extents: %v", o.Frames, err)}
	}
	if len(dims) != 3 {
		return nil, &pulsescan.FormatError{Format: "hdf", Reason: fmt.Sprintf("dataset %q has rank %d, expected [nframes, height, width]", o.Frames, len(dims))}
	}
	r.count = int(dims[0])
	r.height = int(dims[1])
	r.width = int(dims[2])
	if r.width <= 0 || r.height <= 0 {
		return nil, &pulsescan.FormatError{Format: "hdf", Reason: fmt.Sprintf("dataset %q declares %dx%d frames", o.Frames, r.width, r.height)}
	}

	r.secs, err = readInt64s(file, o.Sec)
	if err != nil {
		return nil, err
	}
	if len(r.secs) != r.count {
		return nil, &pulsescan.FormatError{Format: "hdf", Reason: fmt.Sprintf("dataset %q has %d entries for %d frames", o.Sec, len(r.secs), r.count)}
	}
	r.nsecs, err = readInt32s(file, o.Nsec, r.count)
	if err != nil {
		return nil, err
	}

	return r, nil
}

func readInt64s(file *hdf5.File, name string) ([]int64, error) {
	ds, err := file.OpenDataset(name)
	if err != nil {
		return nil, &pulsescan.FormatError{Format: "hdf", Reason: fmt.Sprintf("missing timestamp dataset %q: %v", name, err)}
	}
	defer ds.Close()
	space := ds.Space()
	dims, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil || len(dims) != 1 {
		return nil, &pulsescan.FormatError{Format: "hdf", Reason: fmt.Sprintf("dataset %q is not 1-D", name)}
	}
	out := make([]int64, int(dims[0]))
	if len(out) == 0 {
		return out, nil
	}
	if err := ds.Read(&out); err != nil {
		return nil, errors.Wrapf(err, "reading %q", name)
	}
	return out, nil
}

// readInt32s reads the optional nanosecond dataset; absence yields zeroes.
func readInt32s(file *hdf5.File, name string, count int) ([]int32, error) {
	ds, err := file.OpenDataset(name)
	if err != nil {
		return make([]int32, count), nil
	}
	defer ds.Close()
	space := ds.Space()
	dims, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil || len(dims) != 1 || int(dims[0]) != count {
		return nil, &pulsescan.FormatError{Format: "hdf", Reason: fmt.Sprintf("dataset %q has wrong shape for %d frames", name, count)}
	}
	out := make([]int32, count)
	if count == 0 {
		return out, nil
	}
	if err := ds.Read(&out); err != nil {
		return nil, errors.Wrapf(err, "reading %q", name)
	}
	return out, nil
}

// Count returns the number of frames in the file.
func (r *Reader) Count() int {
	return r.count
}

// Next reads one frame hyperslab, or io.EOF after the last frame.
func (r *Reader) Next() (*pulsescan.Frame, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.pos == r.count {
		r.err = io.EOF
		return nil, r.err
	}

	filespace := r.ds.Space()
	defer filespace.Close()
	offset := []uint{uint(r.pos), 0, 0}
	count := []uint{1, uint(r.height), uint(r.width)}
	if err := filespace.SelectHyperslab(offset, nil, count, nil); err != nil {
		r.err = errors.Wrapf(err, "selecting frame %d", r.pos)
		return nil, r.err
	}
	memspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		r.err = errors.Wrap(err, "creating memory dataspace")
		return nil, r.err
	}
	defer memspace.Close()

	samples := make([]uint16, r.width*r.height)
	if err := r.ds.ReadSubset(&samples, memspace, filespace); err != nil {
		r.err = errors.Wrapf(err, "reading frame %d", r.pos)
		return nil, r.err
	}

	ts := time.Unix(r.secs[r.pos], int64(r.nsecs[r.pos])).UTC()
	r.pos++
	return &pulsescan.Frame{
		Timestamp: ts,
		Width:     r.width,
		Height:    r.height,
		Samples:   samples,
	}, nil
}

// Close releases the dataset and file handles. Idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.err == nil {
		r.err = errors.New("hdf: reader closed")
	}
	var err error
	if r.ds != nil {
		err = r.ds.Close()
	}
	if r.file != nil {
		err = multierr.Append(err, r.file.Close())
	}
	return err
}
