package pbf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	pulsescan "github.com/skywatch/pulsescan-go"
)

// Writer serializes frames into the pbf layout. The header goes out before
// any payload; on a seekable destination created with a streaming sentinel,
// Close patches the real frame count back into the header so a complete file
// is distinguishable from an interrupted one.
type Writer struct {
	hdr     Header
	w       io.Writer
	bw      *bufio.Writer
	closer  io.Closer
	written int64
	closed  bool
}

// Create creates the named file and writes the pbf header. Close patches the
// frame count if hdr.Frames is StreamingFrames.
func Create(path string, hdr Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	w, err := NewWriter(f, hdr)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter validates hdr and writes it to w. The caller keeps ownership of w
// unless it came through Create.
func NewWriter(w io.Writer, hdr Header) (*Writer, error) {
	if err := hdr.check(); err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(w)
	var raw [headerSize]byte
	copy(raw[0:4], Magic[:])
	binary.LittleEndian.PutUint16(raw[4:6], Version)
	binary.LittleEndian.PutUint16(raw[6:8], hdr.Flags)
	binary.LittleEndian.PutUint32(raw[8:12], uint32(hdr.Width))
	binary.LittleEndian.PutUint32(raw[12:16], uint32(hdr.Height))
	raw[16] = byte(hdr.SampleType)
	binary.LittleEndian.PutUint64(raw[20:28], uint64(hdr.Frames))
	if _, err := bw.Write(raw[:]); err != nil {
		return nil, errors.Wrap(err, "writing pbf header")
	}
	return &Writer{hdr: hdr, w: w, bw: bw}, nil
}

// WriteFrame appends one frame record. The frame must match the header's
// dimensions, and its samples must fit the declared sample type.
func (w *Writer) WriteFrame(f *pulsescan.Frame) error {
	if w.closed {
		return errors.New("pbf: writer closed")
	}
	if err := f.Check(); err != nil {
		return err
	}
	if f.Width != w.hdr.Width || f.Height != w.hdr.Height {
		return &pulsescan.FormatError{Format: "pbf", Reason: fmt.Sprintf("frame is %dx%d, header declares %dx%d", f.Width, f.Height, w.hdr.Width, w.hdr.Height)}
	}
	if w.hdr.Frames != StreamingFrames && w.written == w.hdr.Frames {
		return &pulsescan.FormatError{Format: "pbf", Reason: fmt.Sprintf("header declares %d frames, all written", w.hdr.Frames)}
	}

	var ts [12]byte
	binary.LittleEndian.PutUint64(ts[0:8], uint64(f.Timestamp.Unix()))
	binary.LittleEndian.PutUint32(ts[8:12], uint32(f.Timestamp.Nanosecond()))
	if _, err := w.bw.Write(ts[:]); err != nil {
		return errors.Wrap(err, "writing frame timestamp")
	}

	if w.hdr.Variable() {
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(w.hdr.payloadSize()))
		if _, err := w.bw.Write(lb[:]); err != nil {
			return errors.Wrap(err, "writing record length")
		}
	}

	switch w.hdr.SampleType {
	case pulsescan.Uint8:
		for i, v := range f.Samples {
			if v > 0xff {
				return &pulsescan.FormatError{Format: "pbf", Reason: fmt.Sprintf("sample %d value %d overflows uint8", i, v)}
			}
			if err := w.bw.WriteByte(byte(v)); err != nil {
				return errors.Wrap(err, "writing frame samples")
			}
		}
	case pulsescan.Uint16:
		var sb [2]byte
		for _, v := range f.Samples {
			binary.LittleEndian.PutUint16(sb[:], v)
			if _, err := w.bw.Write(sb[:]); err != nil {
				return errors.Wrap(err, "writing frame samples")
			}
		}
	}

	w.written++
	return nil
}

// Close flushes buffered records, patches the streamed frame count when the
// destination is seekable, and closes the file if the writer owns one.
// Idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if w.hdr.Frames != StreamingFrames && w.written != w.hdr.Frames {
		err = &pulsescan.FormatError{Format: "pbf", Reason: fmt.Sprintf("header declares %d frames, wrote %d", w.hdr.Frames, w.written)}
	}
	err = multierr.Append(err, errors.Wrap(w.bw.Flush(), "flushing pbf"))

	if err == nil && w.hdr.Frames == StreamingFrames {
		if ws, ok := w.w.(io.WriteSeeker); ok {
			err = w.patchCount(ws)
		}
	}
	if w.closer != nil {
		err = multierr.Append(err, w.closer.Close())
	}
	return err
}

// patchCount rewrites the frame-count field with the number of records
// actually written, then restores the write position.
func (w *Writer) patchCount(ws io.WriteSeeker) error {
	if _, err := ws.Seek(20, io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking to frame count")
	}
	var cb [8]byte
	binary.LittleEndian.PutUint64(cb[:], uint64(w.written))
	if _, err := ws.Write(cb[:]); err != nil {
		return errors.Wrap(err, "patching frame count")
	}
	_, err := ws.Seek(0, io.SeekEnd)
	return errors.Wrap(err, "seeking back to end")
}

// Written returns the number of frame records written so far.
func (w *Writer) Written() int64 {
	return w.written
}
