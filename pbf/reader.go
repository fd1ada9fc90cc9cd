package pbf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	pulsescan "github.com/skywatch/pulsescan-go"
)

// Reader streams frames from a pbf source. It validates the full header
// before yielding any frame and never buffers more than one record.
type Reader struct {
	hdr Header

	br     *bufio.Reader
	closer io.Closer
	read   int64 // records returned so far
	err    error // sticky terminal result
	closed bool
}

// Check that Reader implements interface FrameStream.
var _ pulsescan.FrameStream = (*Reader)(nil)

// Open opens the named pbf file and validates its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader validates the pbf header on r and returns a frame stream over its
// records. The caller keeps ownership of r unless it came through Open.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	var raw [headerSize]byte
	if _, err := io.ReadFull(br, raw[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, &pulsescan.FormatError{Format: "pbf", Reason: "file too short for header"}
		}
		return nil, errors.Wrap(err, "reading pbf header")
	}
	if raw[0] != Magic[0] || raw[1] != Magic[1] || raw[2] != Magic[2] || raw[3] != Magic[3] {
		return nil, &pulsescan.FormatError{Format: "pbf", Reason: "bad magic marker"}
	}
	if v := binary.LittleEndian.Uint16(raw[4:6]); v != Version {
		return nil, &pulsescan.FormatError{Format: "pbf", Reason: fmt.Sprintf("unsupported version %d", v)}
	}
	hdr := Header{
		Flags:      binary.LittleEndian.Uint16(raw[6:8]),
		Width:      int(binary.LittleEndian.Uint32(raw[8:12])),
		Height:     int(binary.LittleEndian.Uint32(raw[12:16])),
		SampleType: pulsescan.SampleType(raw[16]),
		Frames:     int64(binary.LittleEndian.Uint64(raw[20:28])),
	}
	if err := hdr.check(); err != nil {
		return nil, err
	}
	return &Reader{hdr: hdr, br: br}, nil
}

// Header returns the validated file header.
func (r *Reader) Header() Header {
	return r.hdr
}

// Next returns the next frame, or io.EOF after the last record.
func (r *Reader) Next() (*pulsescan.Frame, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.hdr.Frames != StreamingFrames && r.read == r.hdr.Frames {
		r.err = io.EOF
		return nil, r.err
	}

	var ts [12]byte
	if _, err := io.ReadFull(r.br, ts[:]); err != nil {
		if err == io.EOF {
			if r.hdr.Frames == StreamingFrames {
				r.err = io.EOF
			} else {
				r.err = &pulsescan.FormatError{Format: "pbf", Reason: fmt.Sprintf("truncated: header promised %d frames, got %d", r.hdr.Frames, r.read)}
			}
			return nil, r.err
		}
		r.err = r.readErr(err, "reading frame timestamp")
		return nil, r.err
	}
	sec := int64(binary.LittleEndian.Uint64(ts[0:8]))
	nsec := int32(binary.LittleEndian.Uint32(ts[8:12]))

	want := r.hdr.payloadSize()
	if r.hdr.Variable() {
		var lb [4]byte
		if _, err := io.ReadFull(r.br, lb[:]); err != nil {
			r.err = r.readErr(err, "reading record length")
			return nil, r.err
		}
		if got := int(binary.LittleEndian.Uint32(lb[:])); got != want {
			r.err = &pulsescan.FormatError{Format: "pbf", Reason: fmt.Sprintf("record length %d does not decode to %dx%d %s samples", got, r.hdr.Width, r.hdr.Height, r.hdr.SampleType)}
			return nil, r.err
		}
	}

	payload := make([]byte, want)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		r.err = r.readErr(err, "reading frame samples")
		return nil, r.err
	}

	n := r.hdr.Width * r.hdr.Height
	samples := make([]uint16, n)
	switch r.hdr.SampleType {
	case pulsescan.Uint8:
		for i, b := range payload {
			samples[i] = uint16(b)
		}
	case pulsescan.Uint16:
		for i := 0; i < n; i++ {
			samples[i] = binary.LittleEndian.Uint16(payload[2*i:])
		}
	}

	r.read++
	return &pulsescan.Frame{
		Timestamp: time.Unix(sec, int64(nsec)).UTC(),
		Width:     r.hdr.Width,
		Height:    r.hdr.Height,
		Samples:   samples,
	}, nil
}

// readErr classifies a mid-record read failure: an unexpected EOF means a
// truncated (partially written) file, anything else is a storage error.
func (r *Reader) readErr(err error, what string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &pulsescan.FormatError{Format: "pbf", Reason: "truncated frame record"}
	}
	return errors.Wrap(err, what)
}

// Close releases the underlying file, if the reader owns one. Idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.err == nil {
		r.err = errors.New("pbf: reader closed")
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
