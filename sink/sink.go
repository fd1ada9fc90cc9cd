// Package sink provides candidate sinks: destinations for the pulse
// candidates a detection run emits.
package sink

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	pulsescan "github.com/skywatch/pulsescan-go"
)

// Slice collects candidates in memory, in emission order.
type Slice struct {
	Candidates []pulsescan.PulseCandidate
}

// Emit appends the candidate.
func (s *Slice) Emit(c pulsescan.PulseCandidate) error {
	s.Candidates = append(s.Candidates, c)
	return nil
}

// Check that Slice implements interface Sink.
var _ pulsescan.Sink = (*Slice)(nil)

// JSONL appends one JSON object per candidate to a writer.
type JSONL struct {
	enc    *json.Encoder
	bw     *bufio.Writer
	closer io.Closer
	closed bool
}

// Check that JSONL implements interface Sink.
var _ pulsescan.Sink = (*JSONL)(nil)

// NewJSONL returns a sink writing JSON lines to w. The caller keeps
// ownership of w.
func NewJSONL(w io.Writer) *JSONL {
	bw := bufio.NewWriter(w)
	return &JSONL{enc: json.NewEncoder(bw), bw: bw}
}

// File creates (or truncates) the named file and returns a JSONL sink that
// owns it. Call Close to flush and release it.
func File(path string) (*JSONL, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	s := NewJSONL(f)
	s.closer = f
	return s, nil
}

// Emit writes the candidate as one JSON line.
func (s *JSONL) Emit(c pulsescan.PulseCandidate) error {
	if s.closed {
		return errors.New("sink: closed")
	}
	return errors.Wrap(s.enc.Encode(c), "encoding candidate")
}

// Close flushes buffered lines and closes the file if the sink owns one.
// Idempotent.
func (s *JSONL) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := errors.Wrap(s.bw.Flush(), "flushing sink")
	if s.closer != nil {
		err = multierr.Append(err, s.closer.Close())
	}
	return err
}
