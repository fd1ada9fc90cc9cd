package pulsescan

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// FormatError means a source's header or content does not match its expected
// layout, or an internal consistency check failed. A stream that returns a
// FormatError from open never yields any frame.
type FormatError struct {
	Format string // "pbf", "hdf", "fits", or empty for generic checks.
	Reason string
}

func (e *FormatError) Error() string {
	if e.Format == "" {
		return "format: " + e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Format, e.Reason)
}

// OrderingError means frame timestamps violated monotonicity. It is fatal for
// the stream that produced it.
type OrderingError struct {
	Prev time.Time
	Got  time.Time
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("frame timestamp %v precedes %v", e.Got, e.Prev)
}

// ConfigError means detector parameters were invalid, e.g. a non-positive
// threshold or warm-up window.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// IsFormat reports whether err is, or wraps, a FormatError.
func IsFormat(err error) bool {
	var e *FormatError
	return errors.As(err, &e)
}

// IsOrdering reports whether err is, or wraps, an OrderingError.
func IsOrdering(err error) bool {
	var e *OrderingError
	return errors.As(err, &e)
}

// IsConfig reports whether err is, or wraps, a ConfigError.
func IsConfig(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// IsIO reports whether err is a storage-level failure: any non-nil,
// non-terminal error that is not one of the typed taxonomy errors. Callers
// use this to distinguish "bad storage" from "bad data" and "bad
// configuration".
func IsIO(err error) bool {
	if err == nil || err == io.EOF {
		return false
	}
	return !IsFormat(err) && !IsOrdering(err) && !IsConfig(err)
}
