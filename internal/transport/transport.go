// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Transport is a byte-oriented duplex channel to the reader. Reads return
// an empty slice on timeout; only genuine I/O failures are faults.
type Transport interface {
	Open(ctx context.Context) error
	Write(data []byte) error
	Read(maxBytes int) ([]byte, error)
	Close() error
	IsOpen() bool

	// Reconnect closes the handle if open, pauses briefly and reopens with
	// the same parameters. Failure is reported to the caller, never
	// swallowed.
	Reconnect(ctx context.Context) error
}

// Config holds serial transport parameters.
type Config struct {
	Port           string
	BaudRate       int
	ReadTimeout    time.Duration
	ReconnectPause time.Duration
}

// Fault wraps an I/O failure on the transport so callers can distinguish
// transport faults from empty responses and protocol conditions.
type Fault struct {
	Op  string
	Err error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("transport fault during %s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// IsFault reports whether err is (or wraps) a transport fault.
func IsFault(err error) bool {
	var fault *Fault
	return errors.As(err, &fault)
}

// ErrNotOpen is returned for I/O on a closed transport.
var ErrNotOpen = errors.New("transport not open")
