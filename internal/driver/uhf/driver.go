// internal/driver/uhf/driver.go
package uhf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rfid-service/internal/model"
	"rfid-service/internal/transport"
	"rfid-service/internal/utils"
)

// Sentinel outcomes of the command channel.
var (
	// ErrNoResponse is not returned by Send; it marks the "no response"
	// outcome when a caller needs it as an error value.
	ErrNoResponse = errors.New("no response from reader")
	ErrNoTag      = errors.New("no tag detected")
)

// ReaderError is a decoded error frame received in place of a normal
// response. It is reported to the caller, not fatal by itself.
type ReaderError struct {
	Event model.ErrorEvent
}

func (e *ReaderError) Error() string {
	return e.Event.String()
}

// RawRecorder receives every non-empty raw response buffer.
type RawRecorder interface {
	Record(frame []byte)
}

// Config holds command channel timing and buffer parameters.
type Config struct {
	MaxRetries   int
	SettleDelay  time.Duration
	RetryBackoff time.Duration

	// ResponseSize bounds a command response read; FrameSize bounds one
	// poll read during continuous inventory.
	ResponseSize int
	FrameSize    int
}

func (c *Config) applyDefaults() {
	if c.MaxRetries < 1 {
		c.MaxRetries = 3
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 100 * time.Millisecond
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.ResponseSize <= 0 {
		c.ResponseSize = 128
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 64
	}
}

// Driver drives one UHF reader module over a transport. The protocol
// serves one command/response exchange at a time; the mutex enforces that.
type Driver struct {
	transport transport.Transport
	config    *Config
	logger    *utils.ReaderLogger
	raw       RawRecorder
	mutex     sync.Mutex
}

// NewDriver creates a reader driver on the given transport.
func NewDriver(t transport.Transport, config *Config, logger *utils.ReaderLogger) *Driver {
	if config == nil {
		config = &Config{}
	}
	config.applyDefaults()
	return &Driver{
		transport: t,
		config:    config,
		logger:    logger,
	}
}

// SetRawRecorder attaches a recorder for raw response buffers.
func (d *Driver) SetRawRecorder(r RawRecorder) {
	d.raw = r
}

// Open opens the underlying transport.
func (d *Driver) Open(ctx context.Context) error {
	return d.transport.Open(ctx)
}

// Close closes the underlying transport.
func (d *Driver) Close() error {
	return d.transport.Close()
}

// Reconnect replaces the transport handle with a freshly opened one.
func (d *Driver) Reconnect(ctx context.Context) error {
	return d.transport.Reconnect(ctx)
}

// Send writes the frame and reads a response, retrying up to maxRetries
// times with backoff on empty reads. A transport fault triggers one
// reconnection and the loop continues, unless it was the final attempt, in
// which case the fault propagates. Exhausting all retries without a fault
// yields (nil, nil): the "no response" outcome, not an error.
//
// A non-empty response is returned as-is; frame validation is the caller's
// concern.
func (d *Driver) Send(ctx context.Context, frame []byte, maxRetries int) ([]byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if maxRetries < 1 {
		maxRetries = d.config.MaxRetries
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		response, err := d.exchange(frame)
		if err != nil {
			if attempt == maxRetries {
				d.logger.LogCommand(commandName(frame), attempt, false, err)
				return nil, err
			}
			if rerr := d.transport.Reconnect(ctx); rerr != nil {
				d.logger.LogCommand(commandName(frame), attempt, false, rerr)
				return nil, rerr
			}
			continue
		}

		if len(response) > 0 {
			if d.raw != nil {
				d.raw.Record(response)
			}
			d.logger.LogCommand(commandName(frame), attempt, true, nil)
			return response, nil
		}

		d.logger.Warn("Empty response, retrying",
			zap.String("command", commandName(frame)),
			zap.Int("attempt", attempt),
		)
		if attempt < maxRetries {
			if err := sleepCtx(ctx, d.config.RetryBackoff); err != nil {
				return nil, err
			}
		}
	}

	d.logger.LogCommand(commandName(frame), maxRetries, false, nil)
	return nil, nil
}

// exchange performs one write/settle/read cycle.
func (d *Driver) exchange(frame []byte) ([]byte, error) {
	if err := d.transport.Write(frame); err != nil {
		return nil, err
	}
	time.Sleep(d.config.SettleDelay)
	return d.transport.Read(d.config.ResponseSize)
}

// ReadFrame performs one poll read during continuous inventory. An empty
// slice means the read timed out without data.
func (d *Driver) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	buf, err := d.transport.Read(d.config.FrameSize)
	if err == nil && len(buf) > 0 && d.raw != nil {
		d.raw.Record(buf)
	}
	return buf, err
}

// MaxRetries exposes the configured retry bound.
func (d *Driver) MaxRetries() int {
	return d.config.MaxRetries
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func commandName(frame []byte) string {
	if len(frame) < 3 {
		return "unknown"
	}
	return fmt.Sprintf("0x%02X", frame[2])
}
