// internal/transport/serial.go
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialTransport implements Transport over a serial port.
type SerialTransport struct {
	config *Config
	port   serial.Port
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool

	// Stats track basic link activity for the health endpoint.
	stats Stats
}

// Stats holds link activity counters.
type Stats struct {
	BytesSent     uint64    `json:"bytes_sent"`
	BytesReceived uint64    `json:"bytes_received"`
	Reconnects    uint64    `json:"reconnects"`
	LastActivity  time.Time `json:"last_activity"`
	IsConnected   bool      `json:"is_connected"`
}

// NewSerialTransport creates a serial transport for the configured port.
func NewSerialTransport(config *Config, logger *zap.Logger) *SerialTransport {
	return &SerialTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens the serial port with the configured baud rate.
func (st *SerialTransport) Open(ctx context.Context) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return st.openLocked(ctx)
}

func (st *SerialTransport) openLocked(ctx context.Context) error {
	if st.isOpen {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st.logger.Info("Opening serial port", zap.Int("baud_rate", st.config.BaudRate))

	mode := &serial.Mode{
		BaudRate: st.config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(st.config.Port, mode)
	if err != nil {
		st.logger.Error("Failed to open serial port", zap.Error(err))
		return &Fault{Op: "open", Err: err}
	}

	if err := port.SetReadTimeout(st.config.ReadTimeout); err != nil {
		port.Close()
		return &Fault{Op: "open", Err: fmt.Errorf("set read timeout: %w", err)}
	}

	st.port = port
	st.isOpen = true
	st.stats.IsConnected = true
	st.stats.LastActivity = time.Now()

	st.logger.Info("Serial port opened")
	return nil
}

// Write writes the full buffer to the port.
func (st *SerialTransport) Write(data []byte) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return &Fault{Op: "write", Err: ErrNotOpen}
	}

	written := 0
	for written < len(data) {
		n, err := st.port.Write(data[written:])
		if err != nil {
			return &Fault{Op: "write", Err: err}
		}
		written += n
	}

	st.stats.BytesSent += uint64(len(data))
	st.stats.LastActivity = time.Now()
	return nil
}

// Read reads up to maxBytes from the port within the configured read
// timeout. A timeout yields an empty slice, not an error.
func (st *SerialTransport) Read(maxBytes int) ([]byte, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return nil, &Fault{Op: "read", Err: ErrNotOpen}
	}

	buf := make([]byte, maxBytes)
	n, err := st.port.Read(buf)
	if err != nil {
		return nil, &Fault{Op: "read", Err: err}
	}
	if n == 0 {
		return nil, nil
	}

	st.stats.BytesReceived += uint64(n)
	st.stats.LastActivity = time.Now()
	return buf[:n], nil
}

// Close closes the serial port.
func (st *SerialTransport) Close() error {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return st.closeLocked()
}

func (st *SerialTransport) closeLocked() error {
	if !st.isOpen || st.port == nil {
		return nil
	}

	if err := st.port.Close(); err != nil {
		st.logger.Error("Failed to close serial port", zap.Error(err))
		return &Fault{Op: "close", Err: err}
	}

	st.port = nil
	st.isOpen = false
	st.stats.IsConnected = false

	st.logger.Info("Serial port closed")
	return nil
}

// IsOpen reports whether the port is currently open.
func (st *SerialTransport) IsOpen() bool {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return st.isOpen
}

// Reconnect closes the handle if open, pauses and reopens with the same
// port and baud parameters.
func (st *SerialTransport) Reconnect(ctx context.Context) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	st.logger.Warn("Reconnecting serial port")

	if st.isOpen {
		if err := st.closeLocked(); err != nil {
			return err
		}
	}

	pause := st.config.ReconnectPause
	if pause <= 0 {
		pause = time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pause):
	}

	if err := st.openLocked(ctx); err != nil {
		st.logger.Error("Reconnect failed", zap.Error(err))
		return err
	}

	st.stats.Reconnects++
	st.logger.Info("Reconnected serial port")
	return nil
}

// Stats returns a snapshot of link activity counters.
func (st *SerialTransport) Stats() Stats {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return st.stats
}
