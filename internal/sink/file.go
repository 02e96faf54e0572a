// internal/sink/file.go
package sink

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"rfid-service/internal/config"
	"rfid-service/internal/model"
)

// FileSink appends one JSON line per tag to a rotating log file.
type FileSink struct {
	writer io.Writer
	mutex  sync.Mutex
}

// NewFileSink creates a tag log backed by a lumberjack-rotated file.
func NewFileSink(cfg *config.RotatingFileConfig) *FileSink {
	return &FileSink{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		},
	}
}

func newFileSinkWithWriter(w io.Writer) *FileSink {
	return &FileSink{writer: w}
}

// Emit writes the tag as one JSON line.
func (f *FileSink) Emit(ctx context.Context, tag *model.TagRecord) error {
	line, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("marshal tag: %w", err)
	}
	line = append(line, '\n')

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, err := f.writer.Write(line); err != nil {
		return fmt.Errorf("write tag log: %w", err)
	}
	return nil
}

// Close closes the underlying file if it is closable.
func (f *FileSink) Close() error {
	if closer, ok := f.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// RawLog records raw response buffers as timestamped upper-hex lines.
// It plugs into the driver's raw-recorder hook.
type RawLog struct {
	writer io.Writer
	mutex  sync.Mutex
}

// NewRawLog creates a raw frame log backed by a lumberjack-rotated file.
func NewRawLog(cfg *config.RotatingFileConfig) *RawLog {
	return &RawLog{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		},
	}
}

// Record writes one frame; write failures are dropped, a raw trace must
// never interfere with the command path.
func (r *RawLog) Record(frame []byte) {
	line := fmt.Sprintf("%s %s\n",
		time.Now().Format(time.RFC3339Nano),
		strings.ToUpper(hex.EncodeToString(frame)),
	)

	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, _ = r.writer.Write([]byte(line))
}

// Close closes the underlying file if it is closable.
func (r *RawLog) Close() error {
	if closer, ok := r.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
