// internal/sink/sink.go
package sink

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"rfid-service/internal/model"
)

// TagSink consumes tag records emitted by an inventory session. Emit is
// called exactly once per newly-seen EPC per session and must respect the
// context deadline.
type TagSink interface {
	Emit(ctx context.Context, tag *model.TagRecord) error
	Close() error
}

// MultiSink fans one tag out to several sinks. A failing sink never
// prevents delivery to the others; failures are joined and reported.
type MultiSink struct {
	sinks  []TagSink
	logger *zap.Logger
}

// NewMultiSink creates a fan-out over the given sinks.
func NewMultiSink(logger *zap.Logger, sinks ...TagSink) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger,
	}
}

// Append adds a sink to the fan-out.
func (m *MultiSink) Append(s TagSink) {
	m.sinks = append(m.sinks, s)
}

// Emit delivers the tag to every sink.
func (m *MultiSink) Emit(ctx context.Context, tag *model.TagRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, tag); err != nil {
			m.logger.Warn("Sink emission failed",
				zap.String("epc", tag.EPC),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink, returning the first failure.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
