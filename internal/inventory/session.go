// internal/inventory/session.go
package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rfid-service/internal/model"
	"rfid-service/internal/protocol"
	"rfid-service/internal/transport"
	"rfid-service/internal/utils"
)

// State is the live state of an inventory session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StatePolling
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StatePolling:
		return "polling"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Stop reasons recorded in session stats.
const (
	StopDeadline        = "deadline"
	StopCancelled       = "cancelled"
	StopErrorsExhausted = "errors_exhausted"
	StopReconnectFailed = "reconnect_failed"
	StopStartFailed     = "start_failed"
)

// Commander is the slice of the reader driver a session needs.
type Commander interface {
	StartMultiInventory(ctx context.Context, count int) error
	StopMultiInventory(ctx context.Context) error
	ReadFrame(ctx context.Context) ([]byte, error)
	Reconnect(ctx context.Context) error
}

// Emitter receives each newly-seen tag exactly once per session.
type Emitter interface {
	Emit(ctx context.Context, tag *model.TagRecord) error
}

// Options configures one session run.
type Options struct {
	// Duration bounds the polling phase; zero means unbounded streaming,
	// terminated only by context cancellation.
	Duration    time.Duration
	Throttle    time.Duration
	MaxErrors   int
	TargetCount int
	SinkTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Throttle <= 0 {
		o.Throttle = 100 * time.Millisecond
	}
	if o.MaxErrors < 1 {
		o.MaxErrors = 3
	}
	if o.TargetCount <= 0 {
		o.TargetCount = 1000
	}
	if o.SinkTimeout <= 0 {
		o.SinkTimeout = 5 * time.Second
	}
}

// Session runs one continuous-inventory round trip: start command, poll
// loop with dedup and error accounting, stop command on every exit path.
type Session struct {
	id      uuid.UUID
	cmd     Commander
	emitter Emitter
	logger  *utils.ReaderLogger
	opts    Options
	dedup   *Deduplicator

	mutex sync.RWMutex
	state State
}

// NewSession creates a session; Run may be called once.
func NewSession(cmd Commander, emitter Emitter, logger *utils.ReaderLogger, opts Options) *Session {
	opts.applyDefaults()
	return &Session{
		id:      uuid.New(),
		cmd:     cmd,
		emitter: emitter,
		logger:  logger,
		opts:    opts,
		dedup:   NewDeduplicator(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current session state.
func (s *Session) State() State {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mutex.Lock()
	s.state = state
	s.mutex.Unlock()
}

// Run drives the session until its deadline, cancellation, error-count
// exhaustion or reconnect failure. The stop command is issued exactly
// once, best-effort, on every exit path.
func (s *Session) Run(ctx context.Context) (model.SessionStats, error) {
	stats := model.SessionStats{
		SessionID: s.id,
		StartedAt: time.Now(),
	}

	s.setState(StateStarting)
	s.logger.Info("Inventory session starting",
		zap.String("session_id", s.id.String()),
		zap.Duration("duration", s.opts.Duration),
	)

	if err := s.cmd.StartMultiInventory(ctx, s.opts.TargetCount); err != nil {
		stats.StopReason = StopStartFailed
		s.finish(&stats)
		return stats, err
	}

	// The start command gets no response in continuous mode; polling
	// begins unconditionally.
	s.setState(StatePolling)
	runErr := s.poll(ctx, &stats)

	s.finish(&stats)
	return stats, runErr
}

func (s *Session) poll(ctx context.Context, stats *model.SessionStats) error {
	var deadline time.Time
	if s.opts.Duration > 0 {
		deadline = stats.StartedAt.Add(s.opts.Duration)
	}

	consecutiveErrors := 0

	for {
		if ctx.Err() != nil {
			stats.StopReason = StopCancelled
			return nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			stats.StopReason = StopDeadline
			return nil
		}

		frame, err := s.cmd.ReadFrame(ctx)
		if err != nil {
			if transport.IsFault(err) {
				s.logger.Warn("Transport fault while polling", zap.Error(err))
				if rerr := s.cmd.Reconnect(ctx); rerr != nil {
					stats.StopReason = StopReconnectFailed
					return rerr
				}
				continue
			}
			stats.StopReason = StopCancelled
			return nil
		}

		switch protocol.Classify(frame) {
		case protocol.ClassTag:
			if tag, ok := protocol.ParseTagFrame(frame); ok {
				stats.Frames++
				consecutiveErrors = 0
				if s.dedup.Observe(tag.EPC) {
					stats.UniqueTags++
					s.logger.LogTag(tag.EPC, tag.RSSI, true)
					s.emit(ctx, tag)
				}
			}

		case protocol.ClassError:
			if event, ok := protocol.ParseErrorFrame(frame); ok {
				stats.Errors++
				consecutiveErrors++
				s.logger.LogReaderError(event.Code, consecutiveErrors)
				if consecutiveErrors >= s.opts.MaxErrors {
					stats.StopReason = StopErrorsExhausted
					return nil
				}
			}

		default:
			// Noise or an empty read: no state change.
		}

		select {
		case <-ctx.Done():
			stats.StopReason = StopCancelled
			return nil
		case <-time.After(s.opts.Throttle):
		}
	}
}

// emit hands the tag to the emitter with a bounded timeout so a slow sink
// cannot stall the poll loop.
func (s *Session) emit(ctx context.Context, tag *model.TagRecord) {
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SinkTimeout)
	defer cancel()

	if err := s.emitter.Emit(emitCtx, tag); err != nil {
		s.logger.Error("Tag emission failed",
			zap.String("epc", tag.EPC),
			zap.Error(err),
		)
	}
}

// finish issues the best-effort stop command and settles final stats. The
// stop command uses a fresh context: the session context may already be
// cancelled on this path.
func (s *Session) finish(stats *model.SessionStats) {
	s.setState(StateStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.cmd.StopMultiInventory(stopCtx); err != nil {
		s.logger.Warn("Stop command failed during shutdown", zap.Error(err))
	}

	stats.StoppedAt = time.Now()
	stats.Elapsed = stats.StoppedAt.Sub(stats.StartedAt)

	s.setState(StateIdle)
	s.logger.Info("Inventory session finished",
		zap.String("session_id", s.id.String()),
		zap.String("stop_reason", stats.StopReason),
		zap.Int("unique_tags", stats.UniqueTags),
		zap.Int("errors", stats.Errors),
	)
}
