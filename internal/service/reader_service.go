// internal/service/reader_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rfid-service/internal/config"
	"rfid-service/internal/driver/uhf"
	"rfid-service/internal/inventory"
	"rfid-service/internal/model"
	"rfid-service/internal/repository"
	"rfid-service/internal/sink"
	"rfid-service/internal/utils"
)

var (
	// ErrSessionActive is returned when a command needs exclusive use of
	// the serial channel while an inventory session holds it.
	ErrSessionActive = errors.New("inventory session is active")

	// ErrNoActiveSession is returned by StopSession when nothing is running.
	ErrNoActiveSession = errors.New("no active inventory session")
)

// SessionRequest configures one inventory session run.
type SessionRequest struct {
	Duration    time.Duration `json:"duration"`
	Throttle    time.Duration `json:"throttle"`
	MaxErrors   int           `json:"max_errors"`
	TargetCount int           `json:"target_count"`
}

// SessionStatus describes the running or most recently finished session.
type SessionStatus struct {
	SessionID  uuid.UUID           `json:"session_id,omitempty"`
	State      string              `json:"state"`
	Running    bool                `json:"running"`
	UniqueTags int                 `json:"unique_tags"`
	LastStats  *model.SessionStats `json:"last_stats,omitempty"`
}

// ReaderService owns the reader driver and arbitrates access to it: one
// inventory session at a time, and no configuration or memory commands
// while a session holds the serial channel.
type ReaderService struct {
	driver   *uhf.Driver
	tagRepo  repository.TagRepository
	config   *config.Config
	logger   *utils.ServiceLogger
	baseLog  *zap.Logger
	stream   *sink.ChannelSink
	baseSink *sink.MultiSink

	mutex     sync.Mutex
	session   *inventory.Session
	cancel    context.CancelFunc
	done      chan struct{}
	lastStats *model.SessionStats
}

// NewReaderService creates the reader service. tagRepo may be nil when
// the database is disabled; tags are then only streamed and logged.
func NewReaderService(
	driver *uhf.Driver,
	tagRepo repository.TagRepository,
	cfg *config.Config,
	logger *zap.Logger,
) *ReaderService {
	rs := &ReaderService{
		driver:  driver,
		tagRepo: tagRepo,
		config:  cfg,
		logger:  utils.NewServiceLogger(logger, "reader-service"),
		baseLog: logger,
		stream:  sink.NewChannelSink(256, logger),
	}
	rs.baseSink = rs.buildBaseSink()
	return rs
}

// buildBaseSink assembles the sinks every session shares: the in-process
// stream, the rotating tag log and the HTTP forwarder.
func (rs *ReaderService) buildBaseSink() *sink.MultiSink {
	multi := sink.NewMultiSink(rs.baseLog, rs.stream)

	if rs.config.Sinks.TagLog.Enabled {
		multi.Append(sink.NewFileSink(&rs.config.Sinks.TagLog))
	}
	if rs.config.Forwarder.Enabled {
		multi.Append(sink.NewForwarder(&rs.config.Forwarder, rs.config.Reader.DeviceID, rs.baseLog))
	}

	return multi
}

// ApplySetup pushes the configured region, channel and RF power to the
// reader, in that order.
func (rs *ReaderService) ApplySetup(ctx context.Context) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	if rs.session != nil {
		return ErrSessionActive
	}

	region := model.Region(rs.config.Reader.Region)
	if err := rs.driver.SetRegion(ctx, region); err != nil {
		return fmt.Errorf("set region: %w", err)
	}

	if err := rs.driver.SetChannel(ctx, rs.config.Reader.Channel); err != nil {
		return fmt.Errorf("set channel: %w", err)
	}

	power, err := model.ParsePowerLevel(rs.config.Reader.RFPower)
	if err != nil {
		return fmt.Errorf("parse power level: %w", err)
	}
	if err := rs.driver.SetPower(ctx, power); err != nil {
		return fmt.Errorf("set power: %w", err)
	}

	rs.logger.Info("Reader setup applied",
		zap.String("region", string(region)),
		zap.Int("channel", rs.config.Reader.Channel),
		zap.String("rf_power", rs.config.Reader.RFPower),
	)
	return nil
}

// SingleInventory performs one single-shot inventory round.
func (rs *ReaderService) SingleInventory(ctx context.Context) (*model.TagRecord, error) {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	if rs.session != nil {
		return nil, ErrSessionActive
	}

	return rs.driver.SingleInventory(ctx)
}

// SelectEPC narrows subsequent inventory rounds to one EPC.
func (rs *ReaderService) SelectEPC(ctx context.Context, epcHex string) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	if rs.session != nil {
		return ErrSessionActive
	}

	return rs.driver.SelectEPC(ctx, epcHex)
}

// ReadMemory reads words from one tag memory bank.
func (rs *ReaderService) ReadMemory(ctx context.Context, bank byte, offset, count uint16, password []byte) ([]byte, error) {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	if rs.session != nil {
		return nil, ErrSessionActive
	}

	return rs.driver.ReadMemory(ctx, bank, offset, count, password)
}

// WriteMemory writes words into one tag memory bank.
func (rs *ReaderService) WriteMemory(ctx context.Context, bank byte, offset uint16, data, password []byte) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	if rs.session != nil {
		return ErrSessionActive
	}

	return rs.driver.WriteMemory(ctx, bank, offset, data, password)
}

// StartSession begins a continuous inventory session in the background.
// Only one session may run at a time.
func (rs *ReaderService) StartSession(req *SessionRequest) (uuid.UUID, error) {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	if rs.session != nil {
		return uuid.Nil, ErrSessionActive
	}

	opts := rs.sessionOptions(req)
	emitter := rs.sessionSink()

	readerLog := utils.NewReaderLogger(rs.baseLog, rs.config.Reader.DeviceID, rs.config.Reader.Port)
	session := inventory.NewSession(rs.driver, emitter, readerLog, opts)
	if bound, ok := emitter.(*boundStoreSink); ok {
		bound.Bind(session.ID())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	rs.session = session
	rs.cancel = cancel
	rs.done = done

	go func() {
		defer close(done)
		stats, err := session.Run(ctx)
		if err != nil {
			rs.logger.Error("Inventory session ended with error",
				zap.String("session_id", session.ID().String()),
				zap.Error(err),
			)
		}

		rs.mutex.Lock()
		rs.lastStats = &stats
		rs.session = nil
		rs.cancel = nil
		rs.done = nil
		rs.mutex.Unlock()
	}()

	rs.logger.Info("Inventory session started",
		zap.String("session_id", session.ID().String()),
		zap.Duration("duration", opts.Duration),
	)
	return session.ID(), nil
}

// RunSession runs a session in the foreground until it finishes or ctx
// is cancelled. Used by the CLI inventory modes.
func (rs *ReaderService) RunSession(ctx context.Context, req *SessionRequest) (model.SessionStats, error) {
	rs.mutex.Lock()
	if rs.session != nil {
		rs.mutex.Unlock()
		return model.SessionStats{}, ErrSessionActive
	}

	opts := rs.sessionOptions(req)
	emitter := rs.sessionSink()
	readerLog := utils.NewReaderLogger(rs.baseLog, rs.config.Reader.DeviceID, rs.config.Reader.Port)
	session := inventory.NewSession(rs.driver, emitter, readerLog, opts)
	if bound, ok := emitter.(*boundStoreSink); ok {
		bound.Bind(session.ID())
	}
	rs.session = session
	rs.mutex.Unlock()

	stats, err := session.Run(ctx)

	rs.mutex.Lock()
	rs.lastStats = &stats
	rs.session = nil
	rs.mutex.Unlock()

	return stats, err
}

func (rs *ReaderService) sessionOptions(req *SessionRequest) inventory.Options {
	opts := inventory.Options{
		Duration:    rs.config.Inventory.Duration,
		Throttle:    rs.config.Inventory.Throttle,
		MaxErrors:   rs.config.Inventory.MaxErrors,
		TargetCount: rs.config.Inventory.TargetCount,
		SinkTimeout: rs.config.Inventory.SinkTimeout,
	}
	if req == nil {
		return opts
	}
	if req.Duration != 0 {
		opts.Duration = req.Duration
	}
	if req.Throttle > 0 {
		opts.Throttle = req.Throttle
	}
	if req.MaxErrors > 0 {
		opts.MaxErrors = req.MaxErrors
	}
	if req.TargetCount > 0 {
		opts.TargetCount = req.TargetCount
	}
	return opts
}

// sessionSink returns the shared sinks, plus a store sink when the
// database is enabled. Called with rs.mutex held.
func (rs *ReaderService) sessionSink() inventory.Emitter {
	if rs.tagRepo == nil {
		return rs.baseSink
	}

	multi := sink.NewMultiSink(rs.baseLog, rs.baseSink)
	return &boundStoreSink{
		multi:    multi,
		repo:     rs.tagRepo,
		deviceID: rs.config.Reader.DeviceID,
	}
}

// boundStoreSink defers session-ID binding until the session exists.
type boundStoreSink struct {
	multi    *sink.MultiSink
	repo     repository.TagRepository
	deviceID string

	once  sync.Once
	store *sink.StoreSink
	id    uuid.UUID
}

// Bind fixes the session ID used for stored tags.
func (b *boundStoreSink) Bind(sessionID uuid.UUID) {
	b.id = sessionID
}

func (b *boundStoreSink) Emit(ctx context.Context, tag *model.TagRecord) error {
	b.once.Do(func() {
		b.store = sink.NewStoreSink(b.repo, b.deviceID, b.id)
		b.multi.Append(b.store)
	})
	return b.multi.Emit(ctx, tag)
}

// StopSession cancels the running session and waits for it to settle.
func (rs *ReaderService) StopSession(ctx context.Context) (*model.SessionStats, error) {
	rs.mutex.Lock()
	if rs.session == nil {
		rs.mutex.Unlock()
		return nil, ErrNoActiveSession
	}
	cancel := rs.cancel
	done := rs.done
	rs.mutex.Unlock()

	// Foreground sessions own their context; only background sessions
	// can be stopped here.
	if cancel == nil {
		return nil, ErrNoActiveSession
	}
	cancel()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	rs.mutex.Lock()
	stats := rs.lastStats
	rs.mutex.Unlock()
	return stats, nil
}

// Status reports the current or most recent session.
func (rs *ReaderService) Status() SessionStatus {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	if rs.session != nil {
		return SessionStatus{
			SessionID: rs.session.ID(),
			State:     rs.session.State().String(),
			Running:   true,
		}
	}

	status := SessionStatus{State: inventory.StateIdle.String()}
	if rs.lastStats != nil {
		status.SessionID = rs.lastStats.SessionID
		status.UniqueTags = rs.lastStats.UniqueTags
		status.LastStats = rs.lastStats
	}
	return status
}

// Subscribe registers a live tag stream; cancel() detaches it.
func (rs *ReaderService) Subscribe() (<-chan *model.TagRecord, func()) {
	return rs.stream.Subscribe()
}

// RecentTags returns the most recent persisted tag events.
func (rs *ReaderService) RecentTags(ctx context.Context, limit int) ([]*model.StoredTag, error) {
	if rs.tagRepo == nil {
		return nil, errors.New("tag store is disabled")
	}
	return rs.tagRepo.RecentTags(ctx, limit)
}

// TagsBySession returns every persisted tag event from one session.
func (rs *ReaderService) TagsBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.StoredTag, error) {
	if rs.tagRepo == nil {
		return nil, errors.New("tag store is disabled")
	}
	return rs.tagRepo.TagsBySession(ctx, sessionID)
}

// Close stops any running session and shuts the sinks and driver down.
func (rs *ReaderService) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := rs.StopSession(ctx); err != nil && !errors.Is(err, ErrNoActiveSession) {
		rs.logger.Warn("Failed to stop session during shutdown", zap.Error(err))
	}

	var errs []error
	if err := rs.baseSink.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := rs.driver.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
