package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"rfid-service/internal/model"
	"rfid-service/internal/transport"
	"rfid-service/internal/utils"
)

// tagFrame builds a tag-report frame whose EPC's last byte is id.
func tagFrame(id byte) []byte {
	frame := []byte{
		0xBB, 0x02, 0x22, 0x00, 0x11, 0x00, 0xB0, 0x30, 0x00,
		0xE2, 0x00, 0x00, 0x19, 0x06, 0x0A, 0x02, 0x36, 0x15, 0x80, 0xAC, id,
		0x50, 0x41, 0x00, 0x7E,
	}
	return frame
}

func errorFrame(code byte) []byte {
	return []byte{0xBB, 0x01, 0xFF, 0x00, 0x01, code, code, 0x7E}
}

type scriptStep struct {
	frame []byte
	err   error
}

// fakeCommander replays scripted poll reads; once the script is exhausted
// it returns empty reads forever.
type fakeCommander struct {
	script     []scriptStep
	idx        int
	starts     int
	stops      int
	reconnects int

	startErr     error
	reconnectErr error
}

func (f *fakeCommander) StartMultiInventory(ctx context.Context, count int) error {
	f.starts++
	return f.startErr
}

func (f *fakeCommander) StopMultiInventory(ctx context.Context) error {
	f.stops++
	return nil
}

func (f *fakeCommander) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.idx >= len(f.script) {
		return nil, nil
	}
	step := f.script[f.idx]
	f.idx++
	return step.frame, step.err
}

func (f *fakeCommander) Reconnect(ctx context.Context) error {
	f.reconnects++
	return f.reconnectErr
}

// recordingEmitter collects emitted tags.
type recordingEmitter struct {
	tags []*model.TagRecord
}

func (r *recordingEmitter) Emit(ctx context.Context, tag *model.TagRecord) error {
	r.tags = append(r.tags, tag)
	return nil
}

func testLogger() *utils.ReaderLogger {
	return utils.NewReaderLogger(zap.NewNop(), "test-reader", "fake")
}

func fastOptions(duration time.Duration) Options {
	return Options{
		Duration:    duration,
		Throttle:    time.Millisecond,
		MaxErrors:   3,
		TargetCount: 100,
		SinkTimeout: 50 * time.Millisecond,
	}
}

func TestSessionDeduplicatesRepeatedTag(t *testing.T) {
	script := make([]scriptStep, 0, 5)
	for i := 0; i < 5; i++ {
		script = append(script, scriptStep{frame: tagFrame(0x01)})
	}

	cmd := &fakeCommander{script: script}
	emitter := &recordingEmitter{}
	session := NewSession(cmd, emitter, testLogger(), fastOptions(100*time.Millisecond))

	stats, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(emitter.tags) != 1 {
		t.Fatalf("expected 1 emission for repeated EPC, got %d", len(emitter.tags))
	}
	if stats.UniqueTags != 1 {
		t.Fatalf("unique count mismatch: %d", stats.UniqueTags)
	}
	if stats.StopReason != StopDeadline {
		t.Fatalf("stop reason mismatch: %s", stats.StopReason)
	}
}

func TestSessionEmitsEachDistinctTagOnce(t *testing.T) {
	var script []scriptStep
	for i := byte(0); i < 4; i++ {
		script = append(script, scriptStep{frame: tagFrame(i)})
	}

	cmd := &fakeCommander{script: script}
	emitter := &recordingEmitter{}
	session := NewSession(cmd, emitter, testLogger(), fastOptions(100*time.Millisecond))

	if _, err := session.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(emitter.tags) != 4 {
		t.Fatalf("expected 4 emissions, got %d", len(emitter.tags))
	}
	seen := map[string]bool{}
	for _, tag := range emitter.tags {
		if seen[tag.EPC] {
			t.Fatalf("EPC %s emitted twice", tag.EPC)
		}
		seen[tag.EPC] = true
	}
}

func TestSessionStopsAfterConsecutiveErrors(t *testing.T) {
	script := []scriptStep{
		{frame: errorFrame(0x15)},
		{frame: errorFrame(0x15)},
		{frame: errorFrame(0x15)},
		// Must never be reached.
		{frame: tagFrame(0x01)},
	}

	cmd := &fakeCommander{script: script}
	emitter := &recordingEmitter{}
	session := NewSession(cmd, emitter, testLogger(), fastOptions(time.Minute))

	start := time.Now()
	stats, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("session did not stop before its deadline")
	}
	if stats.StopReason != StopErrorsExhausted {
		t.Fatalf("stop reason mismatch: %s", stats.StopReason)
	}
	if cmd.stops != 1 {
		t.Fatalf("stop command issued %d times, want exactly 1", cmd.stops)
	}
	if len(emitter.tags) != 0 {
		t.Fatalf("tags emitted after error exhaustion")
	}
}

func TestTagResetsConsecutiveErrorCount(t *testing.T) {
	script := []scriptStep{
		{frame: errorFrame(0x15)},
		{frame: errorFrame(0x15)},
		{frame: tagFrame(0x01)}, // resets the counter
		{frame: errorFrame(0x15)},
		{frame: errorFrame(0x15)},
	}

	cmd := &fakeCommander{script: script}
	emitter := &recordingEmitter{}
	session := NewSession(cmd, emitter, testLogger(), fastOptions(100*time.Millisecond))

	stats, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.StopReason != StopDeadline {
		t.Fatalf("session stopped early: %s", stats.StopReason)
	}
	if stats.Errors != 4 {
		t.Fatalf("error count mismatch: %d", stats.Errors)
	}
}

func TestStreamingSessionStopsOnCancellation(t *testing.T) {
	cmd := &fakeCommander{}
	emitter := &recordingEmitter{}
	// Duration zero: unbounded streaming mode.
	session := NewSession(cmd, emitter, testLogger(), fastOptions(0))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	var stats model.SessionStats
	var runErr error
	go func() {
		stats, runErr = session.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("streaming session did not stop on cancellation")
	}

	if runErr != nil {
		t.Fatalf("cancellation must not be an error: %v", runErr)
	}
	if stats.StopReason != StopCancelled {
		t.Fatalf("stop reason mismatch: %s", stats.StopReason)
	}
	if cmd.stops != 1 {
		t.Fatalf("stop command issued %d times, want exactly 1", cmd.stops)
	}
	if session.State() != StateIdle {
		t.Fatalf("session not idle after run: %s", session.State())
	}
}

func TestPollingReconnectsOnTransportFault(t *testing.T) {
	script := []scriptStep{
		{err: &transport.Fault{Op: "read", Err: errors.New("io failure")}},
		{frame: tagFrame(0x01)},
	}

	cmd := &fakeCommander{script: script}
	emitter := &recordingEmitter{}
	session := NewSession(cmd, emitter, testLogger(), fastOptions(100*time.Millisecond))

	if _, err := session.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if cmd.reconnects != 1 {
		t.Fatalf("expected one reconnect, got %d", cmd.reconnects)
	}
	if len(emitter.tags) != 1 {
		t.Fatalf("polling did not continue after reconnect")
	}
}

func TestPollingStopsWhenReconnectFails(t *testing.T) {
	script := []scriptStep{
		{err: &transport.Fault{Op: "read", Err: errors.New("io failure")}},
	}

	cmd := &fakeCommander{
		script:       script,
		reconnectErr: errors.New("port gone"),
	}
	session := NewSession(cmd, &recordingEmitter{}, testLogger(), fastOptions(time.Minute))

	stats, err := session.Run(context.Background())
	if err == nil {
		t.Fatalf("reconnect failure swallowed")
	}
	if stats.StopReason != StopReconnectFailed {
		t.Fatalf("stop reason mismatch: %s", stats.StopReason)
	}
	if cmd.stops != 1 {
		t.Fatalf("stop command issued %d times, want exactly 1", cmd.stops)
	}
}

// blockingEmitter never returns until the emit context expires.
type blockingEmitter struct{}

func (blockingEmitter) Emit(ctx context.Context, tag *model.TagRecord) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSlowSinkDoesNotStallSession(t *testing.T) {
	script := []scriptStep{{frame: tagFrame(0x01)}, {frame: tagFrame(0x02)}}

	cmd := &fakeCommander{script: script}
	opts := fastOptions(200 * time.Millisecond)
	opts.SinkTimeout = 10 * time.Millisecond
	session := NewSession(cmd, blockingEmitter{}, testLogger(), opts)

	start := time.Now()
	if _, err := session.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("slow sink stalled the session")
	}
}

func TestDeduplicator(t *testing.T) {
	dedup := NewDeduplicator()
	if !dedup.Observe("AAAA") {
		t.Fatalf("first observation not new")
	}
	if dedup.Observe("AAAA") {
		t.Fatalf("repeat observation reported as new")
	}
	if !dedup.Seen("AAAA") || dedup.Seen("BBBB") {
		t.Fatalf("seen set inconsistent")
	}
	if dedup.Len() != 1 {
		t.Fatalf("len mismatch: %d", dedup.Len())
	}
}
