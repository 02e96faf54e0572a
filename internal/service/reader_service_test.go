// internal/service/reader_service_test.go
package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"rfid-service/internal/config"
	"rfid-service/internal/inventory"
	"rfid-service/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Reader: config.ReaderConfig{
			Port:     "/dev/ttyUSB0",
			DeviceID: "reader-test",
		},
		Inventory: config.InventoryConfig{
			Duration:    5 * time.Second,
			Throttle:    100 * time.Millisecond,
			MaxErrors:   3,
			TargetCount: 1000,
			SinkTimeout: 5 * time.Second,
		},
	}
}

func newTestService() *ReaderService {
	return NewReaderService(nil, nil, testConfig(), zap.NewNop())
}

func TestSessionOptionsDefaultsFromConfig(t *testing.T) {
	rs := newTestService()

	opts := rs.sessionOptions(nil)
	if opts.Duration != 5*time.Second {
		t.Fatalf("expected configured duration, got %s", opts.Duration)
	}
	if opts.MaxErrors != 3 || opts.TargetCount != 1000 {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}

func TestSessionOptionsRequestOverrides(t *testing.T) {
	rs := newTestService()

	opts := rs.sessionOptions(&SessionRequest{
		Duration:  time.Minute,
		Throttle:  50 * time.Millisecond,
		MaxErrors: 10,
	})
	if opts.Duration != time.Minute {
		t.Fatalf("expected request duration, got %s", opts.Duration)
	}
	if opts.Throttle != 50*time.Millisecond || opts.MaxErrors != 10 {
		t.Fatalf("request overrides not applied: %+v", opts)
	}
	// Unset fields keep the configured value.
	if opts.TargetCount != 1000 {
		t.Fatalf("expected configured target count, got %d", opts.TargetCount)
	}
}

func TestStatusIdleWithoutSessions(t *testing.T) {
	rs := newTestService()

	status := rs.Status()
	if status.Running {
		t.Fatal("expected no running session")
	}
	if status.State != inventory.StateIdle.String() {
		t.Fatalf("expected idle state, got %q", status.State)
	}
}

func TestStopSessionWithoutActiveSession(t *testing.T) {
	rs := newTestService()

	if _, err := rs.StopSession(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestSubscribeReceivesEmittedTags(t *testing.T) {
	rs := newTestService()

	tags, unsubscribe := rs.Subscribe()
	defer unsubscribe()

	tag := &model.TagRecord{EPC: "E2000019060A02361580AC01", RSSI: -56, Timestamp: time.Now()}
	if err := rs.baseSink.Emit(context.Background(), tag); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case got := <-tags:
		if got.EPC != tag.EPC {
			t.Fatalf("unexpected tag %q", got.EPC)
		}
	case <-time.After(time.Second):
		t.Fatal("expected tag on subscription channel")
	}
}

func TestRecentTagsWithStoreDisabled(t *testing.T) {
	rs := newTestService()

	if _, err := rs.RecentTags(context.Background(), 10); err == nil {
		t.Fatal("expected error when tag store is disabled")
	}
}
