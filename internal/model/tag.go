// internal/model/tag.go
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TagRecord is one observed tag event decoded from a tag-report frame.
// Records are immutable once created by the frame parser.
type TagRecord struct {
	EPC       string    `json:"epc"`
	RSSI      int       `json:"rssi"`
	PC        string    `json:"pc"`
	CRC       string    `json:"crc"`
	Timestamp time.Time `json:"timestamp"`
}

// RSSIFromRaw converts the raw RSSI byte of a tag-report frame into the
// signed value the reader documentation describes: -(256 - raw).
// Raw 0x00 maps to -256, 0xFF to -1.
func RSSIFromRaw(raw byte) int {
	return -(256 - int(raw))
}

// StoredTag is a TagRecord persisted by the tag event store, with the
// identity and session metadata added at write time.
type StoredTag struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	DeviceID  string    `json:"device_id"`
	TagRecord
	CreatedAt time.Time `json:"created_at"`
}

// ErrorEvent is one decoded error frame from the reader.
type ErrorEvent struct {
	Code byte `json:"code"`
}

func (e ErrorEvent) String() string {
	return fmt.Sprintf("reader error code 0x%02X", e.Code)
}

// SessionStats summarizes one inventory session run.
type SessionStats struct {
	SessionID  uuid.UUID     `json:"session_id"`
	StartedAt  time.Time     `json:"started_at"`
	StoppedAt  time.Time     `json:"stopped_at"`
	UniqueTags int           `json:"unique_tags"`
	Frames     int           `json:"frames"`
	Errors     int           `json:"errors"`
	StopReason string        `json:"stop_reason"`
	Elapsed    time.Duration `json:"elapsed"`
}
