// internal/protocol/report.go
package protocol

import (
	"encoding/hex"
	"strings"
	"time"

	"rfid-service/internal/model"
)

// FrameClass classifies an inbound buffer by its leading marker bytes.
type FrameClass int

const (
	ClassNoise FrameClass = iota
	ClassTag
	ClassError
)

// Tag-report frames use fixed field offsets regardless of the declared
// length field. Observed reader firmware always reports a 12-byte EPC at
// these positions; the offsets are a protocol quirk and are not derived
// from the length bytes.
const (
	tagRSSIOffset = 6
	tagPCOffset   = 7
	tagEPCOffset  = 9
	tagEPCLen     = 12
	tagCRCOffset  = 21
	tagFrameMin   = 23

	errCodeOffset = 5
	errFrameMin   = 6
)

var (
	tagMarker = []byte{FrameHead, TypeResponse, CmdSingleInventory}
	errMarker = []byte{FrameHead, TypeError, errFrameCode}
)

// Classify reports whether the buffer starts a tag report, an error frame,
// or neither. Anything unrecognized is noise, not an error.
func Classify(buf []byte) FrameClass {
	switch {
	case hasMarker(buf, tagMarker):
		return ClassTag
	case hasMarker(buf, errMarker):
		return ClassError
	default:
		return ClassNoise
	}
}

// ParseTagFrame extracts a TagRecord from a tag-report frame. It returns
// false when the buffer does not carry the tag marker or is too short for
// the fixed field windows.
func ParseTagFrame(buf []byte) (*model.TagRecord, bool) {
	if !hasMarker(buf, tagMarker) || len(buf) < tagFrameMin {
		return nil, false
	}

	return &model.TagRecord{
		EPC:       hexUpper(buf[tagEPCOffset : tagEPCOffset+tagEPCLen]),
		RSSI:      model.RSSIFromRaw(buf[tagRSSIOffset]),
		PC:        hexUpper(buf[tagPCOffset : tagPCOffset+2]),
		CRC:       hexUpper(buf[tagCRCOffset : tagCRCOffset+2]),
		Timestamp: time.Now(),
	}, true
}

// ParseErrorFrame extracts the error code from an error frame. It returns
// false for buffers without the error marker.
func ParseErrorFrame(buf []byte) (*model.ErrorEvent, bool) {
	if !hasMarker(buf, errMarker) || len(buf) < errFrameMin {
		return nil, false
	}
	return &model.ErrorEvent{Code: buf[errCodeOffset]}, true
}

func hasMarker(buf, marker []byte) bool {
	if len(buf) < len(marker) {
		return false
	}
	for i, b := range marker {
		if buf[i] != b {
			return false
		}
	}
	return true
}

func hexUpper(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}
