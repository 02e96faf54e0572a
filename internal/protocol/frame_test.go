package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildFrameLayout(t *testing.T) {
	frame, err := BuildFrame(TypeCommand, CmdSingleInventory, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	want := []byte{0xBB, 0x00, 0x22, 0x00, 0x00, 0x22, 0x7E}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame mismatch: got % X want % X", frame, want)
	}
}

func TestBuildDecodeRoundTrip(t *testing.T) {
	payload := []byte{0x22, 0x03, 0xE8}
	frame, err := BuildFrame(TypeCommand, CmdMultiInventory, payload)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	decoded, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Type != TypeCommand || decoded.Code != CmdMultiInventory {
		t.Fatalf("type/code mismatch: %02X %02X", decoded.Type, decoded.Code)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload mismatch: got % X want % X", decoded.Payload, payload)
	}
	if decoded.Checksum != frame[len(frame)-2] {
		t.Fatalf("checksum field mismatch")
	}
}

func TestBuildFrameRejectsOversizedPayload(t *testing.T) {
	_, err := BuildFrame(TypeCommand, CmdWriteMemory, make([]byte, MaxPayloadLen+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecodeRejectsAnySingleByteCorruption(t *testing.T) {
	frame, err := BuildFrame(TypeCommand, CmdSetRegion, []byte{0x02, 0x0A})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// Every byte strictly between the start marker and the checksum must be
	// covered by the checksum.
	for i := 1; i < len(frame)-2; i++ {
		corrupted := make([]byte, len(frame))
		copy(corrupted, frame)
		corrupted[i] ^= 0x01

		if _, err := DecodeFrame(corrupted); err == nil {
			t.Fatalf("corruption at byte %d not rejected", i)
		}
	}
}

func TestDecodeRejectsBadMarkers(t *testing.T) {
	frame, _ := BuildFrame(TypeCommand, CmdSingleInventory, nil)

	noHead := make([]byte, len(frame))
	copy(noHead, frame)
	noHead[0] = 0xAA
	if _, err := DecodeFrame(noHead); !errors.Is(err, ErrBadFrameMarker) {
		t.Fatalf("expected ErrBadFrameMarker for head, got %v", err)
	}

	noTail := make([]byte, len(frame))
	copy(noTail, frame)
	noTail[len(noTail)-1] = 0x00
	if _, err := DecodeFrame(noTail); !errors.Is(err, ErrBadFrameMarker) {
		t.Fatalf("expected ErrBadFrameMarker for tail, got %v", err)
	}

	if _, err := DecodeFrame([]byte{0xBB, 0x00}); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
}

func TestParseTagFrameFixedOffsets(t *testing.T) {
	frame := []byte{
		0xBB, 0x02, 0x22, 0x00, 0x11, 0x00,
		0x80,       // raw RSSI
		0x11, 0x22, // PC
		0xE2, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xAA, // EPC
		0xAB, 0xCD, // CRC
		0x00, 0x7E,
	}

	tag, ok := ParseTagFrame(frame)
	if !ok {
		t.Fatalf("tag frame not recognized")
	}
	if tag.EPC != "E200112233445566778899AA" {
		t.Fatalf("EPC mismatch: %s", tag.EPC)
	}
	if tag.RSSI != -128 {
		t.Fatalf("RSSI mismatch: %d", tag.RSSI)
	}
	if tag.PC != "1122" {
		t.Fatalf("PC mismatch: %s", tag.PC)
	}
	if tag.CRC != "ABCD" {
		t.Fatalf("CRC mismatch: %s", tag.CRC)
	}
	if tag.Timestamp.IsZero() {
		t.Fatalf("timestamp not set")
	}
}

func TestParseTagFrameRejectsShortBuffer(t *testing.T) {
	if _, ok := ParseTagFrame([]byte{0xBB, 0x02, 0x22, 0x00}); ok {
		t.Fatalf("short buffer accepted as tag frame")
	}
}

func TestParseErrorFrame(t *testing.T) {
	frame := []byte{0xBB, 0x01, 0xFF, 0x00, 0x00, 0x05, 0x05, 0x7E}
	event, ok := ParseErrorFrame(frame)
	if !ok {
		t.Fatalf("error frame not recognized")
	}
	if event.Code != 0x05 {
		t.Fatalf("error code mismatch: 0x%02X", event.Code)
	}
}

func TestClassify(t *testing.T) {
	if Classify([]byte{0xBB, 0x02, 0x22, 0x00}) != ClassTag {
		t.Fatalf("tag marker not classified")
	}
	if Classify([]byte{0xBB, 0x01, 0xFF, 0x00}) != ClassError {
		t.Fatalf("error marker not classified")
	}
	if Classify([]byte{0xBB, 0x00, 0x22}) != ClassNoise {
		t.Fatalf("command echo should be noise")
	}
	if Classify(nil) != ClassNoise {
		t.Fatalf("empty buffer should be noise")
	}
}
