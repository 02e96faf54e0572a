package model

import (
	"bytes"
	"testing"
)

func TestRegionPayloads(t *testing.T) {
	payload, err := Region("US").Payload()
	if err != nil {
		t.Fatalf("US payload failed: %v", err)
	}
	if !bytes.Equal(payload, []byte{0x02, 0x0A}) {
		t.Fatalf("US payload mismatch: % X", payload)
	}

	if _, err := Region("Atlantis").Payload(); err == nil {
		t.Fatalf("unsupported region accepted")
	}
}

func TestPowerLevelTable(t *testing.T) {
	level, err := ParsePowerLevel("24.5")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	payload, err := level.Payload()
	if err != nil {
		t.Fatalf("payload failed: %v", err)
	}
	if !bytes.Equal(payload, []byte{0x07, 0x3A}) {
		t.Fatalf("24.5 dBm payload mismatch: % X", payload)
	}

	// "20" and "20.0" are the same level.
	if _, err := ParsePowerLevel("20"); err != nil {
		t.Fatalf("20 rejected: %v", err)
	}

	if _, err := ParsePowerLevel("19.0"); err == nil {
		t.Fatalf("off-table power level accepted")
	}
	if _, err := ParsePowerLevel("max"); err == nil {
		t.Fatalf("non-numeric power level accepted")
	}
}

func TestValidateChannel(t *testing.T) {
	if err := ValidateChannel(0); err != nil {
		t.Fatalf("channel 0 rejected: %v", err)
	}
	if err := ValidateChannel(MaxChannel); err != nil {
		t.Fatalf("channel 0x33 rejected: %v", err)
	}
	if err := ValidateChannel(MaxChannel + 1); err == nil {
		t.Fatalf("channel above range accepted")
	}
	if err := ValidateChannel(-1); err == nil {
		t.Fatalf("negative channel accepted")
	}
}

func TestRSSIFromRaw(t *testing.T) {
	cases := map[byte]int{0x00: -256, 0xFF: -1, 0x80: -128}
	for raw, want := range cases {
		if got := RSSIFromRaw(raw); got != want {
			t.Fatalf("raw 0x%02X: got %d want %d", raw, got, want)
		}
	}
}
