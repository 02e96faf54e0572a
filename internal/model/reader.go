// internal/model/reader.go
package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Region represents a supported RF regulatory region
type Region string

const (
	RegionChina1 Region = "China1"
	RegionChina2 Region = "China2"
	RegionUS     Region = "US"
	RegionEurope Region = "Europe"
	RegionKorea  Region = "Korea"
)

// regionPayloads maps each supported region to its 2-byte command payload.
// Values outside this table are rejected before any bytes reach the reader.
var regionPayloads = map[Region][]byte{
	RegionChina2: {0x01, 0x09},
	RegionChina1: {0x04, 0x0C},
	RegionUS:     {0x02, 0x0A},
	RegionEurope: {0x03, 0x0B},
	RegionKorea:  {0x06, 0x0E},
}

// Payload returns the set-region command payload for the region.
func (r Region) Payload() ([]byte, error) {
	payload, ok := regionPayloads[r]
	if !ok {
		return nil, fmt.Errorf("unsupported region: %q", r)
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Valid reports whether the region is one of the supported set.
func (r Region) Valid() bool {
	_, ok := regionPayloads[r]
	return ok
}

// SupportedRegions lists the regions the reader firmware accepts.
func SupportedRegions() []Region {
	return []Region{RegionChina1, RegionChina2, RegionUS, RegionEurope, RegionKorea}
}

// PowerLevel represents an RF output power level in dBm. The reader only
// accepts a fixed table of fractional dBm steps, so levels are kept as
// decimals and compared by canonical string form rather than as floats.
type PowerLevel struct {
	dbm decimal.Decimal
}

// powerPayloads maps each supported dBm level (one decimal place) to its
// 2-byte command payload.
var powerPayloads = map[string][]byte{
	"18.5": {0x04, 0xE2},
	"20.0": {0x05, 0x78},
	"21.5": {0x06, 0x0E},
	"23.0": {0x06, 0xA4},
	"24.5": {0x07, 0x3A},
	"26.0": {0x07, 0xD0},
}

// ParsePowerLevel parses a dBm value such as "20.0" or "24.5" into a
// PowerLevel, rejecting values outside the supported table.
func ParsePowerLevel(value string) (PowerLevel, error) {
	dbm, err := decimal.NewFromString(value)
	if err != nil {
		return PowerLevel{}, fmt.Errorf("invalid power level %q: %w", value, err)
	}
	level := PowerLevel{dbm: dbm}
	if _, ok := powerPayloads[level.key()]; !ok {
		return PowerLevel{}, fmt.Errorf("unsupported power level: %s dBm", dbm.String())
	}
	return level, nil
}

func (p PowerLevel) key() string {
	return p.dbm.StringFixed(1)
}

// Payload returns the set-power command payload for the level.
func (p PowerLevel) Payload() ([]byte, error) {
	payload, ok := powerPayloads[p.key()]
	if !ok {
		return nil, fmt.Errorf("unsupported power level: %s dBm", p.dbm.String())
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// DBm returns the level as a decimal dBm value.
func (p PowerLevel) DBm() decimal.Decimal {
	return p.dbm
}

func (p PowerLevel) String() string {
	return p.dbm.String() + " dBm"
}

// MaxChannel is the highest channel index the set-channel command accepts.
const MaxChannel = 0x33

// ValidateChannel checks the channel index against the reader's range.
func ValidateChannel(channel int) error {
	if channel < 0 || channel > MaxChannel {
		return fmt.Errorf("channel %d out of range [0, %d]", channel, MaxChannel)
	}
	return nil
}
