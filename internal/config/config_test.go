package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Reader: ReaderConfig{
			Port:       "/dev/ttyUSB0",
			BaudRate:   115200,
			RFPower:    "20.0",
			Region:     "US",
			Channel:    10,
			MaxRetries: 3,
		},
		Inventory: InventoryConfig{
			Duration:  5 * time.Second,
			MaxErrors: 3,
		},
		Logging: LoggingConfig{Level: "info"},
		App:     AppConfig{Environment: "test"},
	}
}

func TestValidateAcceptsSupportedValues(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsUnsupportedRegion(t *testing.T) {
	cfg := validConfig()
	cfg.Reader.Region = "Mars"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "region") {
		t.Fatalf("expected region error, got %v", err)
	}
}

func TestValidateRejectsOffTablePower(t *testing.T) {
	cfg := validConfig()
	cfg.Reader.RFPower = "30.0"
	if err := Validate(cfg); err == nil {
		t.Fatalf("off-table power accepted")
	}
}

func TestValidateRejectsChannelOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Reader.Channel = 0x34
	if err := Validate(cfg); err == nil {
		t.Fatalf("channel above 0x33 accepted")
	}
}

func TestValidateRequiresForwarderURLWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Forwarder.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("enabled forwarder without base_url accepted")
	}
	cfg.Forwarder.BaseURL = "https://api.example.com"
	if err := Validate(cfg); err != nil {
		t.Fatalf("forwarder with base_url rejected: %v", err)
	}
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database = DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "rfid", SSLMode: "disable",
	}
	dsn := cfg.GetDatabaseDSN()
	if !strings.Contains(dsn, "host=db") || !strings.Contains(dsn, "dbname=rfid") {
		t.Fatalf("unexpected DSN: %s", dsn)
	}
}
