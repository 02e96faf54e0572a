// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"rfid-service/internal/model"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Reader    ReaderConfig    `mapstructure:"reader"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Forwarder ForwarderConfig `mapstructure:"forwarder"`
	Sinks     SinksConfig     `mapstructure:"sinks"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig represents the tag event store configuration
type DatabaseConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// ReaderConfig represents the serial reader and command channel parameters
type ReaderConfig struct {
	Port           string        `mapstructure:"port"`
	BaudRate       int           `mapstructure:"baud_rate"`
	RFPower        string        `mapstructure:"rf_power"`
	Region         string        `mapstructure:"region"`
	Channel        int           `mapstructure:"channel"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	ReconnectPause time.Duration `mapstructure:"reconnect_pause"`
	MaxRetries     int           `mapstructure:"max_retries"`
	DeviceID       string        `mapstructure:"device_id"`
}

// InventoryConfig represents continuous-inventory session parameters
type InventoryConfig struct {
	Duration    time.Duration `mapstructure:"duration"`
	Throttle    time.Duration `mapstructure:"throttle"`
	MaxErrors   int           `mapstructure:"max_errors"`
	TargetCount int           `mapstructure:"target_count"`
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
}

// ForwarderConfig represents the remote tag API endpoint
type ForwarderConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BaseURL  string        `mapstructure:"base_url"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SinksConfig represents local tag and raw-frame log files
type SinksConfig struct {
	TagLog RotatingFileConfig `mapstructure:"tag_log"`
	RawLog RotatingFileConfig `mapstructure:"raw_log"`
}

// RotatingFileConfig represents one rotating log file
type RotatingFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/rfid-service")

	viper.SetEnvPrefix("RFID_SERVICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// The defaults describe a complete standalone setup; a missing file
		// is not an error, a malformed one is.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8086")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "rfid_service")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.max_lifetime", "5m")

	// Reader defaults mirror the module's documented timing: 100ms settle
	// after a write, 1s read timeout, 500ms backoff between retries.
	viper.SetDefault("reader.port", "/dev/ttyUSB0")
	viper.SetDefault("reader.baud_rate", 115200)
	viper.SetDefault("reader.rf_power", "20.0")
	viper.SetDefault("reader.region", "China2")
	viper.SetDefault("reader.channel", 0)
	viper.SetDefault("reader.read_timeout", "1s")
	viper.SetDefault("reader.settle_delay", "100ms")
	viper.SetDefault("reader.retry_backoff", "500ms")
	viper.SetDefault("reader.reconnect_pause", "1s")
	viper.SetDefault("reader.max_retries", 3)
	viper.SetDefault("reader.device_id", "rfid_reader_001")

	// Inventory defaults
	viper.SetDefault("inventory.duration", "5s")
	viper.SetDefault("inventory.throttle", "100ms")
	viper.SetDefault("inventory.max_errors", 3)
	viper.SetDefault("inventory.target_count", 1000)
	viper.SetDefault("inventory.sink_timeout", "5s")

	// Forwarder defaults
	viper.SetDefault("forwarder.enabled", false)
	viper.SetDefault("forwarder.endpoint", "/rfid")
	viper.SetDefault("forwarder.timeout", "30s")

	// Sink defaults
	viper.SetDefault("sinks.tag_log.enabled", true)
	viper.SetDefault("sinks.tag_log.path", "./logs/rfid_tags.log")
	viper.SetDefault("sinks.tag_log.max_size", 50)
	viper.SetDefault("sinks.tag_log.max_backups", 3)
	viper.SetDefault("sinks.tag_log.max_age", 28)
	viper.SetDefault("sinks.tag_log.compress", false)
	viper.SetDefault("sinks.raw_log.enabled", false)
	viper.SetDefault("sinks.raw_log.path", "./logs/rfid_raw.log")
	viper.SetDefault("sinks.raw_log.max_size", 50)
	viper.SetDefault("sinks.raw_log.max_backups", 3)
	viper.SetDefault("sinks.raw_log.max_age", 7)
	viper.SetDefault("sinks.raw_log.compress", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)

	// App defaults
	viper.SetDefault("app.name", "rfid-service")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// Validate validates the configuration, rejecting unsupported enumerated
// values at the boundary rather than deep in the protocol layer.
func Validate(config *Config) error {
	if config.Reader.Port == "" {
		return fmt.Errorf("reader.port is required")
	}
	if config.Reader.BaudRate <= 0 {
		return fmt.Errorf("reader.baud_rate must be positive")
	}
	if !model.Region(config.Reader.Region).Valid() {
		return fmt.Errorf("reader.region %q not in supported set %v",
			config.Reader.Region, model.SupportedRegions())
	}
	if _, err := model.ParsePowerLevel(config.Reader.RFPower); err != nil {
		return fmt.Errorf("reader.rf_power: %w", err)
	}
	if err := model.ValidateChannel(config.Reader.Channel); err != nil {
		return fmt.Errorf("reader.channel: %w", err)
	}
	if config.Reader.MaxRetries < 1 {
		return fmt.Errorf("reader.max_retries must be at least 1")
	}
	if config.Inventory.MaxErrors < 1 {
		return fmt.Errorf("inventory.max_errors must be at least 1")
	}
	if config.Forwarder.Enabled && config.Forwarder.BaseURL == "" {
		return fmt.Errorf("forwarder.base_url is required when the forwarder is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[config.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, fatal")
	}

	validEnvs := map[string]bool{"development": true, "staging": true, "production": true, "test": true}
	if !validEnvs[config.App.Environment] {
		return fmt.Errorf("app.environment must be one of development, staging, production, test")
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
