package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Supported MQTT protocol versions.
const (
	ProtocolV311 = "3.1.1"
	ProtocolV5   = "5"
)

// Config is the root configuration structure for the Gray Logic agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Reporting ReportingConfig `yaml:"reporting"`
	Commands  CommandsConfig  `yaml:"commands"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the device this agent runs on.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	// URI is the broker address, e.g. "mqtt://broker.local:1883" or
	// "mqtts://broker.example.com:8883".
	URI string `yaml:"uri"`

	// ProtocolVersion selects the wire protocol: "3.1.1" or "5".
	ProtocolVersion string `yaml:"protocol_version"`

	// KeepAlive is the keepalive interval in seconds.
	KeepAlive int `yaml:"keepalive"`

	// ConnectTimeout bounds a single connection attempt, in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	TLS MQTTTLSConfig `yaml:"tls"`
}

// MQTTTLSConfig contains client TLS settings for secure broker schemes.
type MQTTTLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	AutoReconnect bool `yaml:"auto_reconnect"`
	InitialDelay  int  `yaml:"initial_delay"`
	MaxDelay      int  `yaml:"max_delay"`
}

// ReportingConfig controls the periodic property report.
type ReportingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between reports, in seconds.
	Interval int `yaml:"interval"`

	// MirrorToInfluxDB writes every report to InfluxDB as well as MQTT.
	// Requires influxdb.enabled.
	MirrorToInfluxDB bool `yaml:"mirror_to_influxdb"`
}

// CommandsConfig controls inbound command handling.
type CommandsConfig struct {
	Enabled bool `yaml:"enabled"`

	// RestartDelay is the grace period before a requested restart, in seconds.
	RestartDelay int `yaml:"restart_delay"`
}

// DatabaseConfig contains SQLite settings for the local command journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_AGENT_SECTION_KEY
// For example: GRAYLOGIC_AGENT_DEVICE_ID, GRAYLOGIC_AGENT_MQTT_URI
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// The device ID is intentionally empty: every device must be given its own.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Type: "sensor",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				URI:             "mqtt://localhost:1883",
				ProtocolVersion: ProtocolV311,
				KeepAlive:       60,
				ConnectTimeout:  10,
			},
			Reconnect: MQTTReconnectConfig{
				AutoReconnect: true,
				InitialDelay:  1,
				MaxDelay:      60,
			},
		},
		Reporting: ReportingConfig{
			Enabled:  true,
			Interval: 30,
		},
		Commands: CommandsConfig{
			Enabled:      true,
			RestartDelay: 3,
		},
		Database: DatabaseConfig{
			Path:        "./data/agent.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/agent.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_AGENT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("GRAYLOGIC_AGENT_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_AGENT_MQTT_URI"); v != "" {
		cfg.MQTT.Broker.URI = v
	}
	if v := os.Getenv("GRAYLOGIC_AGENT_MQTT_PROTOCOL_VERSION"); v != "" {
		cfg.MQTT.Broker.ProtocolVersion = v
	}
	if v := os.Getenv("GRAYLOGIC_AGENT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_AGENT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_AGENT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_AGENT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_AGENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected so an operator can fix the file in one pass.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if strings.TrimSpace(c.Device.ID) == "" {
		errs = append(errs, "device.id is required (set GRAYLOGIC_AGENT_DEVICE_ID environment variable)")
	} else if !utf8.ValidString(c.Device.ID) {
		errs = append(errs, "device.id must be valid UTF-8")
	} else if strings.ContainsAny(c.Device.ID, "/+#") {
		errs = append(errs, "device.id must not contain '/', '+' or '#'")
	}

	// MQTT validation
	if c.MQTT.Broker.URI == "" {
		errs = append(errs, "mqtt.broker.uri is required")
	} else if u, err := url.Parse(c.MQTT.Broker.URI); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "mqtt.broker.uri must be an absolute URI such as mqtt://host:1883")
	}
	switch c.MQTT.Broker.ProtocolVersion {
	case ProtocolV311, ProtocolV5:
	default:
		errs = append(errs, fmt.Sprintf("mqtt.broker.protocol_version must be %q or %q", ProtocolV311, ProtocolV5))
	}
	if c.MQTT.Broker.KeepAlive < 0 || c.MQTT.Broker.KeepAlive > 65535 {
		errs = append(errs, "mqtt.broker.keepalive must be between 0 and 65535")
	}
	if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must not be less than initial_delay")
	}

	// Reporting validation
	if c.Reporting.Enabled && c.Reporting.Interval < 1 {
		errs = append(errs, "reporting.interval must be at least 1 second")
	}
	if c.Reporting.MirrorToInfluxDB && !c.InfluxDB.Enabled {
		errs = append(errs, "reporting.mirror_to_influxdb requires influxdb.enabled")
	}

	// Commands validation
	if c.Commands.Enabled && c.Commands.RestartDelay < 1 {
		errs = append(errs, "commands.restart_delay must be at least 1 second")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database.enabled is true")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb.enabled is true")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb.enabled is true")
		}
	}

	// Logging validation
	switch c.Logging.Output {
	case "stdout", "stderr", "":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr, or file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReportInterval returns the reporting interval as a Duration.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Reporting.Interval) * time.Second
}

// RestartDelay returns the restart grace period as a Duration.
func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.Commands.RestartDelay) * time.Second
}
