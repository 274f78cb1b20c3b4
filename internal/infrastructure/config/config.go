package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when VIRTFOO_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for the virt-foo daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Device    DeviceConfig    `yaml:"device"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DeviceConfig describes the simulated virt-foo device and the driver's tuning.
type DeviceConfig struct {
	// ID is the device instance identifier. Empty generates one at startup.
	ID string `yaml:"id"`

	// ChipID is the value reported by the ID register.
	ChipID uint32 `yaml:"chip_id"`

	// MemSize is the register window size in bytes.
	MemSize int `yaml:"mem_size"`

	// IRQ is the interrupt line number. Negative runs without interrupts.
	IRQ int `yaml:"irq"`

	// MonitorIntervalMS is the threshold monitor's sampling period.
	MonitorIntervalMS int `yaml:"monitor_interval_ms"`

	// QueueLimit bounds pending work. Zero means unbounded.
	QueueLimit int `yaml:"queue_limit"`

	// ObserverBuffer is the number of mutations buffered for observers.
	ObserverBuffer int `yaml:"observer_buffer"`

	// DequeueDelayMS is how long the hardware takes to consume a command.
	DequeueDelayMS int `yaml:"dequeue_delay_ms"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// JournalRetentionHours is how long counter events are kept. Zero keeps them forever.
	JournalRetentionHours int `yaml:"journal_retention_hours"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
//
// An empty secret leaves the command endpoint unauthenticated.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	Issuer         string `yaml:"issuer"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VIRTFOO_SECTION_KEY
// For example: VIRTFOO_DATABASE_PATH, VIRTFOO_API_PORT
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

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// PathFromEnv returns VIRTFOO_CONFIG, or DefaultPath when unset.
func PathFromEnv() string {
	if v := os.Getenv("VIRTFOO_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "virt-foo lab",
		},
		Device: DeviceConfig{
			ChipID:            0xf001,
			MemSize:           0x10,
			IRQ:               37,
			MonitorIntervalMS: 1000,
			ObserverBuffer:    256,
			DequeueDelayMS:    10,
		},
		Database: DatabaseConfig{
			Path:                  "./data/virtfoo.db",
			WALMode:               true,
			BusyTimeout:           5,
			JournalRetentionHours: 168,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "virtfoo-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "virtfoo",
			Bucket:        "virtfoo",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:         "virtfoo",
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VIRTFOO_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []string
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}

	// Device
	setString("VIRTFOO_DEVICE_ID", &cfg.Device.ID)
	setInt("VIRTFOO_DEVICE_IRQ", &cfg.Device.IRQ)
	setInt("VIRTFOO_DEVICE_QUEUE_LIMIT", &cfg.Device.QueueLimit)

	// Database
	setString("VIRTFOO_DATABASE_PATH", &cfg.Database.Path)

	// MQTT
	setBool("VIRTFOO_MQTT_ENABLED", &cfg.MQTT.Enabled)
	setString("VIRTFOO_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("VIRTFOO_MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("VIRTFOO_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("VIRTFOO_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// API
	setString("VIRTFOO_API_HOST", &cfg.API.Host)
	setInt("VIRTFOO_API_PORT", &cfg.API.Port)

	// InfluxDB
	setBool("VIRTFOO_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	setString("VIRTFOO_INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("VIRTFOO_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	setString("VIRTFOO_LOG_LEVEL", &cfg.Logging.Level)
	setString("VIRTFOO_LOG_FORMAT", &cfg.Logging.Format)

	// Security
	setString("VIRTFOO_JWT_SECRET", &cfg.Security.JWT.Secret)

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Device
	if c.Device.MemSize < 0x10 {
		errs = append(errs, "device.mem_size must be at least 16 bytes")
	}
	if c.Device.MonitorIntervalMS <= 0 {
		errs = append(errs, "device.monitor_interval_ms must be positive")
	}
	if c.Device.QueueLimit < 0 {
		errs = append(errs, "device.queue_limit must not be negative")
	}
	if c.Device.ObserverBuffer < 0 {
		errs = append(errs, "device.observer_buffer must not be negative")
	}
	if c.Device.DequeueDelayMS < 0 {
		errs = append(errs, "device.dequeue_delay_ms must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.JournalRetentionHours < 0 {
		errs = append(errs, "database.journal_retention_hours must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when tls is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// The JWT secret is optional, but a weak one is worse than none.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters (set VIRTFOO_JWT_SECRET)")
	}
	if c.Security.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "security.jwt.access_token_ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// MonitorInterval returns the threshold monitor period as a Duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Device.MonitorIntervalMS) * time.Millisecond
}

// DequeueDelay returns the simulated command dequeue delay as a Duration.
func (c *Config) DequeueDelay() time.Duration {
	return time.Duration(c.Device.DequeueDelayMS) * time.Millisecond
}

// JournalRetention returns how long counter events are kept. Zero means forever.
func (c *Config) JournalRetention() time.Duration {
	return time.Duration(c.Database.JournalRetentionHours) * time.Hour
}

// AccessTokenTTL returns the lifetime of issued bearer tokens.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}
