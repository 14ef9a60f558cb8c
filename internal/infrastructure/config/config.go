package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for doorgate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Watch    WatchConfig    `yaml:"watch"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig identifies the installation this gateway serves.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	WriteQueue  int    `yaml:"write_queue"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	TLS       MQTTTLSConfig       `yaml:"tls"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ClientID     string `yaml:"client_id"`
	CleanSession bool   `yaml:"clean_session"`
	KeepAlive    int    `yaml:"keep_alive"`
}

// MQTTTLSConfig contains the certificate material for the broker connection.
// When Enabled is false the connection uses plain TCP.
type MQTTTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// SkipHostnameVerify accepts a broker certificate whose CN/SAN does not
	// match the host. The chain is still verified against CAFile.
	SkipHostnameVerify bool `yaml:"skip_hostname_verify"`
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

	// ConnectTimeout bounds the wait for the first connection (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// RequireInitialConnect makes startup fail when the broker is not
	// reachable within ConnectTimeout. When false the client keeps retrying
	// in the background.
	RequireInitialConnect bool `yaml:"require_initial_connect"`
}

// MQTTTopicsConfig names the topics used on the bus.
type MQTTTopicsConfig struct {
	Commands string `yaml:"commands"`
	Database string `yaml:"database"`
	Firmware string `yaml:"firmware"`
	Logs     string `yaml:"logs"`
	Status   string `yaml:"status"`
}

// IngestConfig controls the server-side log ingestion role.
type IngestConfig struct {
	Enabled bool `yaml:"enabled"`

	// SubscribeQoS is the QoS for the log topic subscription.
	SubscribeQoS int `yaml:"subscribe_qos"`

	// AccessFieldOrder pins the order of the three ACCESS fields after the
	// door id: "reader-auth-card" (default) or "reader-card-auth".
	AccessFieldOrder string `yaml:"access_field_order"`
}

// WatchConfig controls the filesystem event bridge.
type WatchConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Rules       []WatchRuleConfig `yaml:"rules"`
	Workers     int               `yaml:"workers"`
	QueueSize   int               `yaml:"queue_size"`
	PublishRate float64           `yaml:"publish_rate"`
	ScanOnStart bool              `yaml:"scan_on_start"`

	// SettleMS is how long a file must stay unmodified before it is
	// published. Zero publishes on the first event.
	SettleMS int `yaml:"settle_ms"`
}

// Settle returns SettleMS as a duration.
func (w WatchConfig) Settle() time.Duration {
	return time.Duration(w.SettleMS) * time.Millisecond
}

// WatchRuleConfig binds a directory and its file patterns to a topic kind.
type WatchRuleConfig struct {
	Dir      string   `yaml:"dir"`
	Patterns []string `yaml:"patterns"`
	Kind     string   `yaml:"kind"`
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

// AdminConfig contains the admin HTTP server settings.
type AdminConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Host     string             `yaml:"host"`
	Port     int                `yaml:"port"`
	Timeouts AdminTimeoutConfig `yaml:"timeouts"`
}

// AdminTimeoutConfig contains HTTP timeout settings in seconds.
type AdminTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// ReadTimeout returns the read timeout as a Duration.
func (t AdminTimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (t AdminTimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (t AdminTimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Watch rule kinds accepted in configuration.
const (
	KindCommands = "commands"
	KindDatabase = "database"
	KindFirmware = "firmware"
	KindLogs     = "logs"
)

// Access field orders accepted in configuration.
const (
	FieldOrderReaderAuthCard = "reader-auth-card"
	FieldOrderReaderCardAuth = "reader-card-auth"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DOORGATE_SECTION_KEY
// For example: DOORGATE_DATABASE_PATH, DOORGATE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
//
// The watch rules mirror the historical deployment: command files in the
// working directory, database and firmware uploads in ./upload.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "doorgate",
		},
		Database: DatabaseConfig{
			Path:        "./data/messages.db",
			WALMode:     true,
			BusyTimeout: 5,
			WriteQueue:  256,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:         "localhost",
				Port:         1883,
				ClientID:     "doorgate-server",
				CleanSession: false,
				KeepAlive:    60,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay:   1,
				MaxDelay:       60,
				ConnectTimeout: 10,
			},
			Topics: MQTTTopicsConfig{
				Commands: "/topic/commands",
				Database: "/topic/database",
				Firmware: "/topic/firmware",
				Logs:     "/topic/logs",
				Status:   "/topic/status",
			},
		},
		Ingest: IngestConfig{
			Enabled:          true,
			SubscribeQoS:     1,
			AccessFieldOrder: FieldOrderReaderAuthCard,
		},
		Watch: WatchConfig{
			Enabled: true,
			Rules: []WatchRuleConfig{
				{Dir: ".", Patterns: []string{"*.txt"}, Kind: KindCommands},
				{Dir: "upload", Patterns: []string{"*.db"}, Kind: KindDatabase},
				{Dir: "upload", Patterns: []string{"*.bin"}, Kind: KindFirmware},
			},
			Workers:     2,
			QueueSize:   64,
			PublishRate: 1,
			SettleMS:    250,
		},
		Admin: AdminConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: AdminTimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DOORGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("DOORGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("DOORGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DOORGATE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("DOORGATE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("DOORGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DOORGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("DOORGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("DOORGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" && c.Ingest.Enabled {
		errs = append(errs, "database.path is required when ingest is enabled")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TLS.Enabled && (c.MQTT.TLS.CertFile == "") != (c.MQTT.TLS.KeyFile == "") {
		errs = append(errs, "mqtt.tls.cert_file and mqtt.tls.key_file must be set together")
	}

	if c.Ingest.Enabled {
		if c.MQTT.Topics.Logs == "" {
			errs = append(errs, "mqtt.topics.logs is required when ingest is enabled")
		}
		if c.Ingest.SubscribeQoS < 0 || c.Ingest.SubscribeQoS > 2 {
			errs = append(errs, "ingest.subscribe_qos must be 0, 1, or 2")
		}
	}
	// Matched the way the codec parses it, whether or not ingest runs.
	switch strings.ToLower(strings.TrimSpace(c.Ingest.AccessFieldOrder)) {
	case "", FieldOrderReaderAuthCard, FieldOrderReaderCardAuth:
	default:
		errs = append(errs, fmt.Sprintf("ingest.access_field_order %q is not supported", c.Ingest.AccessFieldOrder))
	}

	if c.Watch.Enabled {
		errs = append(errs, c.validateWatch()...)
	}

	if c.Admin.Enabled && (c.Admin.Port < 1 || c.Admin.Port > 65535) {
		errs = append(errs, "admin.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateWatch() []string {
	var errs []string

	if len(c.Watch.Rules) == 0 {
		errs = append(errs, "watch.rules must not be empty when watch is enabled")
	}
	for i, r := range c.Watch.Rules {
		if r.Dir == "" {
			errs = append(errs, fmt.Sprintf("watch.rules[%d].dir is required", i))
		}
		if len(r.Patterns) == 0 {
			errs = append(errs, fmt.Sprintf("watch.rules[%d].patterns must not be empty", i))
		}
		if c.TopicForKind(r.Kind) == "" {
			errs = append(errs, fmt.Sprintf("watch.rules[%d].kind %q is not supported", i, r.Kind))
		}
	}
	if c.Watch.Workers < 1 {
		errs = append(errs, "watch.workers must be at least 1")
	}
	if c.Watch.QueueSize < 1 {
		errs = append(errs, "watch.queue_size must be at least 1")
	}
	if c.Watch.PublishRate < 0 {
		errs = append(errs, "watch.publish_rate must not be negative")
	}
	if c.Watch.SettleMS < 0 {
		errs = append(errs, "watch.settle_ms must not be negative")
	}

	return errs
}

// TopicForKind returns the configured topic for a watch rule kind, or ""
// for an unknown kind.
func (c *Config) TopicForKind(kind string) string {
	switch kind {
	case KindCommands:
		return c.MQTT.Topics.Commands
	case KindDatabase:
		return c.MQTT.Topics.Database
	case KindFirmware:
		return c.MQTT.Topics.Firmware
	case KindLogs:
		return c.MQTT.Topics.Logs
	default:
		return ""
	}
}
