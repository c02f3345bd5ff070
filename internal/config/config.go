package config

import (
	"log/slog"
	"strings"
	"time"
)

// ScoutConfig is the root configuration for a scout instance.
type ScoutConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Peer       PeerConfig       `yaml:"peer"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Backoff    BackoffConfig    `yaml:"backoff"`
	Cache      CacheConfig      `yaml:"cache"`
	Storage    StorageConfig    `yaml:"storage"`
	Sync       SyncConfig       `yaml:"sync"`
	Logging    LoggingConfig    `yaml:"logging"`
	Health     HealthConfig     `yaml:"health"`
}

// InstanceConfig identifies this scout.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// PeerConfig holds the gateway session settings.
type PeerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ClientID         int           `yaml:"client_id"`
	Scheme           string        `yaml:"scheme"` // "ws" or "wss"
	Path             string        `yaml:"path"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// SupervisorConfig holds session supervision settings.
type SupervisorConfig struct {
	CheckInterval            time.Duration `yaml:"check_interval"`
	TickInterval             time.Duration `yaml:"tick_interval"`
	PollInterval             time.Duration `yaml:"poll_interval"`
	MaxConnectionAttempts    int           `yaml:"max_connection_attempts"`
	MaxDisconnectionAttempts int           `yaml:"max_disconnection_attempts"`
	MaxRestarts              int           `yaml:"max_restarts"`
	WorkerPoolSize           int           `yaml:"worker_pool_size"`
}

// BackoffConfig holds connect retry settings.
type BackoffConfig struct {
	Min         time.Duration `yaml:"min"`
	Max         time.Duration `yaml:"max"`
	Factor      float64       `yaml:"factor"`
	Jitter      float64       `yaml:"jitter"` // 0 = none, 1 = full jitter
	MaxAttempts int           `yaml:"max_attempts"`
	MaxTotal    time.Duration `yaml:"max_total"`
}

// CacheConfig holds bar cache settings.
type CacheConfig struct {
	FlushThreshold int `yaml:"flush_threshold"`
}

// StorageConfig holds output settings.
//
// Target selects the sink: a file path (.csv, .json, .parquet), a
// sqlite://, postgres:// or redis:// URL, or "timescale" to use Database.
// "{instrument}" and "{run}" in file targets are expanded per series.
type StorageConfig struct {
	Target    string        `yaml:"target"`
	BatchSize int           `yaml:"batch_size"`
	Table     string        `yaml:"table"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
	Database  DBConfig      `yaml:"database"`
}

// UsesDatabase reports whether the target refers to the Database section.
func (s StorageConfig) UsesDatabase() bool {
	return strings.EqualFold(s.Target, "timescale")
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SyncConfig holds periodic historical sync settings.
type SyncConfig struct {
	Instruments    []string      `yaml:"instruments"`
	BarSize        string        `yaml:"bar_size"`
	Duration       string        `yaml:"duration"`
	RegularOnly    bool          `yaml:"rth"`
	Interval       time.Duration `yaml:"interval"`
	Concurrency    int           `yaml:"concurrency"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Calendar       string        `yaml:"calendar"` // Exchange MIC, e.g. "xnys"
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SlogLevel returns the configured level. Unknown values map to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	level, _ := ParseLevel(l.Level)
	return level
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// HealthConfig holds health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"` // 0 disables the server
	Path string `yaml:"path"`
}
