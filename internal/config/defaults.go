package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID               = "scout"
	DefaultPeerHost                 = "127.0.0.1"
	DefaultPeerPort                 = 7497
	DefaultPeerScheme               = "ws"
	DefaultPeerPath                 = "/v1/api/ws"
	DefaultHandshakeTimeout         = 10 * time.Second
	DefaultPingInterval             = 30 * time.Second
	DefaultPingTimeout              = 90 * time.Second
	DefaultWriteTimeout             = 5 * time.Second
	DefaultCheckInterval            = 10 * time.Second
	DefaultTickInterval             = 1 * time.Second
	DefaultPollInterval             = 1 * time.Second
	DefaultMaxConnectionAttempts    = 10
	DefaultMaxDisconnectionAttempts = 10
	DefaultMaxRestarts              = 5
	DefaultWorkerPoolSize           = 3
	DefaultBackoffMin               = 500 * time.Millisecond
	DefaultBackoffMax               = 10 * time.Second
	DefaultBackoffFactor            = 2.0
	DefaultBackoffJitter            = 1.0
	DefaultBackoffMaxAttempts       = 5
	DefaultBackoffMaxTotal          = 30 * time.Second
	DefaultFlushThreshold           = 100
	DefaultBatchSize                = 1000
	DefaultTable                    = "bars"
	DefaultKeyPrefix                = "bars:"
	DefaultDBPort                   = 5432
	DefaultDBSSLMode                = "prefer"
	DefaultMaxConns                 = 10
	DefaultMinConns                 = 2
	DefaultBarSize                  = "1 min"
	DefaultDuration                 = "1 D"
	DefaultSyncInterval             = 24 * time.Hour
	DefaultSyncConcurrency          = 2
	DefaultRequestTimeout           = 5 * time.Minute
	DefaultCalendar                 = "xnys"
	DefaultLogLevel                 = "info"
	DefaultHealthPath               = "/health"
)

func (c *ScoutConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Peer defaults
	if c.Peer.Host == "" {
		c.Peer.Host = DefaultPeerHost
	}
	if c.Peer.Port == 0 {
		c.Peer.Port = DefaultPeerPort
	}
	if c.Peer.Scheme == "" {
		c.Peer.Scheme = DefaultPeerScheme
	}
	if c.Peer.Path == "" {
		c.Peer.Path = DefaultPeerPath
	}
	if c.Peer.HandshakeTimeout == 0 {
		c.Peer.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Peer.PingInterval == 0 {
		c.Peer.PingInterval = DefaultPingInterval
	}
	if c.Peer.PingTimeout == 0 {
		c.Peer.PingTimeout = DefaultPingTimeout
	}
	if c.Peer.WriteTimeout == 0 {
		c.Peer.WriteTimeout = DefaultWriteTimeout
	}

	// Supervisor defaults
	if c.Supervisor.CheckInterval == 0 {
		c.Supervisor.CheckInterval = DefaultCheckInterval
	}
	if c.Supervisor.TickInterval == 0 {
		c.Supervisor.TickInterval = DefaultTickInterval
	}
	if c.Supervisor.PollInterval == 0 {
		c.Supervisor.PollInterval = DefaultPollInterval
	}
	if c.Supervisor.MaxConnectionAttempts == 0 {
		c.Supervisor.MaxConnectionAttempts = DefaultMaxConnectionAttempts
	}
	if c.Supervisor.MaxDisconnectionAttempts == 0 {
		c.Supervisor.MaxDisconnectionAttempts = DefaultMaxDisconnectionAttempts
	}
	if c.Supervisor.MaxRestarts == 0 {
		c.Supervisor.MaxRestarts = DefaultMaxRestarts
	}
	if c.Supervisor.WorkerPoolSize == 0 {
		c.Supervisor.WorkerPoolSize = DefaultWorkerPoolSize
	}

	// Backoff defaults
	if c.Backoff.Min == 0 {
		c.Backoff.Min = DefaultBackoffMin
	}
	if c.Backoff.Max == 0 {
		c.Backoff.Max = DefaultBackoffMax
	}
	if c.Backoff.Factor == 0 {
		c.Backoff.Factor = DefaultBackoffFactor
	}
	if c.Backoff.Jitter == 0 {
		c.Backoff.Jitter = DefaultBackoffJitter
	}
	if c.Backoff.MaxAttempts == 0 {
		c.Backoff.MaxAttempts = DefaultBackoffMaxAttempts
	}
	if c.Backoff.MaxTotal == 0 {
		c.Backoff.MaxTotal = DefaultBackoffMaxTotal
	}

	if c.Cache.FlushThreshold == 0 {
		c.Cache.FlushThreshold = DefaultFlushThreshold
	}

	// Storage defaults
	if c.Storage.BatchSize == 0 {
		c.Storage.BatchSize = DefaultBatchSize
	}
	if c.Storage.Table == "" {
		c.Storage.Table = DefaultTable
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = DefaultKeyPrefix
	}
	applyDBDefaults(&c.Storage.Database)

	// Sync defaults
	if c.Sync.BarSize == "" {
		c.Sync.BarSize = DefaultBarSize
	}
	if c.Sync.Duration == "" {
		c.Sync.Duration = DefaultDuration
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = DefaultSyncInterval
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = DefaultSyncConcurrency
	}
	if c.Sync.RequestTimeout == 0 {
		c.Sync.RequestTimeout = DefaultRequestTimeout
	}
	if c.Sync.Calendar == "" {
		c.Sync.Calendar = DefaultCalendar
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
