package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/market-scout/internal/bars"
)

// Validate checks that all required fields are set and values are valid.
func (c *ScoutConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Peer.Host == "" {
		return errors.New("peer.host is required")
	}
	if c.Peer.Port < 1 || c.Peer.Port > 65535 {
		return fmt.Errorf("peer.port must be between 1 and 65535, got %d", c.Peer.Port)
	}
	if c.Peer.ClientID < 0 {
		return errors.New("peer.client_id must be >= 0")
	}
	if c.Peer.Scheme != "ws" && c.Peer.Scheme != "wss" {
		return fmt.Errorf("peer.scheme must be ws or wss, got %q", c.Peer.Scheme)
	}

	if err := c.Supervisor.validate(); err != nil {
		return err
	}
	if err := c.Backoff.validate(); err != nil {
		return err
	}

	if c.Cache.FlushThreshold < 1 {
		return errors.New("cache.flush_threshold must be >= 1")
	}

	if c.Storage.BatchSize < 1 {
		return errors.New("storage.batch_size must be >= 1")
	}
	if c.Storage.UsesDatabase() {
		if err := c.Storage.Database.validate("storage.database"); err != nil {
			return err
		}
	}

	if _, err := bars.ParseBarSize(c.Sync.BarSize); err != nil {
		return fmt.Errorf("sync.bar_size: %w", err)
	}
	if c.Sync.Concurrency < 1 {
		return errors.New("sync.concurrency must be >= 1")
	}
	if len(c.Sync.Instruments) > 0 && c.Storage.Target == "" {
		return errors.New("storage.target is required when sync.instruments is set")
	}

	if _, ok := ParseLevel(c.Logging.Level); !ok {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 0 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (s *SupervisorConfig) validate() error {
	if s.WorkerPoolSize != DefaultWorkerPoolSize {
		return fmt.Errorf("supervisor.worker_pool_size must be %d, got %d", DefaultWorkerPoolSize, s.WorkerPoolSize)
	}
	if s.CheckInterval <= 0 {
		return errors.New("supervisor.check_interval must be > 0")
	}
	if s.TickInterval <= 0 || s.TickInterval > s.CheckInterval {
		return fmt.Errorf("supervisor.tick_interval must be in (0, %v], got %v", s.CheckInterval, s.TickInterval)
	}
	if s.PollInterval <= 0 {
		return errors.New("supervisor.poll_interval must be > 0")
	}
	if s.MaxConnectionAttempts < 1 {
		return errors.New("supervisor.max_connection_attempts must be >= 1")
	}
	if s.MaxDisconnectionAttempts < 1 {
		return errors.New("supervisor.max_disconnection_attempts must be >= 1")
	}
	if s.MaxRestarts < 0 {
		return errors.New("supervisor.max_restarts must be >= 0")
	}
	return nil
}

func (b *BackoffConfig) validate() error {
	if b.Min <= 0 || b.Max < b.Min {
		return fmt.Errorf("backoff.min (%v) must be > 0 and <= backoff.max (%v)", b.Min, b.Max)
	}
	if b.Factor < 1 {
		return fmt.Errorf("backoff.factor must be >= 1, got %v", b.Factor)
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		return fmt.Errorf("backoff.jitter must be between 0 and 1, got %v", b.Jitter)
	}
	if b.MaxAttempts < 0 {
		return errors.New("backoff.max_attempts must be >= 0")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
