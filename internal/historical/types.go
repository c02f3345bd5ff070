package historical

import (
	"errors"
	"fmt"
	"os"

	"github.com/rickgao/market-scout/internal/bars"
	"github.com/rickgao/market-scout/internal/config"
	"github.com/rickgao/market-scout/internal/connection"
	"github.com/rickgao/market-scout/internal/writer"
)

// Errors
var (
	ErrNotFinalized     = errors.New("request not finalized")
	ErrServiceStopped   = errors.New("service stopped")
	ErrSessionRestarted = errors.New("session restarted before the request completed")
)

// Defaults applied to requests that leave the field empty.
const (
	DefaultBarSize  = "1 min"
	DefaultDuration = "1 D"
)

// Config configures a Service.
type Config struct {
	Connection connection.Config
	Cache      bars.Config
	Writer     writer.WriterConfig

	DefaultBarSize  string
	DefaultDuration string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Connection:      connection.DefaultConfig(),
		Cache:           bars.DefaultConfig(),
		Writer:          writer.DefaultWriterConfig(),
		DefaultBarSize:  DefaultBarSize,
		DefaultDuration: DefaultDuration,
	}
}

// ConfigFrom maps the scout configuration onto a service config.
func ConfigFrom(cfg *config.ScoutConfig) Config {
	return Config{
		Connection: connection.Config{
			Host:                     cfg.Peer.Host,
			Port:                     cfg.Peer.Port,
			ClientID:                 cfg.Peer.ClientID,
			CheckInterval:            cfg.Supervisor.CheckInterval,
			TickInterval:             cfg.Supervisor.TickInterval,
			PollInterval:             cfg.Supervisor.PollInterval,
			MaxConnectionAttempts:    cfg.Supervisor.MaxConnectionAttempts,
			MaxDisconnectionAttempts: cfg.Supervisor.MaxDisconnectionAttempts,
			MaxRestarts:              cfg.Supervisor.MaxRestarts,
			WorkerPoolSize:           cfg.Supervisor.WorkerPoolSize,
			Backoff: connection.Backoff{
				Min:         cfg.Backoff.Min,
				Max:         cfg.Backoff.Max,
				Factor:      cfg.Backoff.Factor,
				Jitter:      cfg.Backoff.Jitter,
				MaxAttempts: cfg.Backoff.MaxAttempts,
				MaxElapsed:  cfg.Backoff.MaxTotal,
			},
		},
		Cache:           bars.Config{FlushThreshold: cfg.Cache.FlushThreshold},
		Writer:          writer.WriterConfigFrom(cfg.Storage),
		DefaultBarSize:  cfg.Sync.BarSize,
		DefaultDuration: cfg.Sync.Duration,
	}
}

// ServiceStats provides statistics about the service.
type ServiceStats struct {
	Requests     int64 // Requests sent to the peer
	Completed    int64 // Requests finalized by end-of-stream
	Failed       int64 // Requests failed by a peer error or shutdown
	BarsReceived int64
	BarsDropped  int64 // Bars rejected by verification or for unknown ids
	PeerErrors   int64
	Restarts     int64 // Restarts triggered by connection-lost errors
	Cache        bars.CacheStats
}

// FatalFunc terminates the process after a fatal peer error.
type FatalFunc func(msg string)

// DefaultFatal reports msg on stderr and exits with status 1.
func DefaultFatal(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	fmt.Fprintln(os.Stderr, "scout exiting.")
	os.Exit(1)
}
