package connection

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/market-scout/internal/model"
)

// Errors
var (
	ErrNotConnected                  = errors.New("not connected")
	ErrConnectionEstablishmentFailed = errors.New("connection establishment failed")
	ErrDisconnectionFailed           = errors.New("disconnection failed")
	ErrRestartLimit                  = errors.New("restart limit reached")
	ErrTransitionInProgress          = errors.New("session transition in progress")
	ErrSupervisorClosed              = errors.New("supervisor closed")
	ErrWatchdogSuperseded            = errors.New("watchdog stopped or superseded")
	ErrPoolClosed                    = errors.New("worker pool closed")
	ErrPoolFull                      = errors.New("worker pool queue full")
	ErrTaskCancelled                 = errors.New("task cancelled")
)

// SessionDriver is the peer's wire API.
type SessionDriver interface {
	// Connect opens the session. It returns once the handshake completes.
	Connect(ctx context.Context, host string, port int, clientID int) error

	// Disconnect closes the session. Run returns shortly after.
	Disconnect() error

	// IsConnected reports whether the session is healthy.
	IsConnected() bool

	// Run reads peer messages and dispatches them to h until the session
	// closes or ctx is cancelled.
	Run(ctx context.Context, h Handler) error

	// RequestHistoricalData sends a historical bar query.
	RequestHistoricalData(ctx context.Context, req model.Request) error
}

// Handler receives peer callbacks. All methods are invoked on the read-loop
// worker.
type Handler interface {
	OnBar(reqID int64, bar model.RawBar)
	OnBarStreamEnd(reqID int64, start, end string)
	OnError(reqID int64, code int, msg string)
}

// SessionObserver is implemented by handlers that track requests across
// sessions. OnSessionRestarted is called after a restart has brought up
// session epoch; queries sent on earlier sessions will not be answered.
type SessionObserver interface {
	OnSessionRestarted(epoch int64)
}

// SessionState is the lifecycle state of the session.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateRestarting
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRestarting:
		return "restarting"
	}
	return "unknown"
}

// Session describes the supervised peer session.
type Session struct {
	Host                string
	Port                int
	ClientID            int
	State               SessionState
	ConsecutiveFailures int
}

// Config configures the Supervisor.
type Config struct {
	Host     string
	Port     int
	ClientID int

	CheckInterval            time.Duration // Watchdog health check period
	TickInterval             time.Duration // Watchdog sleep granularity
	PollInterval             time.Duration // Sleep between connect/disconnect checks
	MaxConnectionAttempts    int
	MaxDisconnectionAttempts int
	MaxRestarts              int // Consecutive failed restarts before giving up (0 = unbounded)
	WorkerPoolSize           int

	Backoff Backoff // Applied to each driver Connect call
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:                     "127.0.0.1",
		Port:                     7497,
		ClientID:                 1,
		CheckInterval:            10 * time.Second,
		TickInterval:             1 * time.Second,
		PollInterval:             1 * time.Second,
		MaxConnectionAttempts:    10,
		MaxDisconnectionAttempts: 10,
		MaxRestarts:              5,
		WorkerPoolSize:           3,
		Backoff:                  DefaultBackoff(),
	}
}
