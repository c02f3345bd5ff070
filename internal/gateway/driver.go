package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/market-scout/internal/config"
	"github.com/rickgao/market-scout/internal/connection"
	"github.com/rickgao/market-scout/internal/model"
)

// Errors
var (
	ErrHandshakeFailed = errors.New("gateway handshake failed")
	ErrStaleConnection = errors.New("connection stale (no ping)")
)

// Config configures a Driver.
type Config struct {
	Scheme           string        // "ws" or "wss"
	Path             string        // Bridge endpoint path
	HandshakeTimeout time.Duration // Dial plus hello/welcome exchange
	PingInterval     time.Duration // Keepalive ping period
	PingTimeout      time.Duration // Max time without ping/pong before the session is stale
	WriteTimeout     time.Duration // Write deadline for sends
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Scheme:           "ws",
		Path:             "/v1/api/ws",
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// ConfigFrom maps the peer config section onto a driver config.
func ConfigFrom(cfg config.PeerConfig) Config {
	return Config{
		Scheme:           cfg.Scheme,
		Path:             cfg.Path,
		HandshakeTimeout: cfg.HandshakeTimeout,
		PingInterval:     cfg.PingInterval,
		PingTimeout:      cfg.PingTimeout,
		WriteTimeout:     cfg.WriteTimeout,
	}
}

// Driver is a websocket SessionDriver.
type Driver struct {
	cfg    Config
	logger *slog.Logger

	// Write serialization
	writeMu sync.Mutex

	// State
	mu            sync.RWMutex
	conn          *websocket.Conn
	done          chan struct{}
	connected     bool
	lastPingAt    time.Time
	serverVersion int
}

var _ connection.SessionDriver = (*Driver)(nil)

// NewDriver creates a disconnected driver.
func NewDriver(cfg Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "ws"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	return &Driver{
		cfg:    cfg,
		logger: logger.With("component", "gateway"),
	}
}

// URL returns the bridge endpoint for host and port.
func (d *Driver) URL(host string, port int) string {
	return d.cfg.Scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port)) + d.cfg.Path
}

// Connect dials the gateway and performs the hello/welcome handshake.
func (d *Driver) Connect(ctx context.Context, host string, port int, clientID int) error {
	if d.IsConnected() {
		return nil
	}
	// Release a connection left behind by a dropped session.
	d.Disconnect()

	// Build headers
	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	url := d.URL(host, port)
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	version, err := d.handshake(conn, clientID)
	if err != nil {
		conn.Close()
		return err
	}

	done := make(chan struct{})

	d.mu.Lock()
	d.conn = conn
	d.done = done
	d.connected = true
	d.lastPingAt = time.Now()
	d.serverVersion = version
	d.mu.Unlock()

	// Gateway sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		d.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Gateway responds to our ping
	conn.SetPongHandler(func(data string) error {
		d.touch()
		return nil
	})

	if d.cfg.PingInterval > 0 {
		go d.heartbeatLoop(conn, done)
	}

	d.logger.Info("gateway connected",
		"url", url,
		"client_id", clientID,
		"server_version", version,
	)

	return nil
}

func (d *Driver) handshake(conn *websocket.Conn, clientID int) (int, error) {
	conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout))
	if err := conn.WriteJSON(HelloFrame{Type: TypeHello, ClientID: clientID}); err != nil {
		return 0, fmt.Errorf("send hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(d.cfg.HandshakeTimeout))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return 0, fmt.Errorf("%w: read welcome: %v", ErrHandshakeFailed, err)
	}
	conn.SetReadDeadline(time.Time{})

	if env.Type != TypeWelcome {
		if env.Type == TypeError {
			return 0, fmt.Errorf("%w: peer error %d: %s", ErrHandshakeFailed, env.Code, env.Msg)
		}
		return 0, fmt.Errorf("%w: unexpected %q frame", ErrHandshakeFailed, env.Type)
	}
	return env.ServerVersion, nil
}

// Disconnect closes the session.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	conn := d.conn
	done := d.done
	if conn == nil {
		d.mu.Unlock()
		return nil
	}
	d.conn = nil
	d.done = nil
	d.connected = false
	d.mu.Unlock()

	// Signal goroutines to stop
	close(done)

	d.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	d.writeMu.Unlock()

	d.logger.Info("gateway disconnected")
	return conn.Close()
}

// IsConnected reports whether the session is up and has seen a ping or pong
// within PingTimeout.
func (d *Driver) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return false
	}
	if d.cfg.PingTimeout > 0 && time.Since(d.lastPingAt) > d.cfg.PingTimeout {
		return false
	}
	return true
}

// ServerVersion returns the version announced in the welcome frame.
func (d *Driver) ServerVersion() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.serverVersion
}

// Run reads frames and dispatches them to h until the session closes or ctx
// is cancelled. A deliberate Disconnect or cancellation returns nil.
func (d *Driver) Run(ctx context.Context, h connection.Handler) error {
	d.mu.RLock()
	conn := d.conn
	done := d.done
	d.mu.RUnlock()

	if conn == nil {
		return connection.ErrNotConnected
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			d.markDown(conn)

			// Ignore errors after Disconnect or cancellation
			select {
			case <-done:
				return nil
			default:
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read gateway: %w", err)
		}

		d.dispatch(data, h)
	}
}

func (d *Driver) dispatch(data []byte, h connection.Handler) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		d.logger.Warn("failed to parse frame", "error", err, "size", len(data))
		return
	}

	switch env.Type {
	case TypeBar:
		if env.Bar == nil {
			h.OnBar(env.ReqID, model.RawBar{})
			return
		}
		h.OnBar(env.ReqID, env.Bar.RawBar())
	case TypeBarEnd:
		h.OnBarStreamEnd(env.ReqID, env.Start, env.End)
	case TypeError:
		h.OnError(env.ReqID, env.Code, env.Msg)
	default:
		d.logger.Debug("ignoring frame", "type", env.Type)
	}
}

// RequestHistoricalData sends a historical data query.
func (d *Driver) RequestHistoricalData(ctx context.Context, req model.Request) error {
	data, err := json.Marshal(newHistoricalDataFrame(req))
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return d.send(data)
}

func (d *Driver) send(data []byte) error {
	d.mu.RLock()
	conn := d.conn
	connected := d.connected
	d.mu.RUnlock()

	if !connected || conn == nil {
		return connection.ErrNotConnected
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (d *Driver) touch() {
	d.mu.Lock()
	d.lastPingAt = time.Now()
	d.mu.Unlock()
}

// markDown flags the session down if conn is still the live connection.
func (d *Driver) markDown(conn *websocket.Conn) {
	d.mu.Lock()
	if d.conn == conn {
		d.connected = false
	}
	d.mu.Unlock()
}

// heartbeatLoop pings the gateway and drops stale connections.
func (d *Driver) heartbeatLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(d.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(d.cfg.WriteTimeout))
			d.writeMu.Unlock()
			if err != nil {
				d.logger.Debug("failed to send ping", "error", err)
			}

			d.mu.RLock()
			lastPing := d.lastPingAt
			d.mu.RUnlock()

			if d.cfg.PingTimeout > 0 && time.Since(lastPing) > d.cfg.PingTimeout {
				d.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", d.cfg.PingTimeout,
					"error", ErrStaleConnection,
				)
				d.markDown(conn)
				conn.Close()
				return
			}
		}
	}
}
