package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/market-scout/internal/model"
)

// fakeDriver is an in-memory SessionDriver.
type fakeDriver struct {
	mu        sync.Mutex
	connected bool
	script    []bool        // IsConnected results returned before the live state
	sticky    bool          // Disconnect leaves the session up
	linger    time.Duration // Disconnect blocks this long after dropping the session
	runDone   chan struct{}
	requests  []model.Request

	connectErr error

	probes      atomic.Int64
	connects    atomic.Int64
	disconnects atomic.Int64
	runs        atomic.Int64
}

func (d *fakeDriver) Connect(ctx context.Context, host string, port int, clientID int) error {
	d.connects.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connectErr != nil {
		return d.connectErr
	}
	d.connected = true
	d.runDone = make(chan struct{})
	return nil
}

func (d *fakeDriver) setConnectErr(err error) {
	d.mu.Lock()
	d.connectErr = err
	d.mu.Unlock()
}

func (d *fakeDriver) Disconnect() error {
	d.disconnects.Add(1)
	if d.sticky {
		return errors.New("socket busy")
	}
	d.drop()
	if d.linger > 0 {
		time.Sleep(d.linger)
	}
	return nil
}

// drop simulates the peer going away.
func (d *fakeDriver) drop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	if d.runDone != nil {
		close(d.runDone)
		d.runDone = nil
	}
}

func (d *fakeDriver) IsConnected() bool {
	n := d.probes.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(n) <= len(d.script) {
		return d.script[n-1]
	}
	return d.connected
}

func (d *fakeDriver) Run(ctx context.Context, h Handler) error {
	d.runs.Add(1)
	d.mu.Lock()
	done := d.runDone
	d.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-ctx.Done():
	case <-done:
	}
	return nil
}

func (d *fakeDriver) RequestHistoricalData(ctx context.Context, req model.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	return nil
}

type nopHandler struct{}

func (nopHandler) OnBar(int64, model.RawBar)            {}
func (nopHandler) OnBarStreamEnd(int64, string, string) {}
func (nopHandler) OnError(int64, int, string)           {}

func testConfig() Config {
	return Config{
		Host:                     "127.0.0.1",
		Port:                     4002,
		ClientID:                 7,
		CheckInterval:            time.Hour,
		TickInterval:             5 * time.Millisecond,
		PollInterval:             5 * time.Millisecond,
		MaxConnectionAttempts:    10,
		MaxDisconnectionAttempts: 10,
		MaxRestarts:              3,
		WorkerPoolSize:           3,
		Backoff: Backoff{
			Min:         time.Millisecond,
			Max:         2 * time.Millisecond,
			MaxAttempts: 1,
		},
	}
}

// eventually polls cond until it holds or timeout passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func shutdown(t *testing.T, s *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
