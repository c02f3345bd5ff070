package historical

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/market-scout/internal/connection"
	"github.com/rickgao/market-scout/internal/model"
)

// peerError is an error frame pushed into the fake read loop.
type peerError struct {
	reqID int64
	code  int
	msg   string
}

// fakeDriver answers each request from its read loop using respond.
type fakeDriver struct {
	mu        sync.Mutex
	connected bool
	closed    chan struct{}
	reqs      chan model.Request
	errs      chan peerError
	respond   func(h connection.Handler, req model.Request)

	connects    atomic.Int64
	disconnects atomic.Int64
	runs        atomic.Int64
	runExits    atomic.Int64
}

func newFakeDriver(respond func(h connection.Handler, req model.Request)) *fakeDriver {
	return &fakeDriver{
		reqs:    make(chan model.Request, 16),
		errs:    make(chan peerError, 4),
		respond: respond,
	}
}

// sendError delivers an error frame on the read-loop worker.
func (d *fakeDriver) sendError(reqID int64, code int, msg string) {
	d.errs <- peerError{reqID: reqID, code: code, msg: msg}
}

func (d *fakeDriver) Connect(ctx context.Context, host string, port int, clientID int) error {
	d.connects.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	d.closed = make(chan struct{})
	return nil
}

func (d *fakeDriver) Disconnect() error {
	d.disconnects.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	if d.closed != nil {
		close(d.closed)
		d.closed = nil
	}
	return nil
}

func (d *fakeDriver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *fakeDriver) Run(ctx context.Context, h connection.Handler) error {
	d.runs.Add(1)
	defer d.runExits.Add(1)

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed == nil {
		return connection.ErrNotConnected
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			return nil
		case req := <-d.reqs:
			if d.respond != nil {
				d.respond(h, req)
			}
		case e := <-d.errs:
			h.OnError(e.reqID, e.code, e.msg)
		}
	}
}

func (d *fakeDriver) RequestHistoricalData(ctx context.Context, req model.Request) error {
	select {
	case d.reqs <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Connection = connection.Config{
		Host:                     "127.0.0.1",
		Port:                     4002,
		ClientID:                 7,
		CheckInterval:            time.Hour,
		TickInterval:             5 * time.Millisecond,
		PollInterval:             5 * time.Millisecond,
		MaxConnectionAttempts:    20,
		MaxDisconnectionAttempts: 20,
		MaxRestarts:              3,
		WorkerPoolSize:           3,
		Backoff: connection.Backoff{
			Min:         time.Millisecond,
			Max:         2 * time.Millisecond,
			MaxAttempts: 1,
		},
	}
	return cfg
}

// fatalRecorder captures messages passed to the fatal hook.
type fatalRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fatalRecorder) fatal(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fatalRecorder) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.msgs...)
}

func newStartedService(t *testing.T, d *fakeDriver, opts ...Option) *Service {
	t.Helper()
	svc := NewService(testConfig(), d, nil, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return svc
}

func ptr[T any](v T) *T { return &v }

func completeBar(ts time.Time, v float64) model.RawBar {
	return model.RawBar{Time: &ts, Open: ptr(v), High: ptr(v + 1), Low: ptr(v - 1), Close: ptr(v + 0.5), Volume: ptr(100.0)}
}

func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
