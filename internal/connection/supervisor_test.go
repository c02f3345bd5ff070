package connection

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/market-scout/internal/model"
)

func TestSupervisor_StartServicesAfterThreeChecks(t *testing.T) {
	drv := &fakeDriver{script: []bool{false, false, true}}
	s := NewSupervisor(testConfig(), drv, nopHandler{}, nil)
	defer shutdown(t, s)

	if err := s.StartServices(context.Background()); err != nil {
		t.Fatalf("StartServices() error = %v", err)
	}

	if got := drv.probes.Load(); got != 3 {
		t.Errorf("IsConnected calls = %d, want 3", got)
	}
	if got := s.ConnectAttempts(); got != 0 {
		t.Errorf("ConnectAttempts() = %d, want 0 after success", got)
	}
	if got := s.Session().State; got != StateConnected {
		t.Errorf("State = %v, want connected", got)
	}
	if !s.Watchdog().Running() {
		t.Error("watchdog not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.connectFut.Wait(ctx); err != nil {
		t.Fatalf("connect future error = %v", err)
	}
	if got := drv.connects.Load(); got != 1 {
		t.Errorf("Connect calls = %d, want 1", got)
	}
	if !eventually(t, time.Second, func() bool { return drv.runs.Load() == 1 }) {
		t.Errorf("Run calls = %d, want 1", drv.runs.Load())
	}
}

func TestSupervisor_StartServicesExhaustsAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnectionAttempts = 3
	cfg.PollInterval = 20 * time.Millisecond

	drv := &fakeDriver{connectErr: errors.New("connection refused")}
	s := NewSupervisor(cfg, drv, nopHandler{}, nil)
	defer shutdown(t, s)

	err := s.StartServices(context.Background())
	if !errors.Is(err, ErrConnectionEstablishmentFailed) {
		t.Fatalf("StartServices() error = %v, want ErrConnectionEstablishmentFailed", err)
	}
	if !strings.Contains(err.Error(), "3") {
		t.Errorf("error %q does not name the attempt bound", err)
	}
	if got := drv.probes.Load(); got != 4 {
		t.Errorf("IsConnected calls = %d, want 4", got)
	}
	if !eventually(t, time.Second, func() bool { return drv.connects.Load() == 1 }) {
		t.Errorf("Connect calls = %d, want 1", drv.connects.Load())
	}
	if s.Watchdog().Running() {
		t.Error("watchdog running after failed start")
	}
	if got := s.Session().State; got != StateDisconnected {
		t.Errorf("State = %v, want disconnected", got)
	}
	if got := drv.runs.Load(); got != 0 {
		t.Errorf("Run calls = %d, want 0", got)
	}
}

func TestSupervisor_StartServicesContextCancelled(t *testing.T) {
	drv := &fakeDriver{connectErr: errors.New("connection refused")}
	s := NewSupervisor(testConfig(), drv, nopHandler{}, nil)
	defer shutdown(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.StartServices(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("StartServices() error = %v, want context.Canceled", err)
	}
}

func TestSupervisor_StopServices(t *testing.T) {
	drv := &fakeDriver{}
	s := NewSupervisor(testConfig(), drv, nopHandler{}, nil)
	defer shutdown(t, s)

	if err := s.StartServices(context.Background()); err != nil {
		t.Fatalf("StartServices() error = %v", err)
	}
	if err := s.StopServices(context.Background()); err != nil {
		t.Fatalf("StopServices() error = %v", err)
	}

	if got := drv.disconnects.Load(); got != 1 {
		t.Errorf("Disconnect calls = %d, want 1", got)
	}
	if s.IsConnected() {
		t.Error("IsConnected() = true after StopServices")
	}
	if s.Watchdog().Running() {
		t.Error("watchdog running after StopServices")
	}
	if got := s.Session().State; got != StateDisconnected {
		t.Errorf("State = %v, want disconnected", got)
	}
}

func TestSupervisor_StopServicesDisconnectFails(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDisconnectionAttempts = 2

	drv := &fakeDriver{sticky: true}
	s := NewSupervisor(cfg, drv, nopHandler{}, nil)

	if err := s.StartServices(context.Background()); err != nil {
		t.Fatalf("StartServices() error = %v", err)
	}

	err := s.StopServices(context.Background())
	if !errors.Is(err, ErrDisconnectionFailed) {
		t.Errorf("StopServices() error = %v, want ErrDisconnectionFailed", err)
	}
	if s.Watchdog().Running() {
		t.Error("watchdog running after failed StopServices")
	}

	drv.sticky = false
	drv.drop()
	shutdown(t, s)
}

func TestSupervisor_RestartRefusedDuringTransition(t *testing.T) {
	s := NewSupervisor(testConfig(), &fakeDriver{}, nopHandler{}, nil)

	s.lifeMu.Lock()
	err := s.Restart(context.Background())
	s.lifeMu.Unlock()

	if !errors.Is(err, ErrTransitionInProgress) {
		t.Errorf("Restart() error = %v, want ErrTransitionInProgress", err)
	}
	shutdown(t, s)
}

func TestSupervisor_RestartLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRestarts = 2
	cfg.MaxConnectionAttempts = 1

	drv := &fakeDriver{connectErr: errors.New("connection refused")}
	s := NewSupervisor(cfg, drv, nopHandler{}, nil)
	defer shutdown(t, s)

	for i := 0; i < 2; i++ {
		if err := s.Restart(context.Background()); !errors.Is(err, ErrConnectionEstablishmentFailed) {
			t.Fatalf("Restart() #%d error = %v, want ErrConnectionEstablishmentFailed", i+1, err)
		}
	}
	if got := s.Session().ConsecutiveFailures; got != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", got)
	}

	if err := s.Restart(context.Background()); !errors.Is(err, ErrRestartLimit) {
		t.Errorf("Restart() error = %v, want ErrRestartLimit", err)
	}
}

func TestSupervisor_RestartResetsFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnectionAttempts = 1

	drv := &fakeDriver{connectErr: errors.New("connection refused")}
	s := NewSupervisor(cfg, drv, nopHandler{}, nil)
	defer shutdown(t, s)

	if err := s.Restart(context.Background()); err == nil {
		t.Fatal("Restart() error = nil, want failure")
	}

	drv.setConnectErr(nil)
	s.cfg.MaxConnectionAttempts = 10

	if err := s.Restart(context.Background()); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if got := s.Session().ConsecutiveFailures; got != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", got)
	}
	if !s.IsConnected() {
		t.Error("IsConnected() = false after restart")
	}
}

func TestSupervisor_WatchdogRecoversDroppedSession(t *testing.T) {
	cfg := testConfig()
	cfg.CheckInterval = 20 * time.Millisecond
	cfg.TickInterval = 2 * time.Millisecond

	drv := &fakeDriver{}
	s := NewSupervisor(cfg, drv, nopHandler{}, nil)
	defer shutdown(t, s)

	if err := s.StartServices(context.Background()); err != nil {
		t.Fatalf("StartServices() error = %v", err)
	}

	drv.drop()

	recovered := eventually(t, 2*time.Second, func() bool {
		return drv.connects.Load() == 2 && s.Session().State == StateConnected
	})
	if !recovered {
		t.Fatalf("session not recovered: connects = %d, state = %v", drv.connects.Load(), s.Session().State)
	}
	if got := s.Watchdog().Stats().Restarts; got < 1 {
		t.Errorf("watchdog restarts = %d, want >= 1", got)
	}
}

func TestSupervisor_StopServicesNotUndoneByWatchdog(t *testing.T) {
	cfg := testConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	cfg.TickInterval = time.Millisecond

	drv := &fakeDriver{linger: 60 * time.Millisecond}
	s := NewSupervisor(cfg, drv, nopHandler{}, nil)
	defer shutdown(t, s)

	if err := s.StartServices(context.Background()); err != nil {
		t.Fatalf("StartServices() error = %v", err)
	}
	if err := s.StopServices(context.Background()); err != nil {
		t.Fatalf("StopServices() error = %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	if got := drv.connects.Load(); got != 1 {
		t.Errorf("Connect calls = %d, want 1", got)
	}
	if s.IsConnected() {
		t.Error("IsConnected() = true after StopServices")
	}
	if s.Watchdog().Running() {
		t.Error("watchdog running after StopServices")
	}
	if got := s.Session().State; got != StateDisconnected {
		t.Errorf("State = %v, want disconnected", got)
	}
	if got := s.Watchdog().Stats().Restarts; got != 0 {
		t.Errorf("watchdog restarts = %d, want 0", got)
	}
}

func TestSupervisor_RestartFromDog(t *testing.T) {
	tests := []struct {
		name       string
		stale      bool
		connectErr error
		wantErr    error
		wantRearm  bool
		wantConns  int64
	}{
		{name: "stale generation", stale: true, wantErr: ErrWatchdogSuperseded, wantConns: 1},
		{name: "restarted", wantConns: 2},
		{name: "failed start rearms", connectErr: errors.New("connection refused"), wantErr: ErrConnectionEstablishmentFailed, wantRearm: true, wantConns: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxConnectionAttempts = 2

			drv := &fakeDriver{}
			s := NewSupervisor(cfg, drv, nopHandler{}, nil)
			defer shutdown(t, s)

			if err := s.StartServices(context.Background()); err != nil {
				t.Fatalf("StartServices() error = %v", err)
			}
			gen := s.Watchdog().Generation()
			if tt.stale {
				s.Watchdog().StartDog()
			}
			drv.setConnectErr(tt.connectErr)

			next, err := s.restartFromDog(context.Background(), gen)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("restartFromDog() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("restartFromDog() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantRearm {
				if next == gen || !s.Watchdog().active(next) {
					t.Errorf("next generation = %d, want a running generation after %d", next, gen)
				}
			} else if next != gen {
				t.Errorf("next generation = %d, want %d", next, gen)
			}
			if !eventually(t, time.Second, func() bool { return drv.connects.Load() == tt.wantConns }) {
				t.Errorf("Connect calls = %d, want %d", drv.connects.Load(), tt.wantConns)
			}
		})
	}
}

func TestSupervisor_ClosedAfterShutdown(t *testing.T) {
	s := NewSupervisor(testConfig(), &fakeDriver{}, nopHandler{}, nil)
	shutdown(t, s)

	if err := s.StartServices(context.Background()); !errors.Is(err, ErrSupervisorClosed) {
		t.Errorf("StartServices() error = %v, want ErrSupervisorClosed", err)
	}
}

func TestSupervisor_RequestHistoricalData(t *testing.T) {
	drv := &fakeDriver{}
	s := NewSupervisor(testConfig(), drv, nopHandler{}, nil)
	defer shutdown(t, s)

	req := model.Request{ID: 5, Instrument: "AAPL", BarSize: "1 hour", Duration: "2 D"}
	if err := s.RequestHistoricalData(context.Background(), req); !errors.Is(err, ErrNotConnected) {
		t.Errorf("RequestHistoricalData() error = %v, want ErrNotConnected", err)
	}

	if err := s.StartServices(context.Background()); err != nil {
		t.Fatalf("StartServices() error = %v", err)
	}
	if err := s.RequestHistoricalData(context.Background(), req); err != nil {
		t.Fatalf("RequestHistoricalData() error = %v", err)
	}

	drv.mu.Lock()
	defer drv.mu.Unlock()
	if len(drv.requests) != 1 || drv.requests[0].ID != 5 {
		t.Errorf("requests = %+v, want one with id 5", drv.requests)
	}
}

func TestSessionState_String(t *testing.T) {
	tests := map[SessionState]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateRestarting:   "restarting",
		SessionState(99):  "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}
