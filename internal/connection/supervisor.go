package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/market-scout/internal/model"
)

// Supervisor owns the peer session. It connects through the driver on a
// three-worker pool, keeps a watchdog on the session and serializes start
// and stop transitions.
type Supervisor struct {
	cfg     Config
	driver  SessionDriver
	handler Handler
	logger  *slog.Logger
	dog     *Watchdog

	// Parent of every pool; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	// Lifecycle (guarded by lifeMu)
	lifeMu     sync.Mutex
	closed     bool
	pool       *Pool
	pools      []*Pool
	connectFut *Future
	readFut    *Future
	dogFut     *Future
	failures   int

	sessMu  sync.RWMutex
	session Session

	connectAttempts atomic.Int64
	epoch           atomic.Int64 // Sessions brought up so far
}

// NewSupervisor creates a supervisor for driver. Peer callbacks are delivered
// to handler on the read-loop worker.
func NewSupervisor(cfg Config, driver SessionDriver, handler Handler, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:     cfg,
		driver:  driver,
		handler: handler,
		logger:  logger.With("component", "supervisor"),
		ctx:     ctx,
		cancel:  cancel,
		session: Session{
			Host:     cfg.Host,
			Port:     cfg.Port,
			ClientID: cfg.ClientID,
			State:    StateDisconnected,
		},
	}
	s.dog = NewWatchdog(WatchdogConfig{
		CheckInterval: cfg.CheckInterval,
		TickInterval:  cfg.TickInterval,
		MaxRestarts:   cfg.MaxRestarts,
	}, driver.IsConnected, s.restartFromDog, logger)

	return s
}

// StartServices connects the session and starts the read loop and watchdog
// workers. It polls the driver every PollInterval and fails with
// ErrConnectionEstablishmentFailed once MaxConnectionAttempts polls have
// passed without a healthy session. ctx bounds only the wait.
func (s *Supervisor) StartServices(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	return s.startLocked(ctx)
}

func (s *Supervisor) startLocked(ctx context.Context) error {
	if s.closed {
		return ErrSupervisorClosed
	}
	if s.pool != nil && s.driver.IsConnected() {
		return nil
	}

	s.setState(StateConnecting)
	s.logger.Info("starting services",
		"host", s.cfg.Host,
		"port", s.cfg.Port,
		"client_id", s.cfg.ClientID,
	)

	s.pruneExited()
	pool := NewPool(s.ctx, s.cfg.WorkerPoolSize, s.logger)
	s.pool = pool
	s.pools = append(s.pools, pool)

	gen := s.dog.StartDog()

	fut, err := pool.Submit("connect", func(ctx context.Context) error {
		return WithBackoff(ctx, s.cfg.Backoff, func(ctx context.Context) error {
			return s.driver.Connect(ctx, s.cfg.Host, s.cfg.Port, s.cfg.ClientID)
		})
	})
	if err != nil {
		s.abortStart()
		return fmt.Errorf("submit connect: %w", err)
	}
	s.connectFut = fut

	if err := s.awaitConnected(ctx); err != nil {
		s.abortStart()
		return err
	}

	s.readFut, err = pool.Submit("read_loop", func(ctx context.Context) error {
		return s.driver.Run(ctx, s.handler)
	})
	if err != nil {
		s.abortStart()
		return fmt.Errorf("submit read loop: %w", err)
	}

	s.dogFut, err = pool.Submit("watchdog", func(ctx context.Context) error {
		return s.dog.Monitor(ctx, gen)
	})
	if err != nil {
		s.abortStart()
		return fmt.Errorf("submit watchdog: %w", err)
	}

	s.epoch.Add(1)
	s.setState(StateConnected)
	s.logger.Info("services started", "epoch", s.epoch.Load())
	return nil
}

// awaitConnected polls the driver until it reports a healthy session.
func (s *Supervisor) awaitConnected(ctx context.Context) error {
	limit := s.cfg.MaxConnectionAttempts
	attempts := 0
	s.connectAttempts.Store(0)

	for {
		if s.driver.IsConnected() {
			break
		}
		if attempts >= limit {
			return fmt.Errorf("%w: not connected after %d attempts", ErrConnectionEstablishmentFailed, limit)
		}
		if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
		attempts++
		s.connectAttempts.Store(int64(attempts))
		s.logger.Debug("waiting for connection", "attempt", attempts, "max", limit)
	}

	s.connectAttempts.Store(0)
	return nil
}

// abortStart releases the resources of a failed start.
func (s *Supervisor) abortStart() {
	s.cancelFutures()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	s.dog.StopDog()
	s.setState(StateDisconnected)
}

// StopServices disconnects the session, cancels the workers and stops the
// watchdog. Cleanup happens even when the disconnect could not be confirmed,
// in which case ErrDisconnectionFailed is returned.
func (s *Supervisor) StopServices(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	return s.stopLocked(ctx)
}

func (s *Supervisor) stopLocked(ctx context.Context) error {
	s.logger.Info("stopping services")

	var stopErr error
	if s.driver.IsConnected() {
		if err := s.driver.Disconnect(); err != nil {
			s.logger.Warn("disconnect failed", "error", err)
		}
		stopErr = s.awaitDisconnected(ctx)
	}

	s.cancelFutures()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	if s.dog.Running() {
		s.dog.StopDog()
	}
	s.setState(StateDisconnected)

	if stopErr != nil {
		return stopErr
	}
	s.logger.Info("services stopped")
	return nil
}

func (s *Supervisor) awaitDisconnected(ctx context.Context) error {
	limit := s.cfg.MaxDisconnectionAttempts
	attempts := 0

	for s.driver.IsConnected() {
		if attempts >= limit {
			return fmt.Errorf("%w: still connected after %d attempts", ErrDisconnectionFailed, limit)
		}
		if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
		attempts++
	}
	return nil
}

// pruneExited forgets retired pools whose workers have all returned.
func (s *Supervisor) pruneExited() {
	live := s.pools[:0]
	for _, p := range s.pools {
		if !p.Exited() {
			live = append(live, p)
		}
	}
	s.pools = live
}

func (s *Supervisor) cancelFutures() {
	for _, f := range []*Future{s.dogFut, s.connectFut, s.readFut} {
		if f != nil {
			f.Cancel()
		}
	}
	s.dogFut, s.connectFut, s.readFut = nil, nil, nil
}

// Restart stops and starts the session. It returns ErrTransitionInProgress
// if another start or stop is running, and ErrRestartLimit once MaxRestarts
// consecutive restarts have failed.
func (s *Supervisor) Restart(ctx context.Context) error {
	if !s.lifeMu.TryLock() {
		return ErrTransitionInProgress
	}
	defer s.lifeMu.Unlock()

	if s.cfg.MaxRestarts > 0 && s.failures >= s.cfg.MaxRestarts {
		return fmt.Errorf("%w: %d consecutive failures", ErrRestartLimit, s.failures)
	}

	s.setState(StateRestarting)
	if err := s.stopLocked(ctx); err != nil {
		s.logger.Warn("restart: stop failed", "error", err)
	}

	if err := s.startLocked(ctx); err != nil {
		s.failures++
		s.setFailures(s.failures)
		return fmt.Errorf("restart: %w", err)
	}

	s.failures = 0
	s.setFailures(0)
	s.notifyRestarted()
	return nil
}

// restartFromDog stops and starts the session on behalf of the watchdog
// monitor with generation gen, as one transition. It leaves the session alone
// once that monitor has been stopped or superseded, so an explicit
// StopServices is never undone. A failed start re-arms the dog and returns
// the new generation.
func (s *Supervisor) restartFromDog(ctx context.Context, gen int64) (int64, error) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.closed {
		return gen, ErrSupervisorClosed
	}
	if !s.dog.active(gen) {
		return gen, ErrWatchdogSuperseded
	}

	s.setState(StateRestarting)
	if err := s.stopLocked(ctx); err != nil {
		s.logger.Warn("watchdog restart: stop failed", "error", err)
	}

	if err := s.startLocked(ctx); err != nil {
		return s.dog.StartDog(), fmt.Errorf("watchdog restart: %w", err)
	}
	s.notifyRestarted()
	return gen, nil
}

func (s *Supervisor) notifyRestarted() {
	if o, ok := s.handler.(SessionObserver); ok {
		o.OnSessionRestarted(s.epoch.Load())
	}
}

// Shutdown stops the session for good and waits for the workers to exit.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.lifeMu.Lock()
	s.closed = true
	stopErr := s.stopLocked(ctx)
	pools := s.pools
	s.pools = nil
	s.lifeMu.Unlock()

	s.cancel()
	for _, p := range pools {
		if err := p.Wait(ctx); err != nil {
			s.logger.Warn("shutdown timeout, workers still running")
			break
		}
	}
	return stopErr
}

// RequestHistoricalData forwards a query to the driver.
func (s *Supervisor) RequestHistoricalData(ctx context.Context, req model.Request) error {
	if !s.driver.IsConnected() {
		return ErrNotConnected
	}
	if err := s.driver.RequestHistoricalData(ctx, req); err != nil {
		return fmt.Errorf("request historical data %d: %w", req.ID, err)
	}
	return nil
}

// IsConnected reports whether the driver session is healthy.
func (s *Supervisor) IsConnected() bool {
	return s.driver.IsConnected()
}

// ConnectAttempts returns the number of polls made by the connect wait in
// progress. It is reset to zero once the session is healthy.
func (s *Supervisor) ConnectAttempts() int {
	return int(s.connectAttempts.Load())
}

// Epoch returns the number of sessions brought up so far. It identifies the
// current session once connected.
func (s *Supervisor) Epoch() int64 {
	return s.epoch.Load()
}

// Watchdog returns the supervisor's watchdog.
func (s *Supervisor) Watchdog() *Watchdog {
	return s.dog
}

// Session returns a snapshot of the session.
func (s *Supervisor) Session() Session {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	return s.session
}

func (s *Supervisor) setState(state SessionState) {
	s.sessMu.Lock()
	s.session.State = state
	s.sessMu.Unlock()
}

func (s *Supervisor) setFailures(n int) {
	s.sessMu.Lock()
	s.session.ConsecutiveFailures = n
	s.sessMu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
