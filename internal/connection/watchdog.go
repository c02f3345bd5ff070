package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// WatchdogConfig configures a Watchdog.
type WatchdogConfig struct {
	CheckInterval time.Duration
	TickInterval  time.Duration
	MaxRestarts   int // Consecutive failed restarts before the dog stops (0 = unbounded)
}

// WatchdogStats provides statistics about the watchdog.
type WatchdogStats struct {
	Checks   int64
	Restarts int64
	Failures int64 // Current run of failed restarts
}

// RestartFunc restarts the session for the monitor running with generation
// gen. It returns ErrWatchdogSuperseded without touching the session when
// that generation is no longer active. The returned generation is the one
// the monitor keeps watching: unchanged after a successful restart (the new
// session runs its own monitor), freshly armed after a failed one.
type RestartFunc func(ctx context.Context, gen int64) (int64, error)

// Watchdog periodically probes the session and restarts it when unhealthy.
type Watchdog struct {
	cfg     WatchdogConfig
	probe   func() bool
	restart RestartFunc
	logger  *slog.Logger

	mu         sync.Mutex
	running    bool
	generation int64

	checks   atomic.Int64
	restarts atomic.Int64
	failures atomic.Int64
}

// NewWatchdog creates a stopped watchdog.
func NewWatchdog(cfg WatchdogConfig, probe func() bool, restart RestartFunc, logger *slog.Logger) *Watchdog {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.TickInterval <= 0 || cfg.TickInterval > cfg.CheckInterval {
		cfg.TickInterval = min(time.Second, cfg.CheckInterval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		cfg:     cfg,
		probe:   probe,
		restart: restart,
		logger:  logger.With("component", "watchdog"),
	}
}

// StartDog marks the watchdog running and returns the generation a monitor
// loop must be started with. Older monitor loops exit.
func (w *Watchdog) StartDog() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	w.running = true
	return w.generation
}

// StopDog marks the watchdog stopped. Monitor loops exit within one tick.
func (w *Watchdog) StopDog() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// stopGen stops the watchdog only if gen is still the current generation.
func (w *Watchdog) stopGen(gen int64) {
	w.mu.Lock()
	if w.generation == gen {
		w.running = false
	}
	w.mu.Unlock()
}

// Running reports whether the watchdog is running.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Generation returns the current generation.
func (w *Watchdog) Generation() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

// Stats returns watchdog statistics.
func (w *Watchdog) Stats() WatchdogStats {
	return WatchdogStats{
		Checks:   w.checks.Load(),
		Restarts: w.restarts.Load(),
		Failures: w.failures.Load(),
	}
}

// Monitor checks the session every CheckInterval while the watchdog is
// running with generation gen. An unhealthy session is restarted. After a
// failed restart the loop follows the re-armed generation and keeps going,
// up to MaxRestarts consecutive failures.
//
// ctx is passed to the restart callback without its cancellation, so the
// loop survives its own worker being cancelled during a restart.
func (w *Watchdog) Monitor(ctx context.Context, gen int64) error {
	cbCtx := context.WithoutCancel(ctx)

	for {
		if !w.sleep(gen) {
			return nil
		}

		w.checks.Add(1)
		if w.probe() {
			w.failures.Store(0)
			continue
		}
		// A stop issued while probing also drops the session.
		if !w.active(gen) {
			return nil
		}

		w.logger.Warn("session unhealthy, restarting", "generation", gen)

		next, err := w.restart(cbCtx, gen)
		switch {
		case errors.Is(err, ErrWatchdogSuperseded):
			w.logger.Debug("restart skipped, watchdog no longer active", "generation", gen)
			return nil
		case errors.Is(err, ErrSupervisorClosed):
			return nil
		}

		w.restarts.Add(1)
		gen = next
		if err == nil {
			w.failures.Store(0)
			w.logger.Info("session restarted")
			// The restarted session runs a newer monitor; this one ends at
			// the next generation check.
			continue
		}

		failures := w.failures.Add(1)
		if w.cfg.MaxRestarts > 0 && failures >= int64(w.cfg.MaxRestarts) {
			w.stopGen(gen)
			w.logger.Error("giving up on session restarts",
				"failures", failures,
				"error", err,
			)
			return ErrRestartLimit
		}

		w.logger.Warn("restart failed", "failures", failures, "error", err)
	}
}

// sleep waits one check interval in ticks. It returns false as soon as the
// loop for gen should exit.
func (w *Watchdog) sleep(gen int64) bool {
	deadline := time.Now().Add(w.cfg.CheckInterval)
	for {
		if !w.active(gen) {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		time.Sleep(min(remaining, w.cfg.TickInterval))
	}
}

func (w *Watchdog) active(gen int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running && w.generation == gen
}
