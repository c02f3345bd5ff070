package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/scmhub/calendar"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/market-scout/internal/config"
	"github.com/rickgao/market-scout/internal/model"
	"github.com/rickgao/market-scout/internal/writer"
)

// Fetcher fetches one finalized series.
type Fetcher interface {
	Fetch(ctx context.Context, req model.Request) (model.Series, error)
}

// Config holds poller configuration.
type Config struct {
	Instruments []string
	BarSize     string
	Duration    string
	RegularOnly bool

	Interval    time.Duration // Sync interval (default: 24h)
	Concurrency int           // Max concurrent requests (default: 2)
	Timeout     time.Duration // Per-request timeout (default: 5m)
	Calendar    string        // Exchange MIC (default: xnys)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    24 * time.Hour,
		Concurrency: 2,
		Timeout:     5 * time.Minute,
		Calendar:    "xnys",
	}
}

// ConfigFrom maps the sync config section onto a poller config.
func ConfigFrom(cfg config.SyncConfig) Config {
	return Config{
		Instruments: cfg.Instruments,
		BarSize:     cfg.BarSize,
		Duration:    cfg.Duration,
		RegularOnly: cfg.RegularOnly,
		Interval:    cfg.Interval,
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.RequestTimeout,
		Calendar:    cfg.Calendar,
	}
}

// CycleStats summarizes one sync cycle.
type CycleStats struct {
	ID       uuid.UUID
	Skipped  bool // Exchange closed
	Fetched  int64
	Bars     int64
	Errors   int64
	Duration time.Duration
}

// Poller periodically syncs historical bars to storage.
type Poller struct {
	cfg     Config
	fetcher Fetcher
	saver   writer.Saver
	cal     *calendar.Calendar
	now     func() time.Time
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycles atomic.Int64
}

// New creates a new Poller. An unknown calendar MIC falls back to xnys.
func New(cfg Config, fetcher Fetcher, saver writer.Saver, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}

	cal := calendar.GetCalendar(cfg.Calendar)
	if cal == nil {
		logger.Warn("unknown exchange calendar, using xnys", "mic", cfg.Calendar)
		cal = calendar.GetCalendar("xnys")
	}

	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		saver:   saver,
		cal:     cal,
		now:     time.Now,
		logger:  logger.With("component", "poller"),
	}
}

// Start begins the sync loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("historical sync started",
		"instruments", len(p.cfg.Instruments),
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("historical sync stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cycles returns the number of completed cycles, skipped ones included.
func (p *Poller) Cycles() int64 {
	return p.cycles.Load()
}

// run is the main sync loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Sync immediately on start.
	p.SyncOnce(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.SyncOnce(p.ctx)
		}
	}
}

// TradingDay reports whether the exchange is open on t's calendar day.
func (p *Poller) TradingDay(t time.Time) bool {
	if p.cal == nil {
		wd := t.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	if p.cal.Loc != nil {
		t = t.In(p.cal.Loc)
	}
	return p.cal.IsBusinessDay(t)
}

// SyncOnce runs one cycle. Per-instrument failures are logged and counted;
// the returned error is non-nil only when ctx ends the cycle early.
func (p *Poller) SyncOnce(ctx context.Context) (CycleStats, error) {
	start := time.Now()
	stats := CycleStats{ID: uuid.New()}
	logger := p.logger.With("cycle", stats.ID)
	defer p.cycles.Add(1)

	if now := p.now(); !p.TradingDay(now) {
		stats.Skipped = true
		logger.Info("exchange closed, skipping sync", "date", now.Format(time.DateOnly))
		return stats, nil
	}
	if len(p.cfg.Instruments) == 0 {
		logger.Debug("no instruments to sync")
		return stats, nil
	}

	var fetched, barCount, errCount atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, instrument := range p.cfg.Instruments {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n, err := p.syncInstrument(gctx, instrument)
			if err != nil {
				logger.Warn("failed to sync instrument",
					"instrument", instrument,
					"error", err,
				)
				errCount.Add(1)
				return nil
			}
			fetched.Add(1)
			barCount.Add(int64(n))
			return nil
		})
	}
	g.Wait()

	stats.Fetched = fetched.Load()
	stats.Bars = barCount.Load()
	stats.Errors = errCount.Load()
	stats.Duration = time.Since(start)

	logger.Info("sync cycle complete",
		"instruments", len(p.cfg.Instruments),
		"fetched", stats.Fetched,
		"bars", stats.Bars,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)
	return stats, ctx.Err()
}

// syncInstrument fetches and saves a single instrument's series.
func (p *Poller) syncInstrument(ctx context.Context, instrument string) (int, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	series, err := p.fetcher.Fetch(ctx, model.Request{
		Instrument:  instrument,
		BarSize:     p.cfg.BarSize,
		Duration:    p.cfg.Duration,
		RegularOnly: p.cfg.RegularOnly,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	if p.saver != nil {
		if err := p.saver.Save(ctx, series); err != nil {
			return 0, fmt.Errorf("save: %w", err)
		}
	}
	return len(series.Bars), nil
}
