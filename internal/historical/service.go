package historical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/market-scout/internal/bars"
	"github.com/rickgao/market-scout/internal/classify"
	"github.com/rickgao/market-scout/internal/connection"
	"github.com/rickgao/market-scout/internal/model"
	"github.com/rickgao/market-scout/internal/writer"
)

// stopTimeout bounds the session stop issued before a fatal exit and the
// restart issued on connection loss.
const stopTimeout = 30 * time.Second

// Option configures a Service.
type Option func(*Service)

// WithFatalFunc replaces the process exit used for fatal peer errors.
func WithFatalFunc(fn FatalFunc) Option {
	return func(s *Service) { s.fatal = fn }
}

// WithRunID sets the run id stamped on every series.
func WithRunID(id uuid.UUID) Option {
	return func(s *Service) { s.runID = id }
}

// tracker follows one outstanding request.
type tracker struct {
	req  model.Request
	done chan struct{}
	err  error

	// Span reported by the peer at end-of-stream.
	start, end string

	// Supervisor epoch the query was sent under.
	epoch int64
}

// Service issues historical queries and collects the replies.
type Service struct {
	cfg    Config
	logger *slog.Logger
	runID  uuid.UUID
	fatal  FatalFunc

	sup   *connection.Supervisor
	cache *bars.Cache
	seq   *connection.Sequencer

	mu       sync.Mutex
	requests map[int64]*tracker
	stopped  bool

	requested    atomic.Int64
	completed    atomic.Int64
	failed       atomic.Int64
	barsReceived atomic.Int64
	barsDropped  atomic.Int64
	peerErrors   atomic.Int64
	restarts     atomic.Int64
}

// NewService creates a service over driver. Call Start to connect.
func NewService(cfg Config, driver connection.SessionDriver, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultBarSize == "" {
		cfg.DefaultBarSize = DefaultBarSize
	}
	if cfg.DefaultDuration == "" {
		cfg.DefaultDuration = DefaultDuration
	}

	s := &Service{
		cfg:      cfg,
		runID:    uuid.New(),
		fatal:    DefaultFatal,
		seq:      connection.NewSequencer(0),
		requests: make(map[int64]*tracker),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = logger.With("component", "historical", "run_id", s.runID)
	s.cache = bars.NewCache(cfg.Cache, logger)
	s.sup = connection.NewSupervisor(cfg.Connection, driver, s, logger)
	return s
}

// Start connects the session and starts its workers.
func (s *Service) Start(ctx context.Context) error {
	if err := s.sup.StartServices(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	return nil
}

// Stop shuts the session down and fails every outstanding request.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	pending := make([]*tracker, 0, len(s.requests))
	for _, tr := range s.requests {
		pending = append(pending, tr)
	}
	s.mu.Unlock()

	for _, tr := range pending {
		s.fail(tr, ErrServiceStopped)
	}
	return s.sup.Shutdown(ctx)
}

// RunID returns the id stamped on every series.
func (s *Service) RunID() uuid.UUID {
	return s.runID
}

// Supervisor returns the session supervisor.
func (s *Service) Supervisor() *connection.Supervisor {
	return s.sup
}

// RequestHistoricalData assigns an id to req, registers it and sends it to
// the peer. Empty bar size and duration take the configured defaults.
func (s *Service) RequestHistoricalData(ctx context.Context, req model.Request) (int64, error) {
	if req.BarSize == "" {
		req.BarSize = s.cfg.DefaultBarSize
	}
	if req.Duration == "" {
		req.Duration = s.cfg.DefaultDuration
	}
	req.ID = s.seq.Next()

	if err := s.cache.Open(req); err != nil {
		return 0, err
	}

	tr := &tracker{req: req, done: make(chan struct{}), epoch: s.sup.Epoch()}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.cache.Release(req.ID)
		return 0, ErrServiceStopped
	}
	s.requests[req.ID] = tr
	s.mu.Unlock()

	if err := s.sup.RequestHistoricalData(ctx, req); err != nil {
		s.forget(req.ID)
		return 0, err
	}

	s.requested.Add(1)
	s.logger.Info("requested historical data",
		"req_id", req.ID,
		"instrument", req.Instrument,
		"bar_size", req.BarSize,
		"duration", req.Duration,
		"end", req.EndAnchor(),
	)
	return req.ID, nil
}

// Wait blocks until the request is finalized or failed, or ctx is done.
func (s *Service) Wait(ctx context.Context, id int64) error {
	tr, ok := s.tracker(id)
	if !ok {
		return fmt.Errorf("wait request %d: %w", id, bars.ErrUnknownRequestID)
	}

	select {
	case <-tr.done:
		return tr.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bars returns the committed bars of a request.
func (s *Service) Bars(id int64) ([]model.BarRecord, error) {
	return s.cache.Bars(id)
}

// Series returns the finalized series of a request.
func (s *Service) Series(id int64) (model.Series, error) {
	tr, ok := s.tracker(id)
	if !ok {
		return model.Series{}, fmt.Errorf("series %d: %w", id, bars.ErrUnknownRequestID)
	}
	if !s.cache.Finalized(id) {
		return model.Series{}, fmt.Errorf("series %d: %w", id, ErrNotFinalized)
	}

	recs, err := s.cache.Bars(id)
	if err != nil {
		return model.Series{}, err
	}
	return model.Series{RunID: s.runID, Request: tr.req, Bars: recs}, nil
}

// Release drops all state held for a request.
func (s *Service) Release(id int64) error {
	s.mu.Lock()
	delete(s.requests, id)
	s.mu.Unlock()
	return s.cache.Release(id)
}

// Fetch requests a series, waits for it and releases it.
func (s *Service) Fetch(ctx context.Context, req model.Request) (model.Series, error) {
	id, err := s.RequestHistoricalData(ctx, req)
	if err != nil {
		return model.Series{}, err
	}
	defer s.Release(id)

	if err := s.Wait(ctx, id); err != nil {
		return model.Series{}, fmt.Errorf("wait request %d: %w", id, err)
	}
	return s.Series(id)
}

// WriteTo saves the finalized series of a request with saver.
func (s *Service) WriteTo(ctx context.Context, id int64, saver writer.Saver) error {
	series, err := s.Series(id)
	if err != nil {
		return err
	}
	if err := saver.Save(ctx, series); err != nil {
		return fmt.Errorf("save series %d: %w", id, err)
	}
	return nil
}

// WriteToStorage saves the finalized series of a request to target. See
// writer.Open for the accepted targets.
func (s *Service) WriteToStorage(ctx context.Context, id int64, target string) error {
	saver, err := writer.Open(ctx, target, s.cfg.Writer, s.logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer saver.Close()

	return s.WriteTo(ctx, id, saver)
}

// Stats returns a snapshot of service statistics.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		Requests:     s.requested.Load(),
		Completed:    s.completed.Load(),
		Failed:       s.failed.Load(),
		BarsReceived: s.barsReceived.Load(),
		BarsDropped:  s.barsDropped.Load(),
		PeerErrors:   s.peerErrors.Load(),
		Restarts:     s.restarts.Load(),
		Cache:        s.cache.Stats(),
	}
}

// OnBar verifies and buffers a bar.
func (s *Service) OnBar(reqID int64, raw model.RawBar) {
	s.barsReceived.Add(1)

	// Ingest never recreates a slot released while the bar was in flight.
	if _, err := s.cache.Ingest(reqID, raw, ""); err != nil {
		s.barsDropped.Add(1)
		if errors.Is(err, bars.ErrUnknownRequestID) {
			s.logger.Error("bar for unknown request", "req_id", reqID, "error", err)
			return
		}
		s.logger.Warn("dropping bar", "req_id", reqID, "error", err)
	}
}

// OnBarStreamEnd finalizes the request.
func (s *Service) OnBarStreamEnd(reqID int64, start, end string) {
	tr, ok := s.tracker(reqID)
	if !ok {
		s.logger.Error("end of stream for unknown request", "req_id", reqID, "error", bars.ErrUnknownRequestID)
		return
	}

	if err := s.cache.Finalize(reqID); err != nil {
		s.fail(tr, err)
		return
	}

	s.mu.Lock()
	tr.start, tr.end = start, end
	s.mu.Unlock()

	if s.complete(tr, nil) {
		s.completed.Add(1)
		s.logger.Info("historical data complete",
			"req_id", reqID,
			"instrument", tr.req.Instrument,
			"start", start,
			"end", end,
		)
	}
}

// OnError classifies a peer error and acts on its policy.
func (s *Service) OnError(reqID int64, code int, msg string) {
	s.peerErrors.Add(1)
	ev := classify.NewEvent(reqID, code, msg)

	attrs := ev.LogAttrs()
	if ev.ServerSystem() {
		attrs = append(attrs, "family", "server_system")
	}
	s.logger.Log(context.Background(), ev.Policy.Level(), "peer error", attrs...)

	switch ev.Policy {
	case classify.FatalExit:
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := s.sup.StopServices(ctx); err != nil {
			s.logger.Error("stop services before exit failed", "error", err)
		}
		cancel()
		s.fatal(ev.Message)

	case classify.ConnectionLost:
		s.restarts.Add(1)
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := s.sup.Restart(ctx); err != nil {
			if errors.Is(err, connection.ErrTransitionInProgress) {
				s.logger.Debug("restart already in progress")
				return
			}
			s.logger.Error("restart after connection loss failed", "error", err)
		}

	case classify.RateLimited, classify.Informational:
		// Logged above.

	case classify.UnclassifiedCritical:
		if tr, ok := s.tracker(reqID); ok {
			s.fail(tr, ev)
		}
	}
}

// OnSessionRestarted fails the requests sent before session epoch came up.
// The new session never answers their ids.
func (s *Service) OnSessionRestarted(epoch int64) {
	s.mu.Lock()
	var lost []*tracker
	for _, tr := range s.requests {
		if tr.epoch < epoch {
			lost = append(lost, tr)
		}
	}
	s.mu.Unlock()

	for _, tr := range lost {
		s.fail(tr, ErrSessionRestarted)
	}
	if len(lost) > 0 {
		s.logger.Warn("session restarted, outstanding requests failed", "epoch", epoch, "requests", len(lost))
	}
}

func (s *Service) tracker(id int64) (*tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.requests[id]
	return tr, ok
}

// complete settles the tracker once; later calls are ignored.
func (s *Service) complete(tr *tracker, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-tr.done:
		return false
	default:
	}
	tr.err = err
	close(tr.done)
	return true
}

func (s *Service) fail(tr *tracker, err error) {
	if s.complete(tr, err) {
		s.failed.Add(1)
		s.logger.Warn("request failed", "req_id", tr.req.ID, "instrument", tr.req.Instrument, "error", err)
	}
}

func (s *Service) forget(id int64) {
	s.mu.Lock()
	delete(s.requests, id)
	s.mu.Unlock()
	s.cache.Release(id)
}
