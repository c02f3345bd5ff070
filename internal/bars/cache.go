package bars

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/rickgao/market-scout/internal/model"
)

// Cache verifies, buffers and finalizes bar streams keyed by request id.
type Cache struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	store *RequestStore
	stats CacheStats
}

// NewCache creates a cache. A non-positive FlushThreshold uses the default.
func NewCache(cfg Config, logger *slog.Logger) *Cache {
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = DefaultFlushThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		cfg:    cfg,
		logger: logger.With("component", "bar_cache"),
		store:  NewRequestStore(),
	}
}

// Open registers the request so missing timestamps can be reconstructed with
// its bar size. Reopening an id discards any previous state for it.
func (c *Cache) Open(req model.Request) error {
	size, err := ParseBarSize(req.BarSize)
	if err != nil {
		return fmt.Errorf("open request %d: %w", req.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.release(req.ID)
	s := c.store.acquire(req.ID)
	s.instrument = req.Instrument
	s.barSize = req.BarSize
	s.size = &size
	return nil
}

// Verify repairs a raw bar into a record. Present fields are kept as delivered.
// A missing timestamp becomes the last known timestamp plus one bar; a missing
// value is forward-filled from the last known value of that field. A bar with
// every field absent becomes a synthetic record with NaN values.
//
// barSize overrides the bar size given to Open when non-empty.
func (c *Cache) Verify(id int64, raw model.RawBar, barSize string) (model.BarRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.verifyLocked(id, c.store.acquire(id), raw, barSize)
}

func (c *Cache) verifyLocked(id int64, s *slot, raw model.RawBar, barSize string) (model.BarRecord, error) {
	rec := model.BarRecord{
		Instrument:       s.instrument,
		PartiallyMissing: !raw.Complete(),
	}

	if raw.Time != nil {
		rec.Time = raw.Time.UTC()
	} else {
		last, ok := s.lastTime()
		if !ok {
			return model.BarRecord{}, fmt.Errorf("verify request %d: %w", id, ErrMissingReferenceData)
		}
		size, err := s.resolveSize(barSize)
		if err != nil {
			return model.BarRecord{}, fmt.Errorf("verify request %d: %w", id, err)
		}
		rec.Time = size.Next(last)
	}

	empty := raw.Empty()
	for _, f := range model.Fields {
		if v := raw.Raw(f); v != nil {
			rec.Set(f, *v)
			continue
		}
		if !empty {
			if v, ok := s.lastValue(f); ok {
				rec.Set(f, v)
				continue
			}
		}
		rec.Set(f, math.NaN())
	}

	c.stats.Verified++
	if rec.PartiallyMissing {
		c.stats.Repaired++
	}
	return rec, nil
}

func (s *slot) resolveSize(override string) (BarSize, error) {
	if override != "" && override != s.barSize {
		return ParseBarSize(override)
	}
	if s.size != nil {
		return *s.size, nil
	}
	if s.barSize == "" {
		return BarSize{}, fmt.Errorf("%w: no bar size known", ErrUnsupportedBarSize)
	}
	size, err := ParseBarSize(s.barSize)
	if err != nil {
		return BarSize{}, err
	}
	s.size = &size
	return size, nil
}

// Append adds a verified record to the request's pending buffer and merges
// the buffer into the committed table once it reaches the flush threshold.
func (c *Cache) Append(id int64, rec model.BarRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.appendLocked(id, c.store.acquire(id), rec)
}

// Ingest verifies raw and appends the result in one step. Unlike Verify and
// Append it never creates a slot: an id that was not opened, or has been
// released, yields ErrUnknownRequestID.
func (c *Cache) Ingest(id int64, raw model.RawBar, barSize string) (model.BarRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.store.lookup(id)
	if !ok {
		return model.BarRecord{}, fmt.Errorf("ingest request %d: %w", id, ErrUnknownRequestID)
	}
	if s.finalized {
		return model.BarRecord{}, fmt.Errorf("ingest request %d: %w", id, ErrRequestFinalized)
	}

	rec, err := c.verifyLocked(id, s, raw, barSize)
	if err != nil {
		return model.BarRecord{}, err
	}
	if err := c.appendLocked(id, s, rec); err != nil {
		return model.BarRecord{}, err
	}
	return rec, nil
}

func (c *Cache) appendLocked(id int64, s *slot, rec model.BarRecord) error {
	if s.finalized {
		return fmt.Errorf("append request %d: %w", id, ErrRequestFinalized)
	}
	if rec.Instrument == "" {
		rec.Instrument = s.instrument
	}

	s.pending = append(s.pending, rec)
	if len(s.pending) >= c.cfg.FlushThreshold {
		c.flushLocked(id, s)
	}
	return nil
}

// Flush merges the pending buffer into the committed table.
func (c *Cache) Flush(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.store.lookup(id)
	if !ok {
		return fmt.Errorf("flush request %d: %w", id, ErrUnknownRequestID)
	}
	c.flushLocked(id, s)
	return nil
}

func (c *Cache) flushLocked(id int64, s *slot) {
	n := len(s.pending)
	if s.flush() {
		c.stats.Flushes++
		c.logger.Debug("flushed pending bars", "req_id", id, "count", n, "committed", len(s.committed))
	}
}

// Finalize flushes, sorts the committed table by timestamp and removes
// duplicate timestamps, keeping the last write. Finalizing twice is a no-op.
func (c *Cache) Finalize(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.store.lookup(id)
	if !ok {
		return fmt.Errorf("finalize request %d: %w", id, ErrUnknownRequestID)
	}
	if s.finalized {
		return nil
	}

	c.flushLocked(id, s)
	s.committed = dedupeLastWrite(s.committed)
	s.pending = nil
	s.finalized = true

	c.logger.Debug("finalized request", "req_id", id, "bars", len(s.committed))
	return nil
}

// dedupeLastWrite stable-sorts records by timestamp and keeps the last record
// written for each timestamp.
func dedupeLastWrite(recs []model.BarRecord) []model.BarRecord {
	slices.SortStableFunc(recs, func(a, b model.BarRecord) int {
		return a.Time.Compare(b.Time)
	})

	out := recs[:0]
	for _, r := range recs {
		if n := len(out); n > 0 && out[n-1].Time.Equal(r.Time) {
			out[n-1] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

// Bars returns a copy of the committed table.
func (c *Cache) Bars(id int64) ([]model.BarRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.store.lookup(id)
	if !ok {
		return nil, fmt.Errorf("bars for request %d: %w", id, ErrUnknownRequestID)
	}
	return slices.Clone(s.committed), nil
}

// Pending returns the number of records waiting in the request's buffer.
func (c *Cache) Pending(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.store.lookup(id); ok {
		return len(s.pending)
	}
	return 0
}

// Finalized reports whether the request has been finalized.
func (c *Cache) Finalized(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.store.lookup(id)
	return ok && s.finalized
}

// Release drops all state for the request.
func (c *Cache) Release(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.store.release(id) {
		return fmt.Errorf("release request %d: %w", id, ErrUnknownRequestID)
	}
	return nil
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	for _, s := range c.store.slots {
		if s.finalized {
			stats.Finalized++
		} else {
			stats.Open++
		}
	}
	return stats
}
