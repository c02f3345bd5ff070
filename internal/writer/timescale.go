package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/market-scout/internal/model"
)

// TimescaleSaver upserts bars into a TimescaleDB (or PostgreSQL) table.
type TimescaleSaver struct {
	cfg    WriterConfig
	logger *slog.Logger
	db     *pgxpool.Pool
	owned  bool
	table  string

	mu      sync.Mutex
	metrics WriterMetrics
}

// NewTimescaleSaver creates a saver over an existing pool. The caller keeps
// ownership of the pool.
func NewTimescaleSaver(db *pgxpool.Pool, cfg WriterConfig, logger *slog.Logger) (*TimescaleSaver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := checkTable(cfg.Table); err != nil {
		return nil, fmt.Errorf("%w: %q", err, cfg.Table)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	return &TimescaleSaver{
		cfg:    cfg,
		logger: logger.With("component", "timescale_saver"),
		db:     db,
		table:  pgx.Identifier{cfg.Table}.Sanitize(),
	}, nil
}

// EnsureSchema creates the bars table and, when the timescaledb extension is
// installed, turns it into a hypertable.
func (w *TimescaleSaver) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, w.createTableSQL()); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	var hasTimescale bool
	err := w.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')`,
	).Scan(&hasTimescale)
	if err != nil {
		return fmt.Errorf("check timescaledb: %w", err)
	}
	if !hasTimescale {
		w.logger.Info("timescaledb extension not installed, using plain table")
		return nil
	}

	if _, err := w.db.Exec(ctx,
		`SELECT create_hypertable($1::regclass, 'ts', if_not_exists => TRUE)`, w.cfg.Table,
	); err != nil {
		return fmt.Errorf("create hypertable: %w", err)
	}
	return nil
}

func (w *TimescaleSaver) createTableSQL() string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			instrument TEXT NOT NULL,
			bar_size TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			open DOUBLE PRECISION,
			high DOUBLE PRECISION,
			low DOUBLE PRECISION,
			close DOUBLE PRECISION,
			volume DOUBLE PRECISION,
			partial BOOLEAN NOT NULL DEFAULT FALSE,
			run_id TEXT NOT NULL,
			PRIMARY KEY (instrument, bar_size, ts)
		)`, w.table)
}

func (w *TimescaleSaver) upsertSQL() string {
	return fmt.Sprintf(`
		INSERT INTO %s (instrument, bar_size, ts, open, high, low, close, volume, partial, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (instrument, bar_size, ts) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			partial = EXCLUDED.partial,
			run_id = EXCLUDED.run_id
	`, w.table)
}

// Save upserts the series in batches of cfg.BatchSize.
func (w *TimescaleSaver) Save(ctx context.Context, s model.Series) error {
	start := time.Now()
	rows := toRows(s)

	for _, chunk := range chunks(rows, w.cfg.BatchSize) {
		if err := w.batchUpsert(ctx, chunk); err != nil {
			w.logger.Error("batch upsert failed", "error", err, "count", len(chunk))
			w.mu.Lock()
			w.metrics.Errors++
			w.mu.Unlock()
			return err
		}
		w.mu.Lock()
		w.metrics.Inserts += int64(len(chunk))
		w.metrics.Flushes++
		w.mu.Unlock()
	}

	w.mu.Lock()
	w.metrics.Series++
	w.mu.Unlock()

	w.logger.Debug("saved series",
		"instrument", s.Request.Instrument,
		"count", len(rows),
		"duration", time.Since(start),
	)
	return nil
}

// batchUpsert sends rows using pgx.Batch.
func (w *TimescaleSaver) batchUpsert(ctx context.Context, rows []barRow) error {
	query := w.upsertSQL()
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query,
			r.Instrument, r.BarSize, time.Unix(r.Time, 0).UTC(),
			r.Open, r.High, r.Low, r.Close, r.Volume,
			r.Partial, r.RunID,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns current metrics.
func (w *TimescaleSaver) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// Close closes the pool if the saver opened it.
func (w *TimescaleSaver) Close() error {
	if w.owned {
		w.db.Close()
	}
	return nil
}

func chunks[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
