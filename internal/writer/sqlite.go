package writer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/market-scout/internal/model"
)

// SQLiteSaver upserts bars into a SQLite table.
type SQLiteSaver struct {
	cfg    WriterConfig
	logger *slog.Logger
	db     *sql.DB
	owned  bool
	table  string

	mu      sync.Mutex
	metrics WriterMetrics
}

// NewSQLiteSaver creates the table if needed. The caller keeps ownership of db.
func NewSQLiteSaver(ctx context.Context, db *sql.DB, cfg WriterConfig, logger *slog.Logger) (*SQLiteSaver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := checkTable(cfg.Table); err != nil {
		return nil, fmt.Errorf("%w: %q", err, cfg.Table)
	}
	s := &SQLiteSaver{
		cfg:    cfg,
		logger: logger.With("component", "sqlite_saver"),
		db:     db,
		table:  pgx.Identifier{cfg.Table}.Sanitize(),
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSaver) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			instrument TEXT NOT NULL,
			bar_size TEXT NOT NULL,
			ts INTEGER NOT NULL,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			volume REAL,
			partial INTEGER NOT NULL DEFAULT 0,
			run_id TEXT NOT NULL,
			PRIMARY KEY (instrument, bar_size, ts)
		);`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Save upserts the series in one transaction.
func (s *SQLiteSaver) Save(ctx context.Context, series model.Series) error {
	start := time.Now()
	rows := toRows(series)

	if err := s.upsert(ctx, rows); err != nil {
		s.mu.Lock()
		s.metrics.Errors++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.metrics.Series++
	s.metrics.Inserts += int64(len(rows))
	s.metrics.Flushes++
	s.mu.Unlock()

	s.logger.Debug("saved series",
		"instrument", series.Request.Instrument,
		"count", len(rows),
		"duration", time.Since(start),
	)
	return nil
}

func (s *SQLiteSaver) upsert(ctx context.Context, rows []barRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (instrument, bar_size, ts, open, high, low, close, volume, partial, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instrument, bar_size, ts) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			partial = excluded.partial,
			run_id = excluded.run_id`, s.table))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Instrument, r.BarSize, r.Time,
			r.Open, r.High, r.Low, r.Close, r.Volume,
			boolInt(r.Partial), r.RunID,
		); err != nil {
			return fmt.Errorf("upsert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Stats returns current metrics.
func (s *SQLiteSaver) Stats() WriterMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Close closes the database if the saver opened it.
func (s *SQLiteSaver) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
