// Package writer persists finalized bar series.
//
// Savers:
//   - CSV, JSON and Parquet files (one file per series, path templated)
//   - SQLite table (embedded, local runs)
//   - TimescaleDB / PostgreSQL table (pgx batch upsert)
//   - Redis key holding a JSON document (with optional TTL)
//
// Database savers upsert on (instrument, bar_size, ts), so re-syncing a window
// replaces earlier values. Missing values (NaN) are written as NULL.
package writer
