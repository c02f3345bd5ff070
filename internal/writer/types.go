package writer

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/market-scout/internal/config"
	"github.com/rickgao/market-scout/internal/model"
)

var (
	ErrUnsupportedTarget = errors.New("unsupported storage target")
	ErrInvalidTable      = errors.New("invalid table name")
	ErrEmptySeries       = errors.New("series has no bars")
)

// Saver writes finalized series to a sink.
type Saver interface {
	Save(ctx context.Context, s model.Series) error
	Close() error
}

// WriterConfig holds settings shared by all savers.
type WriterConfig struct {
	// BatchSize is the number of rows sent per database round trip.
	BatchSize int

	// Table is the SQL table name for database savers.
	Table string

	// KeyPrefix prefixes Redis keys.
	KeyPrefix string

	// TTL expires Redis keys. Zero keeps them forever.
	TTL time.Duration

	// Database is used when the target is "timescale".
	Database config.DBConfig
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize: 1000,
		Table:     "bars",
		KeyPrefix: "bars:",
	}
}

// WriterConfigFrom builds a WriterConfig from the storage config section.
func WriterConfigFrom(cfg config.StorageConfig) WriterConfig {
	return WriterConfig{
		BatchSize: cfg.BatchSize,
		Table:     cfg.Table,
		KeyPrefix: cfg.KeyPrefix,
		TTL:       cfg.TTL,
		Database:  cfg.Database,
	}
}

// WriterMetrics tracks database saver statistics.
type WriterMetrics struct {
	Series  int64 // Series saved
	Inserts int64 // Rows upserted
	Flushes int64 // Batches sent
	Errors  int64 // Failed saves
}
