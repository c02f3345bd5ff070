package bars

import "errors"

// Errors
var (
	ErrMissingReferenceData = errors.New("bars: no reference bar to reconstruct missing timestamp")
	ErrUnknownRequestID     = errors.New("bars: unknown request id")
	ErrRequestFinalized     = errors.New("bars: request already finalized")
	ErrUnsupportedBarSize   = errors.New("bars: unsupported bar size")
)

// DefaultFlushThreshold is the number of buffered bars merged per flush.
const DefaultFlushThreshold = 100

// Config configures a Cache.
type Config struct {
	FlushThreshold int // Pending records per request before a bulk merge
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FlushThreshold: DefaultFlushThreshold,
	}
}

// CacheStats provides statistics about the cache.
type CacheStats struct {
	Open      int   // Slots not yet finalized
	Finalized int   // Slots finalized but not released
	Verified  int64 // Records passed through Verify
	Repaired  int64 // Verified records with synthesized or filled fields
	Flushes   int64
}
