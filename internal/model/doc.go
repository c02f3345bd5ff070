// Package model defines shared data types used across the bar sync engine.
//
// Conventions:
//   - Timestamps: time.Time in UTC, truncated to the second by the gateway
//   - Missing OHLCV values: math.NaN() on a BarRecord, nil on a RawBar
//   - IDs: int64 request ids from the connection Sequencer, uuid.UUID for sync runs
package model
