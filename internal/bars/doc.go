// Package bars implements the bar stream cache.
//
// The cache turns a sequence of possibly degraded bar callbacks into a clean,
// append-only series per request id:
//   - Verify reconstructs missing timestamps and forward-fills missing fields
//   - Append buffers verified records, merging them into the committed table
//     every FlushThreshold records
//   - Finalize sorts by timestamp and removes duplicates (last write wins)
//
// Request state lives in a store owned by the Cache. A slot is created on the
// first Open, Verify or Append for an id and dropped on Release.
package bars
