// Package poller implements the periodic historical sync.
//
// Each cycle:
//   - Skips days the exchange calendar marks as closed
//   - Fetches one series per configured instrument, with bounded concurrency
//   - Saves every finalized series to the configured storage target
package poller
