// Package connection supervises the session to the market-data peer.
//
// The Supervisor:
//   - Runs the session on a fixed pool of three workers (connect, read loop, watchdog)
//   - Polls the driver until the session is healthy, with bounded attempts
//   - Restarts the session when the Watchdog observes it unhealthy
//   - Refuses overlapping start/stop transitions
//
// The peer itself is reached through a SessionDriver; package gateway provides
// the websocket implementation.
package connection
