// Package classify maps peer-supplied numeric error codes to handling policies.
//
// The code table is fixed. Membership mirrors the gateway's message code families:
//   - 1300: socket port reset, the connection is dropped for good (FatalExit)
//   - 1100-1103: connectivity between gateway and server lost/restored (ConnectionLost)
//   - 162: historical data pacing violation (RateLimited)
//   - 2103-2110: market/historical data farm notices (Informational)
//
// Everything else is UnclassifiedCritical.
package classify
