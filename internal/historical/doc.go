// Package historical issues historical bar queries over a supervised peer
// session and assembles the replies into finalized series.
//
// Service is the peer callback handler: bars are verified and buffered in a
// bars.Cache, end-of-stream finalizes the request, and peer errors are
// classified and acted on (restart, stop and exit, or fail the request).
package historical
