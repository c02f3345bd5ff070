// Package gateway implements connection.SessionDriver over a websocket
// bridge to the brokerage gateway.
//
// Frames are JSON text messages. The client opens with a hello carrying its
// client id and waits for the welcome before the session counts as up.
// Bars, end-of-stream markers and peer errors are dispatched to a
// connection.Handler from Run.
package gateway
