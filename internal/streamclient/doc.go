// Package streamclient consumes a device state stream.
//
// A Client keeps one connection to GET /stream?deviceId=<id>, caches the
// latest snapshot and dispatches every message to the callback registered
// for its kind plus the "all" callback. When the connection fails it
// reconnects after ReconnectInterval × 2^(attempt−1), giving up after
// MaxReconnectAttempts consecutive failures. A successful open resets the
// attempt counter.
package streamclient
