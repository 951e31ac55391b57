// Package api implements the HTTP surface of HomeState Core.
//
// This package provides:
//   - the device-state control routes (GET/POST /device-state/{attribute})
//   - push transports: Server-Sent Events on /stream and WebSocket on /ws
//   - device bookkeeping under /api/v1/devices
//   - health, JSON system metrics and Prometheus exposition
//   - the middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Response envelope
//
// Control and bookkeeping routes answer with
//
//	{"success": true, "data": ...}
//	{"success": false, "error": "..."}
//
// The stream routes reject with plain-text bodies before the stream starts,
// since their clients are EventSource and WebSocket consumers.
package api
