// Package devicelink connects device firmware to the state channels over
// MQTT.
//
// Devices publish partial readings on homestate/report/{deviceId}, for
// example {"motionDetected":true}. Each accepted report is applied through
// the state manager, so SSE and WebSocket subscribers see it like any API
// write. In the other direction every applied snapshot is published
// retained on homestate/state/{deviceId}; a device that reconnects reads
// its authoritative state from the broker.
package devicelink
