// Package stream turns device state subscriptions into long-lived push
// streams.
//
// Every snapshot is sent as a bundle of five messages: one generic "state"
// message carrying the whole snapshot, then doorStatus, lightStatus,
// electricityStatus and motionStatus. The bundle is sent when the stream
// opens and again after every change; it is never reduced to a diff.
//
// A Session owns one subscription and a bounded queue. The broadcaster
// only enqueues, so a slow client loses its oldest queued snapshots rather
// than stalling writers. Session is transport-neutral; the SSE Handler
// here and the WebSocket handler in the api package supply a Sink.
package stream
