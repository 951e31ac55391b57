// Package state holds the live state of every device and fans changes out
// to subscribers.
//
// A Manager owns one Channel per device, created on first access and kept
// as a cache. Every write for a device goes through that device's Channel,
// which serialises the read-merge-write against the Store, caches the
// result and broadcasts it to the device's Subscriptions before the next
// write can start. Writes on different devices never share a lock.
//
// Background consumers (MQTT link, telemetry, history, the cross-instance
// Feed) attach with Manager.Observe and receive snapshots through their own
// bounded queue, so a slow consumer cannot stall a writer.
package state
