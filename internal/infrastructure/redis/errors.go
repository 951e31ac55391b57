package redis

import "errors"

var (
	// ErrDisabled is returned by Connect when redis.enabled is false.
	ErrDisabled = errors.New("redis: disabled in configuration")

	// ErrConnectionFailed is returned when the initial ping fails.
	ErrConnectionFailed = errors.New("redis: connection failed")

	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("redis: not connected")

	// ErrSubscriptionClosed is returned by Subscribe when the server side
	// of the subscription goes away.
	ErrSubscriptionClosed = errors.New("redis: subscription closed")
)
