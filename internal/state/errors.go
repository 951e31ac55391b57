package state

import "errors"

var (
	// ErrStateNotFound is returned when a device has no state record.
	ErrStateNotFound = errors.New("state: not found")

	// ErrEmptyUpdate is returned when a patch sets no field.
	ErrEmptyUpdate = errors.New("state: empty update")

	// ErrStore wraps failures of the underlying store.
	ErrStore = errors.New("state: store failure")

	// ErrUnknownAttribute is returned by ParseAttribute.
	ErrUnknownAttribute = errors.New("state: unknown attribute")

	// ErrClosed is returned by a Manager after Close.
	ErrClosed = errors.New("state: manager closed")
)
