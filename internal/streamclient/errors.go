package streamclient

import "errors"

var (
	// ErrGaveUp is passed to OnGiveUp once reconnect attempts run out.
	ErrGaveUp = errors.New("streamclient: gave up reconnecting")

	// ErrUnexpectedStatus is returned when the server answers without
	// opening a stream.
	ErrUnexpectedStatus = errors.New("streamclient: unexpected status")

	// ErrStreamEnded is returned when the server closes an open stream.
	ErrStreamEnded = errors.New("streamclient: stream ended")
)
