package stream

import "errors"

// ErrStreamClosed is returned to the broadcaster for snapshots offered to
// a session that has already ended.
var ErrStreamClosed = errors.New("stream: closed")
