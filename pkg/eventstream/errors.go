package eventstream

import "errors"

// ErrNilAppendEvent indicates a nil append event payload was provided to a publisher.
var ErrNilAppendEvent = errors.New("nil append event")
