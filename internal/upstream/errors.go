package upstream

import "errors"

// Link operation errors.
var (
	ErrNotOpen        = errors.New("upstream link is not open")
	ErrSendBufferFull = errors.New("upstream send buffer is full")
)
