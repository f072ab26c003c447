package room

import "errors"

// Room operation errors.
var (
	ErrLeagueMismatch = errors.New("reconnect request references a different league")
)
