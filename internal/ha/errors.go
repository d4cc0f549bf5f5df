package ha

import "errors"

var (
	// ErrEntityNotFound is returned when Home Assistant has no state for an entity.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrNotConnected is returned for requests made while the websocket is down.
	ErrNotConnected = errors.New("not connected")

	// ErrRequestTimeout is returned when Home Assistant does not answer in time.
	ErrRequestTimeout = errors.New("timeout waiting for response")
)
