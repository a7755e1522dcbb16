// Package hub maintains the persistent push-channel connection to the
// tracking backend and dispatches its events.
package hub

import "errors"

// ConnState is the externally observable connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	// StateReconnecting covers the automatic retry loop after an
	// unexpected drop. It is a sub-state of Connected→…→Connected: only a
	// fully closed connection enters it, never the transport's own
	// in-flight flapping.
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

var (
	// ErrNotConnected is returned for operations that require a live socket.
	ErrNotConnected = errors.New("hub not connected")
	// ErrRetryExhausted marks the terminal state after the automatic
	// reconnect budget is spent; only a fresh explicit Connect clears it.
	ErrRetryExhausted = errors.New("hub reconnect attempts exhausted")
	// ErrInvalidTripID rejects trip ids that are not canonical lowercase
	// hyphenated 8-4-4-4-12 hex before anything reaches the socket.
	ErrInvalidTripID = errors.New("invalid trip id")
	// ErrUnauthorized is returned when the hub rejects the bearer token.
	ErrUnauthorized = errors.New("hub unauthorized")
)
