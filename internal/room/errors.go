package room

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed is fatal to the connect attempt; the caller
	// must obtain a fresh credential and retry explicitly.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrConnectionFailed covers transport-level failures and the
	// application handshake timing out. Recoverable by explicit retry.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrHandshakeTimeout means the transport connected but no room_info
	// arrived in time. A live socket with no handshake is a stalled join,
	// not a healthy idle state.
	ErrHandshakeTimeout = errors.New("no room_info before handshake deadline")

	// ErrNotConnected is returned for intents issued without a live room
	// connection.
	ErrNotConnected = errors.New("not connected to a room")
)

// SessionError ties a failure to the operation that produced it.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}
