package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired means no access token is available. The connect attempt
	// fails immediately; it is never retried automatically.
	ErrAuthRequired = errors.New("no access token, login required")

	// ErrRetriesExhausted is the terminal reconnect failure. A new explicit
	// Connect call is required to resume.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// ProtocolError is a server-side rejection of the handshake or subscription.
// Unlike a transport closure it does not trigger reconnection.
type ProtocolError struct {
	Code int
	Msg  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: code=%d, msg=%s", e.Code, e.Msg)
}
