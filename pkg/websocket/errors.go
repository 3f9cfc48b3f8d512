package websocket

import (
	"errors"
	"fmt"
)

// ProtocolError reports a violation of the WebSocket framing protocol,
// detected either while parsing an incoming frame or while validating one
// before it's sent. Code is the StatusCode that the connection must be
// closed with, per spec.md §4.3.
type ProtocolError struct {
	Code   StatusCode
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("websocket protocol error (%s): %s", e.Code, e.Reason)
}

// asProtocolError unwraps err looking for a *ProtocolError, the same way
// errors.As would, without forcing every caller to declare a local variable.
func asProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// HandshakeError reports a failure of the opening HTTP handshake: a
// transport error, an unexpected status code, or a response missing or
// misusing one of the headers required by RFC 6455 §4.2.2.
type HandshakeError struct {
	// StatusCode is the HTTP status code the server returned, or 0 if
	// the handshake failed before a response was received.
	StatusCode int
	Reason     string
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("websocket handshake failed (HTTP %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("websocket handshake failed: %s", e.Reason)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ErrConnectionClosed is returned by Conn's send operations once the
// close handshake has completed, or the underlying transport has gone
// away.
var ErrConnectionClosed = errors.New("websocket: connection closed")
