package websocket

import (
	"encoding/binary"
	"strconv"
	"unicode/utf8"
)

// StatusCode indicates a reason for the closure of an established
// WebSocket connection, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-7.4.
//
// See also https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number.
//
// Codes 3000-3999 are reserved for use by libraries, frameworks, and
// applications; codes 4000-4999 are reserved for private use.
type StatusCode uint16

const (
	// The purpose for which the connection was established has been fulfilled.
	StatusNormalClosure StatusCode = 1000
	// An endpoint is "going away", such as a server going
	// down or a browser having navigated away from a page.
	StatusGoingAway StatusCode = 1001
	// An endpoint is terminating the connection due to a protocol error.
	StatusProtocolError StatusCode = 1002
	// An endpoint is terminating the connection because it has received a
	// type of data it cannot accept.
	StatusUnsupportedData StatusCode = 1003
	// An endpoint received data within a message that was not consistent
	// with the type of the message (e.g. non-UTF-8 data within a text message).
	StatusInvalidData StatusCode = 1007
	// A generic status code for when no other more suitable one applies.
	StatusPolicyViolation StatusCode = 1008
	// The message received is too big to process.
	StatusMessageTooBig StatusCode = 1009
	// A client is terminating the connection because the server failed to
	// negotiate one or more extensions it expected.
	StatusMandatoryExtension StatusCode = 1010
	// A remote endpoint encountered an unexpected condition that
	// prevented it from fulfilling the request.
	StatusInternalError StatusCode = 1011

	// StatusNotReceived is a local sentinel: it MUST NOT appear on the
	// wire. It means a close frame was received with no status code at all.
	StatusNotReceived StatusCode = 1005
	// StatusAbnormalClosure is a local sentinel: it MUST NOT appear on the
	// wire. It means the connection dropped without a close handshake.
	StatusAbnormalClosure StatusCode = 1006
	// StatusTLSHandshake is a local sentinel: it MUST NOT appear on the
	// wire. It means a TLS handshake failed before any WebSocket data was sent.
	StatusTLSHandshake StatusCode = 1015
)

// String returns the status code's name, or its number if it's unrecognized.
func (s StatusCode) String() string {
	switch s {
	case StatusNormalClosure:
		return "normal closure"
	case StatusGoingAway:
		return "going away"
	case StatusProtocolError:
		return "protocol error"
	case StatusUnsupportedData:
		return "unsupported data"
	case StatusNotReceived:
		return "status not received"
	case StatusAbnormalClosure:
		return "abnormal closure"
	case StatusInvalidData:
		return "invalid data"
	case StatusPolicyViolation:
		return "policy violation"
	case StatusMessageTooBig:
		return "message too big"
	case StatusMandatoryExtension:
		return "expected extension negotiation"
	case StatusInternalError:
		return "internal error"
	case StatusTLSHandshake:
		return "TLS handshake"
	default:
		return strconv.Itoa(int(s))
	}
}

// definedCloseCodes are the status codes spec.md §3 allows on the wire,
// besides the 3000-4999 private range.
var definedCloseCodes = map[StatusCode]bool{
	StatusNormalClosure:      true,
	StatusGoingAway:          true,
	StatusProtocolError:      true,
	StatusUnsupportedData:    true,
	StatusInvalidData:        true,
	StatusPolicyViolation:    true,
	StatusMessageTooBig:      true,
	StatusMandatoryExtension: true,
	StatusInternalError:      true,
}

// IsValidOnWire reports whether s is legal as the code field of a Close
// frame actually sent or received over the wire: one of the codes defined
// above, or in the private-use range 3000-4999. The sentinel codes 1005,
// 1006, and 1015 are local-only meanings and must never appear on the wire.
func (s StatusCode) IsValidOnWire() bool {
	if definedCloseCodes[s] {
		return true
	}
	return s >= 3000 && s <= 4999
}

// IsCloseCode reports whether err is a *ProtocolError (or wraps one)
// carrying one of the given codes. Modeled on the shape of
// vitalvas-kasper/websocket's IsCloseError, adapted to this package's
// StatusCode-carrying error type.
func IsCloseCode(err error, codes ...StatusCode) bool {
	pe, ok := asProtocolError(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if pe.Code == c {
			return true
		}
	}
	return false
}

// maxCloseReason is the maximum length of a connection closing reason:
// 125 minus the 2 bytes used by the status code.
const maxCloseReason = 125 - 2

// FormatClosePayload builds the payload of a Close control frame: the
// 2-byte big-endian status code followed by an optional UTF-8 reason. If
// status is StatusNotReceived, it returns an empty payload, since that
// code must never be put on the wire.
func FormatClosePayload(status StatusCode, reason string) []byte {
	if status == StatusNotReceived {
		return nil
	}
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, uint16(status))
	copy(buf[2:], reason)
	return buf
}

// ParseClosePayload extracts the StatusCode and the optional UTF-8 reason
// from an incoming Close frame's payload, per spec.md §4.2 step 7.
func ParseClosePayload(payload []byte) (StatusCode, string, error) {
	switch len(payload) {
	case 0:
		return StatusNotReceived, "", nil
	case 1:
		return 0, "", &ProtocolError{Code: StatusProtocolError, Reason: "close frame missing status code"}
	}

	code := StatusCode(binary.BigEndian.Uint16(payload))
	if !code.IsValidOnWire() {
		return 0, "", &ProtocolError{
			Code:   StatusProtocolError,
			Reason: "close frame has an invalid or unknown status code: " + code.String(),
		}
	}

	reason := payload[2:]
	if !utf8.Valid(reason) {
		return 0, "", &ProtocolError{Code: StatusInvalidData, Reason: "close frame reason is not valid UTF-8"}
	}

	return code, string(reason), nil
}
