// Package websocket is a client-only implementation of the WebSocket
// protocol (RFC 6455).
//
// It splits the wire protocol into small, independently testable pieces:
// a [Frame] value type with self-validation, a [Stream] that turns
// arbitrary byte chunks pushed in from a transport into a pull-based
// parser context, a [FrameReader] that drives that context through the
// RFC 6455 framing algorithm, and a [FrameWriter] that serializes and
// masks outbound frames. [Dial] wires all of it together over the
// standard library's HTTP client.
//
// The core never opens a socket itself: [Dial] performs the HTTP Upgrade
// handshake with [net/http] and then treats the resulting connection as
// nothing more than an [io.ReadWriteCloser]. Message reassembly across
// fragmented frames and the "permessage-deflate" extension (RFC 7692) are
// not implemented.
//
// [Client] is a long-running wrapper around [Conn] that can replace its
// underlying connection ahead of an expected disconnect, or after an
// unexpected one, without the caller observing a gap in
// [Client.IncomingMessages].
package websocket
