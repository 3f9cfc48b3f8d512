package websocket

import "unicode/utf8"

// maxControlPayload is the largest payload a control frame may carry, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.5.
const maxControlPayload = 125

// Frame is a single WebSocket frame as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.2. It is the
// value both [FrameReader] produces and [FrameWriter] consumes; masking is
// handled separately, by [FrameWriter] and [FrameReader], and is not part of
// this type's invariants.
type Frame struct {
	// Fin reports whether this frame is the final fragment of a message.
	Fin bool

	// RSV1, RSV2, and RSV3 are reserved for extensions. This
	// implementation negotiates no extensions, so all three must be
	// false on every frame actually exchanged on the wire.
	RSV1, RSV2, RSV3 bool

	Opcode Opcode

	// Payload is the frame's application data, already unmasked (for
	// received frames) or not yet masked (for frames about to be sent).
	Payload []byte
}

// Validate checks f against the structural invariants spec.md §3 places on
// every frame, independent of where f came from. It does not check
// fragmentation rules that span multiple frames (continuation sequencing);
// this package does not reassemble messages and checks no such rules.
func (f Frame) Validate() error {
	if !f.Opcode.IsKnown() {
		return &ProtocolError{Code: StatusProtocolError, Reason: "unknown opcode: " + f.Opcode.String()}
	}
	if f.RSV1 || f.RSV2 || f.RSV3 {
		return &ProtocolError{Code: StatusProtocolError, Reason: "reserved bit set without a negotiated extension"}
	}
	if f.Opcode.IsControl() {
		if !f.Fin {
			return &ProtocolError{Code: StatusProtocolError, Reason: "control frame must not be fragmented"}
		}
		if len(f.Payload) > maxControlPayload {
			return &ProtocolError{Code: StatusProtocolError, Reason: "control frame payload exceeds 125 bytes"}
		}
	}
	if f.Opcode == OpcodeClose {
		if _, _, err := ParseClosePayload(f.Payload); err != nil {
			return err
		}
	}
	if f.Opcode == OpcodeText && !utf8.Valid(f.Payload) {
		return &ProtocolError{Code: StatusInvalidData, Reason: "text payload is not valid UTF-8"}
	}
	return nil
}
