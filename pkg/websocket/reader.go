package websocket

import (
	"encoding/binary"
	"unicode/utf8"
)

// DefaultMaxPayloadLength is the default ceiling FrameReader places on a
// single frame's payload. RFC 6455 places no upper bound on frame size;
// this implementation adds one, closing with [StatusMessageTooBig] when a
// peer exceeds it, since an unbounded length field is an easy memory
// exhaustion vector for any client that doesn't impose one.
const DefaultMaxPayloadLength = 16 * 1024 * 1024

// Hooks are the reader's dispatch slots, one per event kind. A nil hook is
// simply not invoked. All hooks for a single FrameReader are invoked from
// the same goroutine (the Stream pump), in wire order.
type Hooks struct {
	OnText   func(data []byte)
	OnBinary func(data []byte)
	OnPing   func(data []byte)
	OnPong   func(data []byte)
	OnClose  func(code StatusCode, reason string)
	// OnFrame, if set, is invoked for every frame in addition to the
	// opcode-specific hook above.
	OnFrame func(f Frame)
}

// FrameReader drives a [ParserContext] through the RFC 6455 framing
// algorithm and dispatches each resulting [Frame] to the installed
// [Hooks]. A FrameReader parses exactly one frame per call to Read; it is
// meant to be passed to [Stream.SetParser] as a [ParserFunc].
type FrameReader struct {
	hooks            Hooks
	maxPayloadLength int64
}

// NewFrameReader creates a FrameReader with DefaultMaxPayloadLength.
func NewFrameReader(hooks Hooks) *FrameReader {
	return &FrameReader{hooks: hooks, maxPayloadLength: DefaultMaxPayloadLength}
}

// SetMaxPayloadLength overrides the receive-side payload size cap.
func (r *FrameReader) SetMaxPayloadLength(n int64) {
	r.maxPayloadLength = n
}

// Read implements [ParserFunc]: it parses exactly one frame from ctx,
// dispatches it through r.hooks, and returns it.
func (r *FrameReader) Read(ctx *ParserContext) (Frame, error) {
	f, err := r.readFrame(ctx)
	if err != nil {
		return Frame{}, err
	}
	r.dispatch(f)
	return f, nil
}

func (r *FrameReader) readFrame(ctx *ParserContext) (Frame, error) {
	header, err := ctx.Read(2)
	if err != nil {
		return Frame{}, err
	}

	fin := header[0]&0x80 != 0
	rsv1 := header[0]&0x40 != 0
	rsv2 := header[0]&0x20 != 0
	rsv3 := header[0]&0x10 != 0
	op := Opcode(header[0] & 0x0F)

	masked := header[1]&0x80 != 0
	lengthCode := header[1] & 0x7F

	if !op.IsKnown() {
		return Frame{}, &ProtocolError{Code: StatusProtocolError, Reason: "unknown opcode: " + op.String()}
	}
	if rsv1 || rsv2 || rsv3 {
		return Frame{}, &ProtocolError{Code: StatusProtocolError, Reason: "reserved bit set but no meaning negotiated"}
	}

	if op.IsControl() {
		if !fin {
			return Frame{}, &ProtocolError{Code: StatusProtocolError, Reason: "fragmented control frame"}
		}
		if lengthCode > maxControlPayload {
			return Frame{}, &ProtocolError{Code: StatusProtocolError, Reason: "control frame too large"}
		}
	}

	length, err := r.readLength(ctx, lengthCode)
	if err != nil {
		return Frame{}, err
	}
	if length > uint64(r.maxPayloadLength) {
		return Frame{}, &ProtocolError{Code: StatusMessageTooBig, Reason: "payload exceeds maximum allowed length"}
	}

	// RFC 6455 §5.1 forbids servers from masking frames sent to a client.
	// This reader does not reject masked server frames; see the design
	// note about that open question.
	var maskKey [4]byte
	if masked {
		key, err := ctx.Read(4)
		if err != nil {
			return Frame{}, err
		}
		copy(maskKey[:], key)
	}

	payload, err := ctx.Read(int(length))
	if err != nil {
		return Frame{}, err
	}
	if masked {
		applyMask(maskKey, payload)
	}

	f := Frame{Fin: fin, RSV1: rsv1, RSV2: rsv2, RSV3: rsv3, Opcode: op, Payload: payload}

	switch op {
	case OpcodeText:
		if !utf8.Valid(payload) {
			return Frame{}, &ProtocolError{Code: StatusInvalidData, Reason: "non-UTF-8 payload"}
		}
	case OpcodeClose:
		if _, _, err := ParseClosePayload(payload); err != nil {
			return Frame{}, err
		}
	}

	return f, nil
}

// readLength decodes the extended payload length as an unsigned 64-bit
// value. It must not be read into a signed int64: the 127 (8-byte) form
// can set the high bit, and a naive int64 conversion of that would come
// out negative, silently defeating the maxPayloadLength comparison and
// then reaching make([]byte, n) with a negative n, which panics.
func (r *FrameReader) readLength(ctx *ParserContext, lengthCode byte) (uint64, error) {
	switch lengthCode {
	case 126:
		b, err := ctx.Read(2)
		if err != nil {
			return 0, err
		}
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 127:
		b, err := ctx.Read(8)
		if err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint64(b), nil
	default:
		return uint64(lengthCode), nil
	}
}

func (r *FrameReader) dispatch(f Frame) {
	if r.hooks.OnFrame != nil {
		r.hooks.OnFrame(f)
	}
	switch f.Opcode {
	case OpcodeText:
		if r.hooks.OnText != nil {
			r.hooks.OnText(f.Payload)
		}
	case OpcodeBinary:
		if r.hooks.OnBinary != nil {
			r.hooks.OnBinary(f.Payload)
		}
	case OpcodePing:
		if r.hooks.OnPing != nil {
			r.hooks.OnPing(f.Payload)
		}
	case OpcodePong:
		if r.hooks.OnPong != nil {
			r.hooks.OnPong(f.Payload)
		}
	case OpcodeClose:
		code, reason, _ := ParseClosePayload(f.Payload)
		if r.hooks.OnClose != nil {
			r.hooks.OnClose(code, reason)
		}
	}
}
