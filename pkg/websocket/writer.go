package websocket

import "encoding/binary"

// FrameWriter serializes Frame values and hands the resulting bytes to a
// [Stream]. It implements the RFC 6455 §5.2 framing algorithm in reverse
// of [FrameReader].
type FrameWriter struct {
	stream *Stream
	// mask controls whether outbound frames are masked. RFC 6455 §5.3
	// requires every client-to-server frame to be masked; this field is
	// kept unexported with Dial always constructing a masking writer, so
	// that only test code (in this package) can build an unmasked one.
	mask bool
}

// NewFrameWriter returns a writer that masks every outbound frame, as
// RFC 6455 requires of a client.
func NewFrameWriter(s *Stream) *FrameWriter {
	return newFrameWriter(s, true)
}

// newFrameWriter is the unexported constructor that lets this package's
// own tests build an unmasked writer, for round-tripping frames without
// the mask key's randomness getting in the way of comparison.
func newFrameWriter(s *Stream, mask bool) *FrameWriter {
	return &FrameWriter{stream: s, mask: mask}
}

// WriteFrame validates f and writes its wire representation to the
// underlying stream.
func (w *FrameWriter) WriteFrame(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	var b0 byte
	if f.Fin {
		b0 |= 0x80
	}
	if f.RSV1 {
		b0 |= 0x40
	}
	if f.RSV2 {
		b0 |= 0x20
	}
	if f.RSV3 {
		b0 |= 0x10
	}
	b0 |= byte(f.Opcode) & 0x0F

	payload := f.Payload
	length := len(payload)

	buf := make([]byte, 0, 14+length)
	buf = append(buf, b0)

	switch {
	case length < 126:
		buf = append(buf, w.lengthByte(byte(length)))
	case length < 1<<16:
		buf = append(buf, w.lengthByte(126))
		buf = binary.BigEndian.AppendUint16(buf, uint16(length))
	default:
		buf = append(buf, w.lengthByte(127))
		buf = binary.BigEndian.AppendUint64(buf, uint64(length))
	}

	if w.mask {
		key, err := newMaskingKey()
		if err != nil {
			return err
		}
		buf = append(buf, key[:]...)
		masked := make([]byte, length)
		copy(masked, payload)
		applyMask(key, masked)
		buf = append(buf, masked...)
	} else {
		buf = append(buf, payload...)
	}

	if err := w.stream.Write(buf); err != nil {
		return err
	}
	w.stream.WaitUntilDrained()
	return nil
}

func (w *FrameWriter) lengthByte(lengthCode byte) byte {
	if w.mask {
		return lengthCode | 0x80
	}
	return lengthCode
}

// SendText writes an unfragmented Text frame.
func (w *FrameWriter) SendText(data string) error {
	return w.WriteFrame(Frame{Fin: true, Opcode: OpcodeText, Payload: []byte(data)})
}

// SendBinary writes an unfragmented Binary frame.
func (w *FrameWriter) SendBinary(data []byte) error {
	return w.WriteFrame(Frame{Fin: true, Opcode: OpcodeBinary, Payload: data})
}

// SendPing writes a Ping control frame.
func (w *FrameWriter) SendPing(data []byte) error {
	return w.WriteFrame(Frame{Fin: true, Opcode: OpcodePing, Payload: data})
}

// SendPong writes a Pong control frame.
func (w *FrameWriter) SendPong(data []byte) error {
	return w.WriteFrame(Frame{Fin: true, Opcode: OpcodePong, Payload: data})
}

// SendClose writes a Close control frame carrying status and reason.
func (w *FrameWriter) SendClose(status StatusCode, reason string) error {
	return w.WriteFrame(Frame{Fin: true, Opcode: OpcodeClose, Payload: FormatClosePayload(status, reason)})
}
