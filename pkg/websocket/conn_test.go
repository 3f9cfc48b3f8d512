package websocket

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

// newConnPair wires a Conn to one end of an in-memory net.Pipe, letting
// tests drive it as a fake server without a real HTTP handshake. It also
// starts the same transport-to-stream feed goroutine Dial normally sets
// up, since newConn itself only wires the write direction.
func newConnPair(handler Handler) (*Conn, net.Conn) {
	clientSide, serverSide := net.Pipe()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := newConn(logger, clientSide, handler, 0)
	go feedFromTransport(clientSide, c.stream, logger)
	return c, serverSide
}

func readWithTimeout(t *testing.T, r net.Conn, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	r.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("reading %d bytes from the fake server side: %v", n, err)
	}
	return buf
}

func TestConnAutoPong(t *testing.T) {
	c, server := newConnPair(nil)
	defer c.Close(StatusNormalClosure, "")
	// Deferred calls run last-in first-out: closing the fake server first
	// unblocks the rest of the Pong write (net.Pipe has no buffering), so
	// the deferred Close can complete.
	defer server.Close()

	pingWire, err := serializeFrame(Frame{Fin: true, Opcode: OpcodePing, Payload: []byte("ping-data")}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := server.Write(pingWire); err != nil {
		t.Fatal(err)
	}

	header := readWithTimeout(t, server, 2)
	if Opcode(header[0]&0x0F) != OpcodePong {
		t.Fatalf("opcode = %v, want Pong", Opcode(header[0]&0x0F))
	}
}

func TestConnCloseEcho(t *testing.T) {
	type closeEvent struct {
		code   StatusCode
		reason string
	}
	events := make(chan closeEvent, 1)

	handler := &recordingHandler{onClose: func(code StatusCode, reason string) {
		events <- closeEvent{code, reason}
	}}

	c, server := newConnPair(handler)

	closeWire, err := serializeFrame(Frame{Fin: true, Opcode: OpcodeClose, Payload: FormatClosePayload(StatusNormalClosure, "bye")}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := server.Write(closeWire); err != nil {
		t.Fatal(err)
	}

	// The client must echo exactly one Close frame back, carrying the
	// same code and reason it received. onClose writes the echo before it
	// calls OnClose, and net.Pipe has no buffering, so the echo is read
	// off the wire first.
	header := readWithTimeout(t, server, 2)
	if Opcode(header[0]&0x0F) != OpcodeClose {
		t.Fatalf("opcode = %v, want Close", Opcode(header[0]&0x0F))
	}
	masked := header[1]&0x80 != 0
	length := int(header[1] & 0x7F)
	if !masked || length > maxControlPayload {
		t.Fatalf("unexpected close-echo header % x", header)
	}
	key := readWithTimeout(t, server, 4)
	payload := readWithTimeout(t, server, length)
	var k [4]byte
	copy(k[:], key)
	applyMask(k, payload)

	echoCode, echoReason, err := ParseClosePayload(payload)
	if err != nil {
		t.Fatalf("echoed close payload: %v", err)
	}
	if echoCode != StatusNormalClosure || echoReason != "bye" {
		t.Errorf("echoed close = (%v, %q), want (%v, %q)", echoCode, echoReason, StatusNormalClosure, "bye")
	}

	select {
	case ev := <-events:
		if ev.code != StatusNormalClosure || ev.reason != "bye" {
			t.Errorf("OnClose(%v, %q), want (%v, %q)", ev.code, ev.reason, StatusNormalClosure, "bye")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}

	c.WaitUntilClosed()
	if c.State() != StateClosed {
		t.Errorf("state = %v, want Closed", c.State())
	}
}

// recordingHandler implements Handler by delegating only the callbacks
// tests care about to function fields, defaulting everything else to a
// no-op via the embedded NoopHandler.
type recordingHandler struct {
	NoopHandler
	onClose func(code StatusCode, reason string)
}

func (h *recordingHandler) OnClose(code StatusCode, reason string) {
	if h.onClose != nil {
		h.onClose(code, reason)
	}
}

func TestConnSendTextAfterClosedFails(t *testing.T) {
	c, server := newConnPair(nil)
	_ = server.Close()
	c.WaitUntilClosed()

	if err := c.SendText("hi"); err == nil {
		t.Error("expected SendText on a closed connection to fail")
	}
}
