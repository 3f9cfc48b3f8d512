package websocket

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectionState describes where a [Conn] is in its lifecycle, per
// spec.md §3.
type ConnectionState int32

const (
	// StateConnecting is the state from [Dial] being called until the
	// handshake response has been validated.
	StateConnecting ConnectionState = iota
	// StateOpen is the state from a successful handshake until either
	// side begins the close handshake.
	StateOpen
	// StateClosing is the state between a Close frame being sent or
	// received and the transport actually closing.
	StateClosing
	// StateClosed is the terminal state: the transport is gone.
	StateClosed
)

// String returns the state's name.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Message carries the data of one received data frame, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6.
// Fragmentation reassembly across frames is not implemented; a Message
// corresponds to exactly one Text or Binary frame, whatever its fin bit.
// Continuation frames are not delivered as Messages; they reach only
// [Handler.OnFrame].
type Message struct {
	Opcode Opcode
	Data   []byte
}

// Handler receives connection lifecycle and frame events from a [Conn].
// All methods have a default no-op implementation via [NoopHandler], so
// callers only need to implement the ones they care about.
type Handler interface {
	OnOpen()
	OnText(data []byte)
	OnBinary(data []byte)
	OnPing(data []byte)
	OnPong(data []byte)
	OnClose(code StatusCode, reason string)
	OnFrame(f Frame)
}

// NoopHandler implements [Handler] with no-ops. Embed it to implement
// only the events you care about.
type NoopHandler struct{}

func (NoopHandler) OnOpen()                                {}
func (NoopHandler) OnText(data []byte)                     {}
func (NoopHandler) OnBinary(data []byte)                   {}
func (NoopHandler) OnPing(data []byte)                     {}
func (NoopHandler) OnPong(data []byte)                     {}
func (NoopHandler) OnClose(code StatusCode, reason string) {}
func (NoopHandler) OnFrame(f Frame)                        {}

// internalMessage synchronizes concurrent calls that want to send a
// frame, funneling them through the single writeMessages goroutine so
// that frame emission on one connection never interleaves.
type internalMessage struct {
	frame Frame
	err   chan<- error
}

// Conn is an open client connection to a WebSocket server, after a
// successful handshake. Construct one with [Dial].
type Conn struct {
	logger *slog.Logger
	closer io.ReadWriteCloser

	stream *Stream
	reader *FrameReader
	writer *FrameWriter

	incoming chan Message
	outgoing chan internalMessage

	handler Handler

	state atomic.Int32

	closeSentMu sync.Mutex
	closeSent   bool
	closeDone   chan struct{}

	teardownOnce sync.Once
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *Conn) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

// IncomingMessages returns the channel on which data [Message]s (Text or
// Binary frames) are published as they're received. The channel is
// closed once the connection reaches [StateClosed].
func (c *Conn) IncomingMessages() <-chan Message {
	return c.incoming
}

// WaitUntilClosed blocks until the connection has fully closed.
func (c *Conn) WaitUntilClosed() {
	<-c.closeDone
}

func newConn(logger *slog.Logger, closer io.ReadWriteCloser, handler Handler, maxLen int64) *Conn {
	if handler == nil {
		handler = NoopHandler{}
	}
	c := &Conn{
		logger:    logger,
		closer:    closer,
		incoming:  make(chan Message),
		outgoing:  make(chan internalMessage),
		handler:   handler,
		closeDone: make(chan struct{}),
	}
	c.setState(StateOpen)

	c.stream = NewStream(func(b []byte) error {
		_, err := closer.Write(b)
		return err
	})
	c.writer = NewFrameWriter(c.stream)
	c.reader = NewFrameReader(Hooks{
		OnText:   func(data []byte) { c.dispatchMessage(Message{Opcode: OpcodeText, Data: data}) },
		OnBinary: func(data []byte) { c.dispatchMessage(Message{Opcode: OpcodeBinary, Data: data}) },
		OnPing:   c.onPing,
		OnPong:   c.onPong,
		OnClose:  c.onClose,
		OnFrame:  c.handler.OnFrame,
	})
	if maxLen > 0 {
		c.reader.SetMaxPayloadLength(maxLen)
	}

	c.stream.SetParser(c.reader.Read, nil, c.onStreamError)

	go c.writeMessages()
	go func() {
		c.handler.OnOpen()
	}()

	return c
}

func (c *Conn) dispatchMessage(m Message) {
	if c.State() != StateOpen {
		return
	}
	c.incoming <- m
	switch m.Opcode {
	case OpcodeText:
		c.handler.OnText(m.Data)
	case OpcodeBinary:
		c.handler.OnBinary(m.Data)
	}
}

// onPing answers a received Ping with a Pong before anything else is
// allowed to be written, satisfying spec.md §8 property 10. Since both
// this and any application-initiated send go through sendFrame (which
// itself funnels through the single outgoing channel), queuing the Pong
// here — synchronously, before returning control to the reader pump — is
// enough to guarantee it's enqueued ahead of whatever the application
// sends next.
func (c *Conn) onPing(data []byte) {
	c.handler.OnPing(data)
	if err := c.sendFrame(Frame{Fin: true, Opcode: OpcodePong, Payload: data}); err != nil {
		c.logger.Error("failed to send automatic pong", slog.Any("error", err))
	}
}

func (c *Conn) onPong(data []byte) {
	c.handler.OnPong(data)
}

// onClose implements the receiving side of the close protocol
// (spec.md §4.5): echo the peer's code and reason back (or code 1000 with
// no reason, if the peer sent neither), then tear down the transport.
func (c *Conn) onClose(code StatusCode, reason string) {
	echoCode := code
	echoReason := reason
	if echoCode == StatusNotReceived {
		echoCode = StatusNormalClosure
		echoReason = ""
	}
	c.setState(StateClosing)
	c.sendCloseFrame(echoCode, echoReason)
	c.handler.OnClose(code, reason)
	c.teardown()
}

// onStreamError is invoked by the Stream pump when the parser fails:
// either a tagged [ProtocolError] from malformed input, or a transport
// error/EOF.
func (c *Conn) onStreamError(err error) {
	if c.State() == StateClosed {
		return
	}
	if pe, ok := asProtocolError(err); ok {
		c.logger.Error("WebSocket protocol error", slog.Any("error", pe))
		c.setState(StateClosing)
		c.sendCloseFrame(pe.Code, pe.Reason)
		c.handler.OnClose(pe.Code, pe.Reason)
		c.teardown()
		return
	}

	// Transport error or EOF: abnormal closure, no wire emission.
	c.logger.Debug("WebSocket transport closed", slog.Any("error", err))
	c.handler.OnClose(StatusAbnormalClosure, "")
	c.teardown()
}

// teardown tears the connection down exactly once, however it's reached:
// the pump goroutine (on a peer-initiated close or a stream error) and a
// caller of Close racing its grace-period timeout can both call it
// concurrently.
func (c *Conn) teardown() {
	c.teardownOnce.Do(func() {
		c.setState(StateClosed)
		_ = c.closer.Close()
		close(c.incoming)
		close(c.closeDone)
	})
}

// writeMessages runs as a dedicated goroutine, serializing every frame
// send over the connection's single underlying transport. It exits once
// the connection tears down, which is signaled by closeDone rather than
// by closing outgoing: a concurrent sendFrame could otherwise race with
// teardown and panic on a send to a closed channel.
func (c *Conn) writeMessages() {
	for {
		select {
		case m := <-c.outgoing:
			m.err <- c.writer.WriteFrame(m.frame)
			close(m.err)
		case <-c.closeDone:
			return
		}
	}
}

// sendFrame enqueues f for the write goroutine and waits for the result.
// Both the enqueue and the wait also watch closeDone, so a connection
// that tears down while a send is in flight fails the send instead of
// blocking forever.
func (c *Conn) sendFrame(f Frame) error {
	if c.State() == StateClosed {
		return ErrConnectionClosed
	}
	errCh := make(chan error, 1)
	select {
	case c.outgoing <- internalMessage{frame: f, err: errCh}:
	case <-c.closeDone:
		return ErrConnectionClosed
	}
	select {
	case err := <-errCh:
		return err
	case <-c.closeDone:
		return ErrConnectionClosed
	}
}

// SendText sends a Text data frame.
func (c *Conn) SendText(data string) error {
	return c.sendFrame(Frame{Fin: true, Opcode: OpcodeText, Payload: []byte(data)})
}

// SendBinary sends a Binary data frame.
func (c *Conn) SendBinary(data []byte) error {
	return c.sendFrame(Frame{Fin: true, Opcode: OpcodeBinary, Payload: data})
}

// Ping sends a Ping control frame.
func (c *Conn) Ping(data []byte) error {
	return c.sendFrame(Frame{Fin: true, Opcode: OpcodePing, Payload: data})
}

// Pong sends an unsolicited Pong control frame.
func (c *Conn) Pong(data []byte) error {
	return c.sendFrame(Frame{Fin: true, Opcode: OpcodePong, Payload: data})
}

// closeGracePeriod bounds how long Close waits for the peer to complete
// the close handshake, per the recommended timeout in spec.md §4.5/§5.
// A peer that never echoes the Close frame would otherwise leave the
// caller blocked on WaitUntilClosed forever.
const closeGracePeriod = 30 * time.Second

// Close initiates the close handshake (spec.md §4.5): it sends a Close
// frame with the given status and reason, and waits for the transport
// to tear down (either because the peer echoes the Close, or because
// reading fails afterward), up to closeGracePeriod. If the peer never
// responds, Close tears the transport down itself once the grace period
// elapses. Calling Close more than once is a no-op after the first call.
func (c *Conn) Close(status StatusCode, reason string) error {
	if c.State() == StateClosed {
		return nil
	}
	c.setState(StateClosing)
	err := c.sendCloseFrame(status, reason)

	select {
	case <-c.closeDone:
	case <-time.After(closeGracePeriod):
		c.teardown()
	}
	return err
}

// sendCloseFrame sends a Close frame at most once per connection.
func (c *Conn) sendCloseFrame(status StatusCode, reason string) error {
	c.closeSentMu.Lock()
	if c.closeSent {
		c.closeSentMu.Unlock()
		return nil
	}
	c.closeSent = true
	c.closeSentMu.Unlock()

	return c.sendFrame(Frame{Fin: true, Opcode: OpcodeClose, Payload: FormatClosePayload(status, reason)})
}
