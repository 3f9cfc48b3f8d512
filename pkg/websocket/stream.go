package websocket

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// ParserContext is the pull side of the [Stream] pump. A [ParserFunc] asks
// it for exact byte counts with Read; the call suspends until that many
// bytes have arrived from the transport.
//
// This is the Go realization of the coroutine-style parser the wire
// protocol was originally built around: rather than a hand-rolled tagged
// state machine (ReadingHeader, ReadingExtLen, ...), ParserFunc runs on its
// own goroutine and blocks on Read, which is exactly what a generator's
// `yield` does in languages that have one. The goroutine IS the suspended
// computation; there is no separate state to thread through.
type ParserContext struct {
	r *bufio.Reader
}

// Read returns exactly n bytes from the stream, blocking until they are
// available. It returns io.ErrUnexpectedEOF if the stream ends with fewer
// than n bytes left, or io.EOF if it ends with none at all.
func (c *ParserContext) Read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ParserFunc parses one complete unit of work (one frame) from ctx and
// returns it. [Stream] re-invokes it in a loop for as long as the stream
// stays open, so it is not responsible for looping itself.
type ParserFunc func(ctx *ParserContext) (Frame, error)

// Stream is the "coroutine pump" of spec.md §4.1: it decouples bytes
// arriving from a transport, in arbitrary-sized chunks, from a parser that
// wants to consume them in exact-sized pulls. Bytes pushed in with
// FeedBytes flow through an [io.Pipe] to a [ParserContext] that the
// installed [ParserFunc] reads from on a dedicated goroutine.
//
// A Stream also forwards outbound bytes to the transport via the write
// function given to [NewStream]. Stream does not open or close
// connections; it is handed byte-in/byte-out callbacks by its owner,
// consistent with the transport being an out-of-scope external
// collaborator.
type Stream struct {
	pw *io.PipeWriter
	pr *io.PipeReader

	transportWrite func([]byte) error

	onFrame func(Frame)
	onError func(error)

	closeOnce sync.Once
	closed    chan struct{}
}

// NewStream creates a Stream that writes outbound bytes with write.
func NewStream(write func([]byte) error) *Stream {
	pr, pw := io.Pipe()
	return &Stream{
		pw:             pw,
		pr:             pr,
		transportWrite: write,
		closed:         make(chan struct{}),
	}
}

// SetParser installs parse as the stream's frame parser and starts the
// goroutine that drives it. OnFrame is called, in wire order, for each
// frame parse successfully produces. OnError is called at most once, when
// parse returns a non-nil error (including io.EOF/io.ErrUnexpectedEOF for
// an unexpected transport close); the pump goroutine exits afterward.
//
// SetParser must be called exactly once, before the first call to
// FeedBytes.
func (s *Stream) SetParser(parse ParserFunc, onFrame func(Frame), onError func(error)) {
	s.onFrame = onFrame
	s.onError = onError
	ctx := &ParserContext{r: bufio.NewReader(s.pr)}
	go s.pump(ctx, parse)
}

// pump repeatedly invokes parse until it fails. It never runs concurrently
// with itself, so onFrame and onError observe frames in wire order without
// extra locking.
func (s *Stream) pump(ctx *ParserContext, parse ParserFunc) {
	for {
		frame, err := parse(ctx)
		if err != nil {
			if s.onError != nil {
				s.onError(err)
			}
			return
		}
		if s.onFrame != nil {
			s.onFrame(frame)
		}
	}
}

// FeedBytes appends chunk to the stream's input. It blocks until the
// parser goroutine has consumed every byte of chunk, which is what gives
// callers the "drive the parser as far as it can go" behavior spec.md
// describes: the pipe's Write does not return until a Read on the other
// end has accepted the data.
//
// FeedBytes must not be called from inside onFrame or onError; doing so
// would deadlock, since the pump goroutine that would consume the bytes is
// the same one invoking the callback.
func (s *Stream) FeedBytes(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	_, err := s.pw.Write(chunk)
	return err
}

// FeedEOF marks the end of input. Any parser blocked in Read wakes up
// with io.EOF or io.ErrUnexpectedEOF.
func (s *Stream) FeedEOF() {
	s.closeOnce.Do(func() {
		_ = s.pw.CloseWithError(io.EOF)
		close(s.closed)
	})
}

// Write hands bytes to the transport. In this implementation the
// underlying write is a synchronous call to the transport (ultimately
// net.Conn.Write through an *http.Client-dialed connection), so there is
// no separate buffering layer inside Stream.
func (s *Stream) Write(b []byte) error {
	return s.transportWrite(b)
}

// WaitUntilDrained returns once the transport is ready to accept more
// data. Go's synchronous net.Conn.Write already blocks until the
// kernel's send buffer accepts the write, which is the backpressure
// signal spec.md describes; this method exists to preserve the pump's
// public contract for transports that might someday buffer asynchronously,
// and is presently a no-op.
func (s *Stream) WaitUntilDrained() {}

// WaitUntilClosed blocks until the stream has been torn down, either by
// FeedEOF reaching end of input or by Close.
func (s *Stream) WaitUntilClosed() {
	<-s.closed
}

// Close tears the stream down, releasing any goroutine blocked in Read.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.pw.CloseWithError(errors.New("websocket: stream closed"))
		close(s.closed)
	})
	return err
}
