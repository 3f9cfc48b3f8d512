package websocket

import (
	"bytes"
	"sync"
)

// collectingStream is a test fixture that captures everything written to
// it instead of forwarding to a real transport, and exposes FeedBytes
// directly for driving a [FrameReader] in controlled chunk sizes.
type collectingStream struct {
	mu  sync.Mutex
	buf bytes.Buffer
	*Stream
}

func newCollectingStream() *collectingStream {
	cs := &collectingStream{}
	cs.Stream = NewStream(func(b []byte) error {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		cs.buf.Write(b)
		return nil
	})
	return cs
}

func (cs *collectingStream) written() []byte {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]byte(nil), cs.buf.Bytes()...)
}

// serializeFrame writes f through an unmasked (or masked) FrameWriter and
// returns the resulting wire bytes, without needing a live Conn.
func serializeFrame(f Frame, mask bool) ([]byte, error) {
	cs := newCollectingStream()
	w := newFrameWriter(cs.Stream, mask)
	if err := w.WriteFrame(f); err != nil {
		return nil, err
	}
	return cs.written(), nil
}

// parseFrames feeds wire into a fresh FrameReader, chunkSize bytes at a
// time (chunkSize <= 0 means "all at once"), and returns every frame
// dispatched through OnFrame, in order. It also returns the first error
// the pump observed, if any (e.g. EOF after the last frame).
func parseFrames(wire []byte, chunkSize int) ([]Frame, error) {
	var mu sync.Mutex
	var frames []Frame
	var firstErr error
	done := make(chan struct{})

	s := NewStream(func([]byte) error { return nil })
	reader := NewFrameReader(Hooks{
		OnFrame: func(f Frame) {
			mu.Lock()
			frames = append(frames, f)
			mu.Unlock()
		},
	})
	s.SetParser(reader.Read, nil, func(err error) {
		mu.Lock()
		firstErr = err
		mu.Unlock()
		close(done)
	})

	if chunkSize <= 0 {
		chunkSize = len(wire)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}

	// Feed on a separate goroutine: if the parser rejects the input
	// partway through, the pump stops consuming and a direct call to
	// FeedBytes from this goroutine would block forever on the
	// remaining chunks.
	go func() {
		for i := 0; i < len(wire); i += chunkSize {
			end := i + chunkSize
			if end > len(wire) {
				end = len(wire)
			}
			if err := s.FeedBytes(wire[i:end]); err != nil {
				return
			}
		}
		s.FeedEOF()
	}()
	<-done

	mu.Lock()
	defer mu.Unlock()
	return frames, firstErr
}
