package websocket

import (
	"io"
	"testing"
)

func TestStreamFeedEOFUnblocksParser(t *testing.T) {
	done := make(chan error, 1)
	s := NewStream(func([]byte) error { return nil })
	s.SetParser(func(ctx *ParserContext) (Frame, error) {
		_, err := ctx.Read(10)
		return Frame{}, err
	}, nil, func(err error) { done <- err })

	s.FeedEOF()

	err := <-done
	if err != io.EOF && err != io.ErrUnexpectedEOF {
		t.Errorf("got %v, want io.EOF or io.ErrUnexpectedEOF", err)
	}
}

func TestStreamWriteForwardsToTransport(t *testing.T) {
	var got []byte
	s := NewStream(func(b []byte) error {
		got = append(got, b...)
		return nil
	})
	if err := s.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("transport received %q, want %q", got, "hello")
	}
}

func TestStreamClosedUnblocksWaiters(t *testing.T) {
	s := NewStream(func([]byte) error { return nil })
	waitDone := make(chan struct{})
	go func() {
		s.WaitUntilClosed()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		t.Fatal("WaitUntilClosed returned before Close was called")
	default:
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	<-waitDone
}
