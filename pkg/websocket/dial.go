package websocket

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/lithammer/shortuuid/v4"
)

var defaultClient = adjustHTTPClient(*http.DefaultClient)

// feedBufferSize is how many bytes Dial's transport-reading goroutine
// pulls from the connection at a time before handing them to the Stream.
const feedBufferSize = 4096

// Dial performs the WebSocket opening handshake against wsURL
// ("ws://..." or "wss://...") and, on success, returns an open [Conn].
//
// Dial never opens a raw socket itself: it sends the handshake as an
// ordinary [http.Request] through an [http.Client] and then reinterprets
// the 101 response's body as an [io.ReadWriteCloser], the same
// connection the HTTP round trip was made on. Everything from that point
// on — frame parsing, writing, the close protocol — runs over that
// interface.
//
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.1
func Dial(ctx context.Context, wsURL string, handler Handler, opts ...DialOpt) (*Conn, error) {
	logger := slog.Default().With(slog.String("conn_id", shortuuid.New()))
	cfg := &dialConfig{
		headers: http.Header{},
		logger:  logAdapter{logf: func(format string, args ...any) { logger.Warn(fmt.Sprintf(format, args...)) }},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.client == nil {
		cfg.client = defaultClient
	} else {
		cfg.client = adjustHTTPClient(*cfg.client)
	}

	nonce, err := newClientKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate WebSocket handshake nonce: %w", err)
	}

	req, err := handshakeRequest(ctx, wsURL, cfg.headers, nonce)
	if err != nil {
		return nil, err
	}

	resp, err := cfg.client.Do(req)
	if err != nil {
		return nil, &HandshakeError{Reason: "failed to send handshake request", Err: err}
	}
	if err := checkHandshakeResponse(resp, nonce); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		_ = resp.Body.Close()
		return nil, &HandshakeError{Reason: fmt.Sprintf("handshake response body type %T is not an io.ReadWriteCloser", resp.Body)}
	}

	logger.Debug("WebSocket connection open", slog.String("url", wsURL))

	c := newConn(logger, rwc, handler, cfg.maxLen)
	go feedFromTransport(rwc, c.stream, logger)

	return c, nil
}

// feedFromTransport runs as its own goroutine for the lifetime of the
// connection, reading raw bytes off the transport and pushing them into
// the Stream pump. It is the one piece of plumbing spec.md leaves to
// "the event-loop / I/O driver" collaborator; here that collaborator is
// just a blocking read loop, since Go connections are already
// synchronous.
func feedFromTransport(r io.Reader, s *Stream, logger *slog.Logger) {
	br := bufio.NewReaderSize(r, feedBufferSize)
	buf := make([]byte, feedBufferSize)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			if ferr := s.FeedBytes(buf[:n]); ferr != nil {
				logger.Debug("WebSocket stream feed stopped", slog.Any("error", ferr))
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.Debug("WebSocket transport read error", slog.Any("error", err))
			}
			s.FeedEOF()
			return
		}
	}
}
