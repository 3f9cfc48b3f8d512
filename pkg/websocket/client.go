package websocket

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

var clients sync.Map

// URLFunc resolves the URL to dial, evaluated fresh on every (re)connect.
// This lets callers hand a [Client] a URL that embeds a short-lived token
// or is itself discovered over another API call, rather than a static
// string.
type URLFunc func(ctx context.Context) (string, error)

// Client is a long-running wrapper around connections to the same
// WebSocket server with the same identity. It normally owns a single
// [Conn]; when that connection is about to be replaced (see
// [Client.RefreshConnectionIn]) or drops unexpectedly, the client
// transparently dials a replacement so that [Client.IncomingMessages]
// never observes a gap wider than the time a fresh handshake takes.
type Client struct {
	logger  *slog.Logger
	url     URLFunc
	handler Handler
	opts    []DialOpt

	// conns[0] is the active connection; conns[1], when non-nil, is a
	// pre-warmed replacement dialed ahead of a scheduled refresh.
	conns   [2]*Conn
	inMsgs  <-chan Message
	outMsgs chan Message

	refresh *time.Timer
}

// NewOrCachedClient returns the [Client] already registered under id, or
// dials a new one and registers it. id is hashed with SHA-256 before use
// as the cache key, so callers can pass a meaningful identifier (a user
// ID, a channel name) without it being recoverable from process memory
// dumps or metrics labels.
func NewOrCachedClient(ctx context.Context, url URLFunc, id string, handler Handler, opts ...DialOpt) (*Client, error) {
	key := hashID(id)
	if c, ok := clients.Load(key); ok {
		return c.(*Client), nil //nolint:errcheck
	}

	c, err := newClient(ctx, url, handler, opts...)
	if err != nil {
		return nil, err
	}

	actual, loaded := clients.LoadOrStore(key, c)
	if loaded {
		// A different goroutine registered one first; discard ours.
		_ = c.conns[0].Close(StatusGoingAway, "superseded by a concurrently created client")
	} else {
		go c.relayMessages(ctx)
	}

	return actual.(*Client), nil //nolint:errcheck
}

func hashID(id string) string {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:])
}

func newClient(ctx context.Context, f URLFunc, handler Handler, opts ...DialOpt) (*Client, error) {
	conn, err := dialVia(ctx, f, handler, opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		logger:  slog.Default(),
		url:     f,
		handler: handler,
		opts:    opts,
		conns:   [2]*Conn{conn},
		inMsgs:  conn.IncomingMessages(),
		outMsgs: make(chan Message),
	}, nil
}

func dialVia(ctx context.Context, f URLFunc, handler Handler, opts ...DialOpt) (*Conn, error) {
	u, err := f(ctx)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, u, handler, opts...)
}

// relayMessages runs as a [Client] goroutine, forwarding data [Message]s
// from the active [Conn] to the client's own subscriber channel, and
// replacing the connection whenever the active one's channel closes.
func (c *Client) relayMessages(ctx context.Context) {
	for {
		msg, ok := <-c.inMsgs
		if ok {
			c.outMsgs <- msg
			continue
		}
		c.replaceConn(ctx)
	}
}

// replaceConn either promotes a pre-warmed secondary connection (dialed
// ahead of time by [Client.RefreshConnectionIn]), or dials a brand new
// one with indefinite retries, and points inMsgs at its channel.
func (c *Client) replaceConn(ctx context.Context) {
	defer func() {
		c.inMsgs = c.conns[0].IncomingMessages()
	}()

	if c.conns[1] != nil {
		c.conns[0] = c.conns[1]
		c.conns[1] = nil
		return
	}

	for attempt := 0; ; attempt++ {
		conn, err := dialVia(ctx, c.url, c.handler, c.opts...)
		if err == nil {
			c.conns[0] = conn
			return
		}
		c.logger.Error("failed to replace WebSocket connection", slog.Any("error", err), slog.Int("attempt", attempt))
	}
}

// IncomingMessages returns the channel on which the client publishes
// data [Message]s as they're received, surviving reconnections.
func (c *Client) IncomingMessages() <-chan Message {
	return c.outMsgs
}

// RefreshConnectionIn schedules the client to seamlessly replace its
// active connection after d: a new connection is dialed ahead of time,
// and the old one is closed with [StatusGoingAway] once the new one is
// ready, so [IncomingMessages] sees no gap.
func (c *Client) RefreshConnectionIn(ctx context.Context, d time.Duration) {
	if c.refresh != nil {
		c.refresh.Stop()
	}

	c.refresh = time.AfterFunc(d, func() {
		c.refresh = nil

		conn, err := dialVia(ctx, c.url, c.handler, c.opts...)
		if err != nil {
			c.logger.Error("failed to pre-dial replacement WebSocket connection", slog.Any("error", err))
			return
		}

		c.conns[1] = conn
		_ = c.conns[0].Close(StatusGoingAway, "connection refresh")
	})
}

// SendJSONMessage marshals v as JSON and sends it as a Text message.
func (c *Client) SendJSONMessage(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.conns[0].SendText(string(b))
}

// SendText sends a Text message over the client's active connection.
func (c *Client) SendText(data string) error {
	return c.conns[0].SendText(data)
}

// SendBinary sends a Binary message over the client's active connection.
func (c *Client) SendBinary(data []byte) error {
	return c.conns[0].SendBinary(data)
}

// Close closes the client's active connection.
func (c *Client) Close(status StatusCode, reason string) error {
	if c.refresh != nil {
		c.refresh.Stop()
	}
	return c.conns[0].Close(status, reason)
}
