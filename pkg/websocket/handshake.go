package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/http/httpguts"
)

// DialOpt configures a [Conn] before [Dial] performs its handshake.
type DialOpt func(*dialConfig)

type dialConfig struct {
	client  *http.Client
	headers http.Header
	logger  logAdapter
	maxLen  int64
}

// WithHTTPClient lets callers of [Dial] specify a custom [http.Client] for
// the WebSocket handshake, instead of [http.DefaultClient].
//
// Do not set a Timeout on the client: it would apply to the whole
// lifetime of the resulting connection, not just the handshake. Use
// [context.WithTimeout] with the context passed to [Dial] instead.
func WithHTTPClient(hc *http.Client) DialOpt {
	return func(c *dialConfig) {
		c.client = hc
	}
}

// WithHTTPHeader adds a single HTTP header to the handshake request. Use
// [WithHTTPHeaders] to add several at once.
func WithHTTPHeader(key, value string) DialOpt {
	return func(c *dialConfig) {
		c.headers.Add(key, value)
	}
}

// WithHTTPHeaders adds multiple HTTP headers to the handshake request.
func WithHTTPHeaders(hs http.Header) DialOpt {
	return func(c *dialConfig) {
		for k, vs := range hs {
			for _, v := range vs {
				c.headers.Add(k, v)
			}
		}
	}
}

// WithJWTAuth signs a JWT with the given signing method and key, and
// attaches it to the handshake request as a bearer token. This is for
// servers that gate their WebSocket Upgrade behind the same
// Authorization header a normal HTTP API would require, since the
// Upgrade request is plain HTTP until the 101 response arrives.
func WithJWTAuth(claims jwt.Claims, method jwt.SigningMethod, key any) DialOpt {
	return func(c *dialConfig) {
		token := jwt.NewWithClaims(method, claims)
		signed, err := token.SignedString(key)
		if err != nil {
			c.logger.logf("failed to sign JWT for WebSocket handshake: %v", err)
			return
		}
		c.headers.Set("Authorization", "Bearer "+signed)
	}
}

// WithMaxPayloadLength overrides [DefaultMaxPayloadLength] for the
// resulting connection's receive path.
func WithMaxPayloadLength(n int64) DialOpt {
	return func(c *dialConfig) {
		c.maxLen = n
	}
}

// logAdapter is the minimal logging surface dialConfig needs before a
// *slog.Logger has necessarily been attached to the Conn it's building.
type logAdapter struct {
	logf func(format string, args ...any)
}

// adjustHTTPClient returns a shallow copy of c whose CheckRedirect rewrites
// ws/wss schemes to http/https on the way through, so redirects during the
// handshake don't trip up the standard transport's scheme validation.
func adjustHTTPClient(c http.Client) *http.Client {
	orig := c.CheckRedirect
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		switch req.URL.Scheme {
		case "ws":
			req.URL.Scheme = "http"
		case "wss":
			req.URL.Scheme = "https"
		}
		if orig != nil {
			return orig(req, via)
		}
		return nil
	}
	return &c
}

// handshakeRequest builds the client's opening HTTP request, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.1.
func handshakeRequest(ctx context.Context, wsURL string, headers http.Header, nonce string) (*http.Request, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, &HandshakeError{Reason: "invalid WebSocket URL", Err: err}
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
		// Already an HTTP(S) scheme; allow it through unchanged.
	default:
		return nil, &HandshakeError{Reason: fmt.Sprintf("unsupported WebSocket URL scheme %q", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &HandshakeError{Reason: "failed to build handshake request", Err: err}
	}

	req.Header = headers.Clone()
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", nonce)
	req.Header.Set("Sec-WebSocket-Version", "13")

	return req, nil
}

// checkHandshakeResponse validates the server's response against
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2.
func checkHandshakeResponse(resp *http.Response, nonce string) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return &HandshakeError{
			StatusCode: resp.StatusCode,
			Reason:     "server did not switch protocols",
		}
	}

	if !strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") {
		return &HandshakeError{Reason: fmt.Sprintf("unexpected Upgrade header: %q", resp.Header.Get("Upgrade"))}
	}

	if !httpguts.HeaderValuesContainsToken(resp.Header.Values("Connection"), "Upgrade") {
		return &HandshakeError{Reason: fmt.Sprintf("unexpected Connection header: %q", resp.Header.Get("Connection"))}
	}

	want := computeAcceptKey(nonce)
	if got := resp.Header.Get("Sec-WebSocket-Accept"); got != want {
		return &HandshakeError{Reason: fmt.Sprintf("Sec-WebSocket-Accept mismatch: got %q, want %q", got, want)}
	}

	return nil
}
