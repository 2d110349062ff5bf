// Package transport provides HTTP transport implementations for the store client.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Fingerprint selects the TLS client hello presented to the store.
type Fingerprint string

const (
	// FingerprintChrome presents Chrome's TLS fingerprint. Default.
	FingerprintChrome Fingerprint = "chrome"
	// FingerprintNone uses Go's standard TLS stack.
	FingerprintNone Fingerprint = "none"
)

// ParseFingerprint maps a config value onto a Fingerprint.
// Empty selects chrome.
func ParseFingerprint(s string) (Fingerprint, error) {
	switch Fingerprint(strings.ToLower(strings.TrimSpace(s))) {
	case "", FingerprintChrome:
		return FingerprintChrome, nil
	case FingerprintNone:
		return FingerprintNone, nil
	default:
		return "", fmt.Errorf("unknown TLS fingerprint %q (want chrome or none)", s)
	}
}

// New returns the round tripper for fp.
func New(fp Fingerprint, timeout time.Duration) http.RoundTripper {
	if fp == FingerprintNone {
		return NewStandardTransport(timeout)
	}
	return NewChromeTransport(timeout)
}

// NewStandardTransport returns a cloned default transport with dial and
// handshake timeouts applied.
func NewStandardTransport(timeout time.Duration) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: timeout}).DialContext
	t.TLSHandshakeTimeout = timeout
	return t
}

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Many WordPress hosts sit behind CDNs/WAFs that rate-limit or challenge
// clients with Go's default TLS fingerprint. A long catalog walk makes
// hundreds of sequential requests, so it is an easy target.
//
// This transport uses uTLS to present a Chrome-like TLS fingerprint with
// full HTTP/2 support:
//
//   1. Use uTLS with HelloChrome_Auto for Chrome's TLS fingerprint
//   2. Let ALPN negotiate naturally (h2, http/1.1)
//   3. Use Go's http2.Transport for HTTP/2 framing when negotiated
//
// Plain http:// URLs (local stores, tests) skip TLS and go over HTTP/1.1.
// =============================================================================

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint to upstream servers. Supports both HTTP/2 and HTTP/1.1 based on
// ALPN negotiation.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	h1Transport := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

// chromeTransport wraps HTTP/2 and HTTP/1.1 transports with Chrome TLS fingerprint.
type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip implements http.RoundTripper.
// Plain http goes straight to HTTP/1.1. For https, tries HTTP/2 first and
// falls back to HTTP/1.1 if the server doesn't support h2.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	// The h2 attempt may have consumed the body.
	if req.Body != nil && req.GetBody != nil {
		body, berr := req.GetBody()
		if berr != nil {
			return nil, berr
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConfig := &utls.Config{
		ServerName: host,
	}
	tlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_Auto)

	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
