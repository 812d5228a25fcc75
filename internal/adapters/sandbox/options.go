package sandbox

import (
	"net/http"
	"time"

	"github.com/okian/codequest/pkg/logger"
)

// Option applies a configuration option to the Proxy.
type Option func(*Proxy)

// WithTimeout bounds every backend round trip.
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMaxInFlight caps concurrent backend calls.
func WithMaxInFlight(n int) Option {
	return func(p *Proxy) {
		if n > 0 {
			p.inFlight = int64(n)
		}
	}
}

// WithPayloadLimits caps source and stdin sizes in bytes.
func WithPayloadLimits(maxSource, maxStdin int) Option {
	return func(p *Proxy) {
		if maxSource > 0 {
			p.maxSource = maxSource
		}
		if maxStdin > 0 {
			p.maxStdin = maxStdin
		}
	}
}

// WithLogger sets the proxy logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Proxy) {
		if l != nil {
			p.log = l
		}
	}
}

// ClientOption configures a backend HTTP client.
type ClientOption func(*httpClient)

// WithHTTPClient replaces the backend's *http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *httpClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithMaxResponseBytes bounds how much of a backend response is read.
func WithMaxResponseBytes(n int64) ClientOption {
	return func(h *httpClient) {
		if n > 0 {
			h.maxResponse = n
		}
	}
}
