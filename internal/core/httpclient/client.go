// Package httpclient configures the HTTP client used to fetch layer sources.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// UserAgent identifies layer fetches to upstream map servers.
const UserAgent = "layer-ingest/1"

type uaTransport struct {
	next http.RoundTripper
}

func (t uaTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", UserAgent)
	return t.next.RoundTrip(r)
}

// NewOutbound creates the client used for layer fetches. A zero timeout
// leaves the request bounded only by its context. Layer sources are few
// hosts serving large bodies, so idle connections are kept per host and the
// header wait is capped separately from the body transfer.
func NewOutbound(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 45 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: uaTransport{next: transport},
		Timeout:   timeout,
	}
}
