package mcpmgr

import (
	"net/http"
	"sync/atomic"
)

const (
	sessionIDHeaderName = "Mcp-Session-Id"
	authorizationHeader = "Authorization"
)

// statusRecorder remembers the first failing HTTP status seen by a client.
type statusRecorder struct {
	code atomic.Int32
}

func (s *statusRecorder) observe(code int) {
	if code >= 400 {
		s.code.CompareAndSwap(0, int32(code))
	}
}

func (s *statusRecorder) Load() int {
	return int(s.code.Load())
}

func decorateHTTPClient(base *http.Client, headers http.Header, provider HTTPAuthProvider, status *statusRecorder) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	clone := *base
	clone.Transport = &headerDecorator{
		next:         defaultRoundTripper(base.Transport),
		headers:      cloneHeader(headers),
		authProvider: provider,
		status:       status,
	}
	return &clone
}

func mergeHeaders(headers ...http.Header) http.Header {
	result := http.Header{}
	for _, hdr := range headers {
		if len(hdr) == 0 {
			continue
		}
		for k, values := range hdr {
			result[k] = append([]string(nil), values...)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func cloneHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	clone := make(http.Header, len(h))
	for k, values := range h {
		clone[k] = append([]string(nil), values...)
	}
	return clone
}

type headerDecorator struct {
	next         http.RoundTripper
	headers      http.Header
	authProvider HTTPAuthProvider
	status       *statusRecorder
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(req.Context())
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if len(d.headers) > 0 {
		for k, values := range d.headers {
			req.Header.Del(k)
			for _, v := range values {
				req.Header.Add(k, v)
			}
		}
	}
	if d.authProvider != nil && req.Header.Get(authorizationHeader) == "" {
		token, err := d.authProvider(req.Context())
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set(authorizationHeader, token)
		}
	}
	resp, err := d.next.RoundTrip(req)
	// A 405 on GET only means the server offers no standalone stream.
	if err == nil && d.status != nil && !(req.Method == http.MethodGet && resp.StatusCode == http.StatusMethodNotAllowed) {
		d.status.observe(resp.StatusCode)
	}
	return resp, err
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}
