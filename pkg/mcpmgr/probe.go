package mcpmgr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProbeError is returned by TestModernTransport when the streamable HTTP
// handshake fails.
type ProbeError struct {
	Class Classification
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("streamable http probe failed (%s): %v", e.Class, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// TestModernTransport opens a streamable HTTP transport to url, completes
// the initialize handshake and closes the session again. It returns nil when
// the transport is usable and a *ProbeError otherwise, whose Class says
// whether a legacy SSE fallback is worth trying.
func TestModernTransport(ctx context.Context, url string, headers http.Header, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cfg := &URLServerConfig{URL: url, Transport: SelectStreamableHTTP, Headers: headers}
	cfg.Timeout = timeout
	if err := cfg.Validate(); err != nil {
		return &ProbeError{Class: Fatal, Err: err}
	}
	transports := &SDKTransports{ClientName: "mcpmgr-probe"}
	req := OpenRequest{Server: url, Kind: TransportStreamableHTTP, URL: cfg}
	ch, session, err := handshakeOver(ctx, transports, req, timeout)
	if err != nil {
		return &ProbeError{Class: Classify(err), Err: err}
	}
	_ = session.Close()
	_ = ch.release()
	return nil
}

// handshakeOver opens one transport and runs the initialize exchange on it,
// each step under its own timeout. On any failure, including a panic in a
// collaborator, the opened channel is closed before returning.
func handshakeOver(ctx context.Context, transports Transports, req OpenRequest, timeout time.Duration) (*Channel, *mcp.ClientSession, error) {
	openCtx, cancel := context.WithTimeout(ctx, timeout)
	ch, err := transports.Open(openCtx, req)
	cancel()
	if err != nil {
		return nil, nil, err
	}
	if ch == nil {
		return nil, nil, fmt.Errorf("mcpmgr: transport %s returned no channel", req.Kind)
	}
	handedOff := false
	defer func() {
		if !handedOff {
			// The go-sdk client closes the connection on a failed handshake;
			// a second close error is expected and ignored.
			_ = ch.Close()
		}
	}()

	handshakeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	session, err := transports.Handshake(handshakeCtx, req.Server, ch)
	if err != nil {
		return nil, nil, &handshakeError{Err: err}
	}
	if session == nil {
		return nil, nil, &handshakeError{Err: fmt.Errorf("mcpmgr: transport %s handshake returned no session", req.Kind)}
	}
	handedOff = true
	return ch, session, nil
}

// handshakeError marks a failure that happened after the channel opened.
type handshakeError struct {
	Err error
}

func (e *handshakeError) Error() string { return e.Err.Error() }

func (e *handshakeError) Unwrap() error { return e.Err }
