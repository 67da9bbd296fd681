package mcpmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Transports is the protocol-client seam used by the connector: Open yields
// a message channel for one transport kind and Handshake runs the MCP
// initialize exchange over it.
type Transports interface {
	Open(ctx context.Context, req OpenRequest) (*Channel, error)
	Handshake(ctx context.Context, server string, ch *Channel) (*mcp.ClientSession, error)
}

// OpenRequest selects what Transports.Open should dial. Exactly one of Stdio
// and URL is set, matching Kind.
type OpenRequest struct {
	Server string
	Kind   TransportKind
	Stdio  *StdioServerConfig
	URL    *URLServerConfig
}

// Channel is an opened, not yet initialized, message channel.
type Channel struct {
	Kind TransportKind
	Conn mcp.Connection

	cancel  context.CancelFunc
	status  *statusRecorder
	client  BaseServerConfig
	cmd     *exec.Cmd
	closing sync.Once
	closed  error
}

// NewChannel wraps a connection produced outside SDKTransports. The
// connection is closed by Channel.Close.
func NewChannel(kind TransportKind, conn mcp.Connection) *Channel {
	return &Channel{Kind: kind, Conn: conn}
}

// SessionID returns the transport-level session id, if any.
func (c *Channel) SessionID() string {
	if c == nil || c.Conn == nil {
		return ""
	}
	return c.Conn.SessionID()
}

// Close tears the channel down when no session took ownership of it. It is
// safe to call more than once.
func (c *Channel) Close() error {
	c.closing.Do(func() {
		if c.Conn != nil {
			c.closed = c.Conn.Close()
		}
		if err := c.release(); err != nil && c.closed == nil {
			c.closed = err
		}
	})
	return c.closed
}

// release frees what outlives the connection itself: the detached dial
// context and, for processes, a child that ignored stdin closing.
func (c *Channel) release() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.cmd == nil || c.cmd.Process == nil || c.cmd.ProcessState != nil {
		return nil
	}
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// failureStatus reports the first HTTP status >= 400 seen by the channel's
// HTTP client, or 0.
func (c *Channel) failureStatus() int {
	if c == nil || c.status == nil {
		return 0
	}
	return c.status.Load()
}

// SDKTransports implements Transports with the modelcontextprotocol go-sdk
// transports plus the WebSocket transport in this package.
type SDKTransports struct {
	// ClientName and ClientVersion identify this client in the initialize
	// request. An empty ClientName falls back to the server name.
	ClientName    string
	ClientVersion string
	ClientOptions *mcp.ClientOptions
	// RPCLogger taps JSON-RPC traffic for every server unless the server
	// config supplies its own.
	RPCLogger  RPCLogger
	LogJSONRPC bool
	Logger     *slog.Logger
}

// Open implements Transports.
func (t *SDKTransports) Open(ctx context.Context, req OpenRequest) (*Channel, error) {
	ch := &Channel{Kind: req.Kind}
	var (
		transport mcp.Transport
		base      *BaseServerConfig
	)
	switch req.Kind {
	case TransportStdio:
		if req.Stdio == nil {
			return nil, fmt.Errorf("mcpmgr: missing stdio config for %q", req.Server)
		}
		cmdTransport, err := buildStdioTransport(req.Server, req.Stdio)
		if err != nil {
			return nil, err
		}
		ch.cmd = cmdTransport.Command
		transport = cmdTransport
		base = req.Stdio.base()
	case TransportStreamableHTTP, TransportSSE:
		if req.URL == nil {
			return nil, fmt.Errorf("mcpmgr: missing url config for %q", req.Server)
		}
		ch.status = &statusRecorder{}
		client := decorateHTTPClient(req.URL.HTTPClient, req.URL.Headers, req.URL.AuthProvider, ch.status)
		if req.Kind == TransportSSE {
			transport = &mcp.SSEClientTransport{Endpoint: req.URL.URL, HTTPClient: client}
		} else {
			transport = &mcp.StreamableClientTransport{
				Endpoint:   req.URL.URL,
				HTTPClient: client,
				MaxRetries: req.URL.MaxRetries,
			}
		}
		base = req.URL.base()
	case TransportWebSocket:
		if req.URL == nil {
			return nil, fmt.Errorf("mcpmgr: missing url config for %q", req.Server)
		}
		transport = &WebSocketTransport{
			URL:          req.URL.URL,
			Header:       req.URL.Headers,
			AuthProvider: req.URL.AuthProvider,
		}
		base = req.URL.base()
	default:
		return nil, fmt.Errorf("mcpmgr: unsupported transport %q for %q", req.Kind, req.Server)
	}

	ch.client = *base
	if logger := t.resolveLogger(base); logger != nil {
		transport = &loggingTransport{serverID: req.Server, delegate: transport, logger: logger}
	}
	conn, cancel, err := connectDetached(ctx, transport)
	if err != nil {
		if code := ch.failureStatus(); code > 0 {
			err = &StatusError{StatusCode: code, Err: err}
		}
		return nil, err
	}
	ch.Conn = conn
	ch.cancel = cancel
	return ch, nil
}

// Handshake implements Transports. On failure the go-sdk client has already
// closed the connection; the caller still owns ch and must Close it.
func (t *SDKTransports) Handshake(ctx context.Context, server string, ch *Channel) (*mcp.ClientSession, error) {
	name := firstNonEmpty(ch.client.ClientName, t.ClientName, server)
	version := firstNonEmpty(ch.client.ClientVersion, t.ClientVersion, defaultClientVersion)
	var opts mcp.ClientOptions
	if t.ClientOptions != nil {
		opts = *t.ClientOptions
	}
	client := mcp.NewClient(&mcp.Implementation{Name: name, Version: version}, &opts)
	session, err := client.Connect(ctx, &openedTransport{conn: ch.Conn}, nil)
	if err != nil {
		if code := ch.failureStatus(); code > 0 {
			return nil, &StatusError{StatusCode: code, Err: err}
		}
		return nil, err
	}
	return session, nil
}

// openedTransport hands an already-connected channel to mcp.Client.Connect
// so that opening and handshaking stay separate steps.
type openedTransport struct {
	conn mcp.Connection
	used atomic.Bool
}

func (t *openedTransport) Connect(context.Context) (mcp.Connection, error) {
	if t.used.Swap(true) {
		return nil, errors.New("mcpmgr: channel already handed to a session")
	}
	return t.conn, nil
}

// connectDetached dials under a context that survives the caller's step
// timeout, since some transports bind their long-lived streams to the dial
// context. The caller's ctx still bounds how long the dial may take.
func connectDetached(ctx context.Context, transport mcp.Transport) (mcp.Connection, context.CancelFunc, error) {
	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	type result struct {
		conn mcp.Connection
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := transport.Connect(life)
		done <- result{conn: conn, err: err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			cancel()
			return nil, nil, r.err
		}
		return r.conn, cancel, nil
	case <-ctx.Done():
		cancel()
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, nil, ctx.Err()
	}
}

func buildStdioTransport(serverID string, cfg *StdioServerConfig) (*mcp.CommandTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcpmgr: command missing for %q", serverID)
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Stderr = cfg.Stderr
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (t *SDKTransports) resolveLogger(base *BaseServerConfig) RPCLogger {
	if base != nil && base.RPCLogger != nil {
		return base.RPCLogger
	}
	if t.RPCLogger != nil {
		return t.RPCLogger
	}
	if (base != nil && base.LogJSONRPC) || t.LogJSONRPC {
		logger := t.Logger
		if logger == nil {
			logger = slog.Default()
		}
		return func(event RPCLogEvent) {
			logger.Info("jsonrpc", "server", event.ServerID, "direction", string(event.Direction), "message", string(event.Message))
		}
	}
	return nil
}
