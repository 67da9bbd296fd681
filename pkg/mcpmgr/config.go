package mcpmgr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RPCDirection represents the direction of an observed JSON-RPC message.
type RPCDirection string

const (
	RPCDirectionSend    RPCDirection = "send"
	RPCDirectionReceive RPCDirection = "receive"
)

// RPCLogEvent encapsulates JSON-RPC traffic for custom logging.
type RPCLogEvent struct {
	Direction RPCDirection
	Message   []byte
	ServerID  string
}

// RPCLogger is invoked for each JSON-RPC message when logging is enabled.
type RPCLogger func(RPCLogEvent)

// HTTPAuthProvider dynamically supplies an Authorization header (for example,
// "Bearer <token>") for outbound HTTP requests. The same provider is handed to
// the auth pre-validator and to the long-lived transport.
type HTTPAuthProvider func(context.Context) (string, error)

// TransportSelector is the transport requested by a URL-based config.
type TransportSelector string

const (
	SelectAuto           TransportSelector = ""
	SelectStreamableHTTP TransportSelector = "streamable_http"
	SelectSSE            TransportSelector = "sse"
	SelectWebSocket      TransportSelector = "websocket"
)

// ParseTransportSelector normalizes user-facing spellings ("http", "ws",
// "auto", mixed case) to a TransportSelector.
func ParseTransportSelector(s string) (TransportSelector, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return SelectAuto, nil
	case "streamable_http", "streamable-http", "http":
		return SelectStreamableHTTP, nil
	case "sse":
		return SelectSSE, nil
	case "websocket", "ws":
		return SelectWebSocket, nil
	default:
		return "", fmt.Errorf("unknown transport %q", s)
	}
}

// TransportKind is the transport actually used (or last attempted) for a
// server.
type TransportKind string

const (
	TransportStdio          TransportKind = "stdio"
	TransportStreamableHTTP TransportKind = "streamable_http"
	TransportSSE            TransportKind = "sse"
	TransportWebSocket      TransportKind = "websocket"
)

// BaseServerConfig captures settings shared by all transport types.
type BaseServerConfig struct {
	// Timeout bounds each network step (pre-validation, transport open,
	// handshake) independently. Zero uses the fleet default.
	Timeout time.Duration
	// ClientName and ClientVersion override the implementation info sent in
	// the initialize handshake.
	ClientName    string
	ClientVersion string
	LogJSONRPC    bool
	RPCLogger     RPCLogger
}

// StdioServerConfig describes an MCP server launched as a local process and
// spoken to over its stdio.
type StdioServerConfig struct {
	BaseServerConfig
	Command string
	Args    []string
	// Dir is the working directory of the process.
	Dir string
	// Env entries override the inherited environment.
	Env map[string]string
	// Stderr receives the process' stderr. Nil discards it.
	Stderr io.Writer
}

func (c *StdioServerConfig) base() *BaseServerConfig { return &c.BaseServerConfig }

// Validate reports whether the config can be launched.
func (c *StdioServerConfig) Validate() error {
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

// URLServerConfig describes an MCP server reachable over HTTP(S) or
// WebSocket.
type URLServerConfig struct {
	BaseServerConfig
	URL       string
	Transport TransportSelector
	Headers   http.Header
	// AuthProvider is passed through unmodified to both the pre-validator and
	// the final transport.
	AuthProvider HTTPAuthProvider
	HTTPClient   *http.Client
	MaxRetries   int
}

func (c *URLServerConfig) base() *BaseServerConfig { return &c.BaseServerConfig }

// Scheme returns the lower-cased URL scheme, or "" when the URL does not
// parse.
func (c *URLServerConfig) Scheme() string {
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Validate checks that the URL scheme agrees with the selected transport.
func (c *URLServerConfig) Validate() error {
	raw := strings.TrimSpace(c.URL)
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	switch c.Transport {
	case SelectAuto:
	case SelectStreamableHTTP, SelectSSE:
		if scheme != "http" && scheme != "https" {
			return fmt.Errorf("transport %q requires an http:// or https:// url, got %s://", c.Transport, scheme)
		}
	case SelectWebSocket:
		if scheme != "ws" && scheme != "wss" {
			return fmt.Errorf("transport %q requires a ws:// or wss:// url, got %s://", c.Transport, scheme)
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch scheme {
	case "http", "https", "ws", "wss":
		return nil
	default:
		return fmt.Errorf("unsupported url scheme %q (supported: http, https, ws, wss)", scheme)
	}
}

// ServerConfig is implemented by all transport-specific configurations.
type ServerConfig interface {
	base() *BaseServerConfig
	Validate() error
}

// NamedServer pairs a server name with its configuration. Fleet input is an
// ordered slice of these so results can be correlated by position.
type NamedServer struct {
	Name   string
	Config ServerConfig
}
