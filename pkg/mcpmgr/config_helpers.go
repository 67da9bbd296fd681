package mcpmgr

// Lightweight helpers for narrowing and inspecting ServerConfig values without
// forcing consumers to use a type switch at every call site.

// ConfigTransport identifies the descriptor variant of a ServerConfig.
type ConfigTransport string

const (
	ConfigStdio ConfigTransport = "stdio"
	ConfigURL   ConfigTransport = "url"
)

// TransportOf returns the descriptor variant for a ServerConfig.
// Returns an empty string when the value is nil or an unknown implementation.
func TransportOf(cfg ServerConfig) ConfigTransport {
	switch cfg.(type) {
	case *StdioServerConfig:
		return ConfigStdio
	case *URLServerConfig:
		return ConfigURL
	default:
		return ""
	}
}

// IsStdio reports whether cfg is a *StdioServerConfig.
func IsStdio(cfg ServerConfig) bool {
	_, ok := cfg.(*StdioServerConfig)
	return ok
}

// IsURL reports whether cfg is a *URLServerConfig.
func IsURL(cfg ServerConfig) bool {
	_, ok := cfg.(*URLServerConfig)
	return ok
}

// AsStdio narrows cfg to *StdioServerConfig, returning (nil, false) when it
// does not match.
func AsStdio(cfg ServerConfig) (*StdioServerConfig, bool) {
	c, ok := cfg.(*StdioServerConfig)
	return c, ok
}

// AsURL narrows cfg to *URLServerConfig, returning (nil, false) when it does
// not match.
func AsURL(cfg ServerConfig) (*URLServerConfig, bool) {
	c, ok := cfg.(*URLServerConfig)
	return c, ok
}

// PlannedTransport reports the transport a config will start with before
// any fallback: stdio for processes, websocket for ws(s) URLs or an explicit
// websocket selector, sse for an explicit legacy selector, and streamable
// HTTP otherwise.
func PlannedTransport(cfg ServerConfig) TransportKind {
	switch c := cfg.(type) {
	case *StdioServerConfig:
		return TransportStdio
	case *URLServerConfig:
		switch {
		case c.Transport == SelectWebSocket:
			return TransportWebSocket
		case c.Scheme() == "ws" || c.Scheme() == "wss":
			return TransportWebSocket
		case c.Transport == SelectSSE:
			return TransportSSE
		default:
			return TransportStreamableHTTP
		}
	default:
		return ""
	}
}
