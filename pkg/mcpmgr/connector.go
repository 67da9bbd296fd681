package mcpmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SideChannel is transport metadata that accompanies a session.
type SideChannel struct {
	// SessionID is the transport session id; empty for stdio and websocket.
	SessionID       string
	ServerInfo      *mcp.Implementation
	ProtocolVersion string
}

// Session is a live, initialized connection to one server.
type Session struct {
	Name      string
	Transport TransportKind
	Client    *mcp.ClientSession
	Info      SideChannel
}

// Outcome is the per-server result of a fleet run. Exactly one of Session
// and Failure is set. Transport is recorded either way: on failure it is
// the last transport attempted.
type Outcome struct {
	Name      string
	Session   *Session
	Failure   *ConnectionError
	Transport TransportKind
	// Notices are non-fatal observations such as deprecation warnings.
	Notices []string
}

// OK reports whether the outcome holds a session.
func (o Outcome) OK() bool { return o.Session != nil }

// Registrar receives the closers of a successfully connected server.
type Registrar interface {
	Register(server, resource string, closeFn func() error) error
}

// Connector drives one server descriptor to a session or a typed failure.
type Connector struct {
	opts    FleetOptions
	logger  *slog.Logger
	metrics *connectMetrics
	tracer  trace.Tracer
}

// NewConnector builds a Connector. Metrics are only recorded when
// opts.Registerer is set.
func NewConnector(opts *FleetOptions) (*Connector, error) {
	resolved := opts.withDefaults()
	metrics, err := newConnectMetrics(resolved.Registerer)
	if err != nil {
		return nil, fmt.Errorf("mcpmgr: register metrics: %w", err)
	}
	return &Connector{
		opts:    resolved,
		logger:  resolved.Logger,
		metrics: metrics,
		tracer:  newTracer(resolved.TracerProvider),
	}, nil
}

// Connect establishes a session for one server. On success its resources
// are handed to reg; on failure everything this call opened has already
// been closed. Connect never panics: a panic in a collaborator becomes a
// connect_error outcome.
func (c *Connector) Connect(ctx context.Context, name string, cfg ServerConfig, reg Registrar) (out Outcome) {
	out = Outcome{Name: name, Transport: PlannedTransport(cfg)}
	start := time.Now()
	ctx, span := startConnectSpan(ctx, c.tracer, name, cfg)
	scope := newReleaseRegistry()

	defer func() {
		if r := recover(); r != nil {
			out.Session = nil
			out.Failure = newConnectionError(KindConnect, name, fmt.Errorf("panic during connect: %v", r))
		}
		entries := scope.drain()
		if out.Failure != nil {
			for _, err := range runReverse(entries) {
				c.logger.Debug("release after failed connect", "server", name, "error", err)
			}
		} else {
			for _, e := range entries {
				if reg == nil {
					break
				}
				if err := reg.Register(e.server, e.resource, e.close); err != nil {
					c.logger.Warn("register resource", "server", name, "resource", e.resource, "error", err)
				}
			}
		}
		c.metrics.observe(&out, time.Since(start))
		finishConnectSpan(span, &out)
		c.report(&out, time.Since(start))
	}()

	if cfg == nil {
		out.Failure = newConnectionError(KindConfig, name, errors.New("missing server config"))
		return out
	}
	if err := cfg.Validate(); err != nil {
		out.Failure = newConnectionError(KindConfig, name, err)
		return out
	}

	if stdio, ok := AsStdio(cfg); ok {
		c.connectStdio(ctx, name, stdio, scope, &out)
	} else if remote, ok := AsURL(cfg); ok {
		c.connectURL(ctx, name, c.withFleetHeaders(remote), scope, &out)
	} else {
		out.Failure = newConnectionError(KindConfig, name, fmt.Errorf("unsupported config type %T", cfg))
	}
	return out
}

// withFleetHeaders layers the server's own headers over FleetOptions.Headers.
// The caller's config is left untouched.
func (c *Connector) withFleetHeaders(cfg *URLServerConfig) *URLServerConfig {
	if len(c.opts.Headers) == 0 {
		return cfg
	}
	merged := *cfg
	merged.Headers = mergeHeaders(c.opts.Headers, cfg.Headers)
	return &merged
}

func (c *Connector) connectStdio(ctx context.Context, name string, cfg *StdioServerConfig, scope *releaseRegistry, out *Outcome) {
	out.Transport = TransportStdio
	req := OpenRequest{Server: name, Kind: TransportStdio, Stdio: cfg}
	ch, session, err := handshakeOver(ctx, c.transports(), req, c.timeout(cfg.base()))
	if err != nil {
		kind := KindSpawn
		if isHandshakeStage(err) {
			kind = KindConnect
		}
		out.Failure = newConnectionError(kind, name, err)
		return
	}
	c.accept(name, TransportStdio, ch, session, scope, out)
}

func (c *Connector) connectURL(ctx context.Context, name string, cfg *URLServerConfig, scope *releaseRegistry, out *Outcome) {
	timeout := c.timeout(cfg.base())
	kind := PlannedTransport(cfg)
	out.Transport = kind

	switch kind {
	case TransportWebSocket:
		c.single(ctx, name, cfg, kind, timeout, scope, out)
		return
	case TransportSSE:
		c.deprecated(ctx, name, out, "legacy SSE transport selected explicitly")
		c.single(ctx, name, cfg, kind, timeout, scope, out)
		return
	}

	if !c.opts.SkipAuthPreValidation {
		pvCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.opts.PreValidator.PreValidate(pvCtx, name, cfg)
		cancel()
		var af *AuthFailure
		if errors.As(err, &af) {
			out.Failure = newConnectionError(KindAuth, name, err)
			return
		}
		if err != nil {
			c.logger.Debug("auth pre-validation error ignored", "server", name, "error", err)
		}
	}

	ch, session, modernErr := handshakeOver(ctx, c.transports(), c.openRequest(name, TransportStreamableHTTP, cfg), timeout)
	if modernErr == nil {
		c.accept(name, TransportStreamableHTTP, ch, session, scope, out)
		return
	}
	if cfg.Transport == SelectStreamableHTTP {
		out.Failure = newConnectionError(KindConnect, name, modernErr)
		return
	}
	class := Classify(modernErr)
	traceEvent(ctx, "transport.classified",
		attribute.String("mcp.transport", string(TransportStreamableHTTP)),
		attribute.String("mcp.classification", class.String()),
	)
	if class != FallbackEligible {
		out.Failure = newConnectionError(KindConnect, name, modernErr)
		return
	}

	c.logger.Info("streamable http rejected, falling back to sse", "server", name, "error", modernErr)
	c.metrics.fallback()
	out.Transport = TransportSSE
	ch, session, legacyErr := handshakeOver(ctx, c.transports(), c.openRequest(name, TransportSSE, cfg), timeout)
	if legacyErr != nil {
		out.Failure = newConnectionError(KindConnect, name,
			fmt.Errorf("%s: %w; %s: %w", TransportStreamableHTTP, modernErr, TransportSSE, legacyErr))
		return
	}
	c.deprecated(ctx, name, out, "server only accepts the legacy SSE transport")
	c.accept(name, TransportSSE, ch, session, scope, out)
}

func (c *Connector) single(ctx context.Context, name string, cfg *URLServerConfig, kind TransportKind, timeout time.Duration, scope *releaseRegistry, out *Outcome) {
	ch, session, err := handshakeOver(ctx, c.transports(), c.openRequest(name, kind, cfg), timeout)
	if err != nil {
		out.Failure = newConnectionError(KindConnect, name, err)
		return
	}
	c.accept(name, kind, ch, session, scope, out)
}

// accept records the session and queues its closers: the channel's own
// resources first so that they are released after the session.
func (c *Connector) accept(name string, kind TransportKind, ch *Channel, session *mcp.ClientSession, scope *releaseRegistry, out *Outcome) {
	_ = scope.Register(name, string(kind)+" channel", ch.release)
	_ = scope.Register(name, string(kind)+" session", session.Close)
	s := &Session{Name: name, Transport: kind, Client: session}
	s.Info.SessionID = session.ID()
	if s.Info.SessionID == "" {
		s.Info.SessionID = ch.SessionID()
	}
	if res := session.InitializeResult(); res != nil {
		s.Info.ServerInfo = res.ServerInfo
		s.Info.ProtocolVersion = res.ProtocolVersion
	}
	out.Session = s
	out.Transport = kind
}

func (c *Connector) deprecated(ctx context.Context, name string, out *Outcome, reason string) {
	notice := fmt.Sprintf("server %q: %s; the SSE transport is deprecated, migrate to streamable HTTP", name, reason)
	out.Notices = append(out.Notices, notice)
	c.logger.Warn("deprecated transport", "server", name, "transport", string(TransportSSE), "reason", reason)
	traceEvent(ctx, "transport.deprecated", attribute.String("mcp.transport", string(TransportSSE)))
}

func (c *Connector) openRequest(name string, kind TransportKind, cfg *URLServerConfig) OpenRequest {
	return OpenRequest{Server: name, Kind: kind, URL: cfg}
}

func (c *Connector) transports() Transports { return c.opts.Transports }

func (c *Connector) timeout(base *BaseServerConfig) time.Duration {
	if base != nil && base.Timeout > 0 {
		return base.Timeout
	}
	return c.opts.DefaultTimeout
}

func (c *Connector) report(out *Outcome, elapsed time.Duration) {
	if out.Failure != nil {
		c.logger.Error("server connect failed",
			"server", out.Name,
			"transport", string(out.Transport),
			"kind", string(out.Failure.Kind),
			"error", out.Failure.Err,
			"elapsed", elapsed,
		)
		return
	}
	c.logger.Info("server connected",
		"server", out.Name,
		"transport", string(out.Transport),
		"elapsed", elapsed,
	)
}

// isHandshakeStage reports whether err came from a session handshake
// rather than from opening the channel.
func isHandshakeStage(err error) bool {
	var hs *handshakeError
	return errors.As(err, &hs)
}
