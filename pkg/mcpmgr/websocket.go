package mcpmgr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// websocketSubprotocol is negotiated by MCP WebSocket servers.
const websocketSubprotocol = "mcp"

// WebSocketTransport is an mcp.Transport that speaks JSON-RPC over a
// WebSocket, one message per text frame.
type WebSocketTransport struct {
	URL          string
	Header       http.Header
	AuthProvider HTTPAuthProvider
	// Dialer defaults to a copy of websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Connect implements mcp.Transport. A rejected upgrade is reported as a
// *StatusError.
func (t *WebSocketTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	dialer := websocket.DefaultDialer
	if t.Dialer != nil {
		dialer = t.Dialer
	}
	d := *dialer
	if len(d.Subprotocols) == 0 {
		d.Subprotocols = []string{websocketSubprotocol}
	}
	header := cloneHeader(t.Header)
	if t.AuthProvider != nil && header.Get(authorizationHeader) == "" {
		token, err := t.AuthProvider(ctx)
		if err != nil {
			return nil, err
		}
		if token != "" {
			if header == nil {
				header = http.Header{}
			}
			header.Set(authorizationHeader, token)
		}
	}
	conn, resp, err := d.DialContext(ctx, t.URL, header)
	if err != nil {
		if resp != nil {
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			return nil, &StatusError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	return newWebSocketConn(conn), nil
}

type wsRead struct {
	msg jsonrpc.Message
	err error
}

// wsConn adapts a *websocket.Conn to mcp.Connection. A single reader
// goroutine feeds incoming so Read can honor context cancellation.
type wsConn struct {
	conn     *websocket.Conn
	incoming chan wsRead
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWebSocketConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{
		conn:     conn,
		incoming: make(chan wsRead, 16),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *wsConn) readLoop() {
	defer close(c.incoming)
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = io.EOF
			}
			select {
			case c.incoming <- wsRead{err: err}:
			case <-c.done:
			}
			return
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		msg, err := jsonrpc.DecodeMessage(data)
		if err != nil {
			err = fmt.Errorf("mcpmgr: decode websocket frame: %w", err)
		}
		select {
		case c.incoming <- wsRead{msg: msg, err: err}:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) SessionID() string { return "" }

func (c *wsConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, io.EOF
	case r, ok := <-c.incoming:
		if !ok {
			return nil, io.EOF
		}
		return r.msg, r.err
	}
}

func (c *wsConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		// The close frame is best-effort; the peer may already be gone.
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
