package mcpmgr

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMCPServer() *mcp.Server {
	return mcp.NewServer(&mcp.Implementation{Name: "fleet-test-server", Version: "0.0.1"}, nil)
}

// trackedConn records whether the connection was closed.
type trackedConn struct {
	mcp.Connection
	kind   TransportKind
	server string
	closed atomic.Bool
}

func (c *trackedConn) Close() error {
	c.closed.Store(true)
	return c.Connection.Close()
}

// fakeTransports serves every Open from an in-memory go-sdk server so that
// handshakes are real, and lets tests inject failures per transport kind.
type fakeTransports struct {
	mu           sync.Mutex
	opens        []OpenRequest
	handshakes   []TransportKind
	conns        []*trackedConn
	openErr      map[TransportKind]error
	handshakeErr map[TransportKind]error
	// blockHandshake makes Handshake wait for its context to end.
	blockHandshake map[TransportKind]bool
	panicOn        TransportKind
	// delay holds Open back per server to shuffle completion order.
	delay map[string]time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeTransports() *fakeTransports {
	return &fakeTransports{
		openErr:        map[TransportKind]error{},
		handshakeErr:   map[TransportKind]error{},
		blockHandshake: map[TransportKind]bool{},
		delay:          map[string]time.Duration{},
	}
}

func (f *fakeTransports) Open(ctx context.Context, req OpenRequest) (*Channel, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		prev := f.maxActive.Load()
		if n <= prev || f.maxActive.CompareAndSwap(prev, n) {
			break
		}
	}

	f.mu.Lock()
	f.opens = append(f.opens, req)
	err := f.openErr[req.Kind]
	delay := f.delay[req.Server]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := newTestMCPServer().Connect(context.Background(), serverTransport, nil); err != nil {
		return nil, err
	}
	conn, err := clientTransport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	tracked := &trackedConn{Connection: conn, kind: req.Kind, server: req.Server}
	f.mu.Lock()
	f.conns = append(f.conns, tracked)
	f.mu.Unlock()
	return NewChannel(req.Kind, tracked), nil
}

func (f *fakeTransports) Handshake(ctx context.Context, server string, ch *Channel) (*mcp.ClientSession, error) {
	f.mu.Lock()
	f.handshakes = append(f.handshakes, ch.Kind)
	err := f.handshakeErr[ch.Kind]
	block := f.blockHandshake[ch.Kind]
	f.mu.Unlock()

	if ch.Kind == f.panicOn {
		panic("handshake exploded")
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return (&SDKTransports{ClientName: "fleet-tests"}).Handshake(ctx, server, ch)
}

func (f *fakeTransports) openKinds() []TransportKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]TransportKind, 0, len(f.opens))
	for _, req := range f.opens {
		kinds = append(kinds, req.Kind)
	}
	return kinds
}

// closedConns reports how many opened connections for server were closed.
func (f *fakeTransports) closedConns(server string) (closed, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		if c.server != server {
			continue
		}
		total++
		if c.closed.Load() {
			closed++
		}
	}
	return closed, total
}

type fakePreValidator struct {
	calls atomic.Int32
	err   error

	mu      sync.Mutex
	headers []http.Header
}

func (p *fakePreValidator) PreValidate(_ context.Context, _ string, cfg *URLServerConfig) error {
	p.calls.Add(1)
	p.mu.Lock()
	p.headers = append(p.headers, cfg.Headers)
	p.mu.Unlock()
	return p.err
}
