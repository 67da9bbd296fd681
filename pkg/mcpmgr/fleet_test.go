package mcpmgr

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFleet(t *testing.T, transports *fakeTransports, mutate func(*FleetOptions)) *Fleet {
	t.Helper()
	opts := &FleetOptions{
		DefaultTimeout: 5 * time.Second,
		Transports:     transports,
		PreValidator:   &fakePreValidator{},
		Logger:         discardLogger(),
	}
	if mutate != nil {
		mutate(opts)
	}
	fleet, err := NewFleet(opts)
	require.NoError(t, err)
	return fleet
}

func TestFleetPreservesInputOrder(t *testing.T) {
	t.Parallel()

	transports := newFakeTransports()
	transports.delay["first"] = 150 * time.Millisecond
	transports.delay["second"] = 75 * time.Millisecond
	fleet := newTestFleet(t, transports, nil)

	servers := []NamedServer{
		{Name: "first", Config: &StdioServerConfig{Command: "one"}},
		{Name: "second", Config: &URLServerConfig{URL: "http://x/mcp"}},
		{Name: "third", Config: &URLServerConfig{URL: "ws://x/mcp"}},
		{Name: "fourth", Config: &URLServerConfig{URL: "ftp://x"}},
	}
	result := fleet.InitializeAll(context.Background(), servers)
	defer result.Release.Release()

	require.Len(t, result.Outcomes, len(servers))
	for i, srv := range servers {
		assert.Equal(t, srv.Name, result.Outcomes[i].Name)
	}
	assert.Len(t, result.Sessions(), 3)
	require.Len(t, result.Failures(), 1)
	assert.Equal(t, KindConfig, result.Failures()[0].Kind)

	third, ok := result.Get("third")
	require.True(t, ok)
	assert.Equal(t, TransportWebSocket, third.Transport)
	_, ok = result.Get("missing")
	assert.False(t, ok)
}

// Scenario: one process that spawns and one URL that never answers.
func TestFleetPartialFailureReleasesOnlyAcquired(t *testing.T) {
	t.Parallel()

	transports := newFakeTransports()
	transports.blockHandshake[TransportStreamableHTTP] = true
	fleet := newTestFleet(t, transports, nil)

	unreachable := &URLServerConfig{URL: "http://unreachable.invalid/mcp"}
	unreachable.Timeout = 100 * time.Millisecond
	result := fleet.InitializeAll(context.Background(), []NamedServer{
		{Name: "proc", Config: &StdioServerConfig{Command: "server"}},
		{Name: "remote", Config: unreachable},
	})

	require.Len(t, result.Sessions(), 1)
	assert.Equal(t, "proc", result.Sessions()[0].Name)
	require.Len(t, result.Failures(), 1)
	assert.Equal(t, KindConnect, result.Failures()[0].Kind)
	assert.Equal(t, "remote", result.Failures()[0].Server)
	assert.ErrorIs(t, result.Failures()[0], context.DeadlineExceeded)

	closed, total := transports.closedConns("remote")
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, closed, "failed connector cleaned up before returning")
	closed, _ = transports.closedConns("proc")
	assert.Equal(t, 0, closed)

	assert.Equal(t, 2, result.Release.Pending())
	assert.Empty(t, result.Release.Release())
	closed, total = transports.closedConns("proc")
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, closed)

	assert.Nil(t, result.Release.Release(), "second release is a no-op")
}

func TestFleetDuplicateNames(t *testing.T) {
	t.Parallel()

	transports := newFakeTransports()
	fleet := newTestFleet(t, transports, nil)
	result := fleet.InitializeAll(context.Background(), []NamedServer{
		{Name: "dup", Config: &StdioServerConfig{Command: "a"}},
		{Name: "dup", Config: &StdioServerConfig{Command: "b"}},
	})
	defer result.Release.Release()

	require.Len(t, result.Outcomes, 2)
	assert.NotNil(t, result.Outcomes[0].Session)
	require.NotNil(t, result.Outcomes[1].Failure)
	assert.Equal(t, KindConfig, result.Outcomes[1].Failure.Kind)
	assert.Contains(t, result.Outcomes[1].Failure.Error(), "duplicate server name")
	assert.Len(t, transports.openKinds(), 1)
}

func TestFleetMaxConcurrency(t *testing.T) {
	t.Parallel()

	transports := newFakeTransports()
	servers := make([]NamedServer, 0, 4)
	for _, name := range []string{"a", "b", "c", "d"} {
		transports.delay[name] = 20 * time.Millisecond
		servers = append(servers, NamedServer{Name: name, Config: &StdioServerConfig{Command: name}})
	}
	fleet := newTestFleet(t, transports, func(o *FleetOptions) { o.MaxConcurrency = 1 })

	result := fleet.InitializeAll(context.Background(), servers)
	defer result.Release.Release()

	assert.Len(t, result.Sessions(), 4)
	assert.Equal(t, int32(1), transports.maxActive.Load())
}

func TestFleetEmptyInput(t *testing.T) {
	t.Parallel()

	fleet := newTestFleet(t, newFakeTransports(), nil)
	result := fleet.InitializeAll(context.Background(), nil)
	assert.Empty(t, result.Outcomes)
	require.NotNil(t, result.Release)
	assert.Empty(t, result.Release.Release())
}

func TestFleetLoadAndInitialize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "servers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mcpServers": {
			"zeta": {"command": "zeta-server", "args": ["--stdio"]},
			"alpha": {"url": "http://x/mcp", "timeout": 2}
		}
	}`), 0o600))

	transports := newFakeTransports()
	fleet := newTestFleet(t, transports, nil)
	result, err := fleet.LoadAndInitialize(context.Background(), path)
	require.NoError(t, err)
	defer result.Release.Release()

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "zeta", result.Outcomes[0].Name)
	assert.Equal(t, "alpha", result.Outcomes[1].Name)
	assert.Len(t, result.Sessions(), 2)

	_, err = fleet.LoadAndInitialize(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
