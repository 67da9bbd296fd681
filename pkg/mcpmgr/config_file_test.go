package mcpmgr

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigPreservesOrderAndVariants(t *testing.T) {
	t.Parallel()

	servers, err := ParseConfig([]byte(`{
		"mcpServers": {
			"everything": {
				"command": "npx",
				"args": ["-y", "@modelcontextprotocol/server-everything"],
				"env": {"DEBUG": "1"},
				"cwd": "/tmp"
			},
			"remote": {
				"url": "https://example.com/mcp",
				"transport": "http",
				"headers": {"X-Api-Key": "secret"},
				"timeout": 2.5,
				"maxRetries": "4"
			},
			"legacy": {"url": "https://example.com/sse", "type": "sse"},
			"socket": {"url": "wss://example.com/ws", "timeout": "10"}
		}
	}`))
	require.NoError(t, err)
	require.Len(t, servers, 4)

	names := make([]string, 0, len(servers))
	for _, s := range servers {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"everything", "remote", "legacy", "socket"}, names)

	stdio, ok := AsStdio(servers[0].Config)
	require.True(t, ok)
	assert.Equal(t, "npx", stdio.Command)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-everything"}, stdio.Args)
	assert.Equal(t, map[string]string{"DEBUG": "1"}, stdio.Env)
	assert.Equal(t, "/tmp", stdio.Dir)

	remote, ok := AsURL(servers[1].Config)
	require.True(t, ok)
	assert.Equal(t, SelectStreamableHTTP, remote.Transport)
	assert.Equal(t, "secret", remote.Headers.Get("X-Api-Key"))
	assert.Equal(t, 2500*time.Millisecond, remote.Timeout)
	assert.Equal(t, 4, remote.MaxRetries)

	legacy, _ := AsURL(servers[2].Config)
	assert.Equal(t, SelectSSE, legacy.Transport)

	socket, _ := AsURL(servers[3].Config)
	assert.Equal(t, SelectAuto, socket.Transport)
	assert.Equal(t, 10*time.Second, socket.Timeout)
	assert.Equal(t, TransportWebSocket, PlannedTransport(socket))
}

func TestParseConfigErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":        `{`,
		"missing servers": `{}`,
		"no target":       `{"mcpServers": {"x": {}}}`,
		"both targets":    `{"mcpServers": {"x": {"command": "a", "url": "http://x"}}}`,
		"bad transport":   `{"mcpServers": {"x": {"url": "http://x", "transport": "smoke"}}}`,
		"bad timeout":     `{"mcpServers": {"x": {"command": "a", "timeout": "soon"}}}`,
		"negative":        `{"mcpServers": {"x": {"command": "a", "timeout": -1}}}`,
		"bad args":        `{"mcpServers": {"x": {"command": "a", "args": {"k": 1}}}}`,
	}
	for name, doc := range cases {
		_, err := ParseConfig([]byte(doc))
		assert.Error(t, err, name)
	}

	_, err := ParseConfig([]byte(`{"mcpServers": {"broken": {}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `server "broken"`)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mcpServers": {"a": {"command": "srv"}}}`), 0o600))

	servers, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "a", servers[0].Name)

	_, err = LoadConfig(filepath.Join(dir, "nope.json"))
	assert.Error(t, err)
}
