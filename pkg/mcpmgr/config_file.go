package mcpmgr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// configFile is the on-disk layout shared with other MCP clients:
//
//	{"mcpServers": {"name": {"command": "...", "args": [...]}, ...}}
type configFile struct {
	MCPServers *orderedmap.OrderedMap[string, map[string]any] `json:"mcpServers"`
}

// LoadConfig reads a JSON server file. Server order follows the file.
func LoadConfig(path string) ([]NamedServer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mcpmgr: read config: %w", err)
	}
	servers, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("mcpmgr: %s: %w", path, err)
	}
	return servers, nil
}

// ParseConfig decodes the mcpServers document. An entry with a "command"
// is a stdio server; an entry with a "url" is a URL server. Timeouts are
// given in seconds.
func ParseConfig(data []byte) ([]NamedServer, error) {
	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if file.MCPServers == nil {
		return nil, fmt.Errorf("parse config: missing %q object", "mcpServers")
	}
	servers := make([]NamedServer, 0, file.MCPServers.Len())
	for pair := file.MCPServers.Oldest(); pair != nil; pair = pair.Next() {
		cfg, err := parseServerEntry(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", pair.Key, err)
		}
		servers = append(servers, NamedServer{Name: pair.Key, Config: cfg})
	}
	return servers, nil
}

func parseServerEntry(raw map[string]any) (ServerConfig, error) {
	base, err := parseBase(raw)
	if err != nil {
		return nil, err
	}
	command := cast.ToString(raw["command"])
	url := cast.ToString(raw["url"])
	switch {
	case command != "" && url != "":
		return nil, fmt.Errorf("both command and url are set")
	case command != "":
		args, err := stringSlice(raw["args"])
		if err != nil {
			return nil, fmt.Errorf("args: %w", err)
		}
		env, err := stringMap(raw["env"])
		if err != nil {
			return nil, fmt.Errorf("env: %w", err)
		}
		return &StdioServerConfig{
			BaseServerConfig: base,
			Command:          command,
			Args:             args,
			Dir:              cast.ToString(raw["cwd"]),
			Env:              env,
		}, nil
	case url != "":
		selector := cast.ToString(raw["transport"])
		if selector == "" {
			selector = cast.ToString(raw["type"])
		}
		transport, err := ParseTransportSelector(selector)
		if err != nil {
			return nil, err
		}
		headers, err := stringMap(raw["headers"])
		if err != nil {
			return nil, fmt.Errorf("headers: %w", err)
		}
		cfg := &URLServerConfig{
			BaseServerConfig: base,
			URL:              url,
			Transport:        transport,
			MaxRetries:       cast.ToInt(raw["maxRetries"]),
		}
		if len(headers) > 0 {
			cfg.Headers = make(http.Header, len(headers))
			for k, v := range headers {
				cfg.Headers.Set(k, v)
			}
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("one of command or url is required")
	}
}

func parseBase(raw map[string]any) (BaseServerConfig, error) {
	var base BaseServerConfig
	if v, ok := raw["timeout"]; ok && v != nil {
		seconds, err := cast.ToFloat64E(v)
		if err != nil {
			return base, fmt.Errorf("timeout: %w", err)
		}
		if seconds < 0 {
			return base, fmt.Errorf("timeout must not be negative")
		}
		base.Timeout = time.Duration(seconds * float64(time.Second))
	}
	base.ClientName = strings.TrimSpace(cast.ToString(raw["clientName"]))
	base.ClientVersion = strings.TrimSpace(cast.ToString(raw["clientVersion"]))
	base.LogJSONRPC = cast.ToBool(raw["logJsonRpc"])
	return base, nil
}

func stringSlice(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	return cast.ToStringSliceE(v)
}

func stringMap(v any) (map[string]string, error) {
	if v == nil {
		return nil, nil
	}
	return cast.ToStringMapStringE(v)
}
