package mcpmgr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// probeProtocolVersion is the oldest protocol revision with an initialize
// request every streamable HTTP server understands.
const probeProtocolVersion = "2024-11-05"

const maxProbeBody = 1 << 20

var jsonMediaType = contenttype.NewMediaType("application/json")

// PreValidator detects credential rejection before a long-lived transport
// is built. It returns an *AuthFailure on rejection and nil for anything
// else, including network errors, which are left to the real connection
// attempt.
type PreValidator interface {
	PreValidate(ctx context.Context, server string, cfg *URLServerConfig) error
}

// HTTPPreValidator posts one self-contained initialize request over plain
// net/http, independent of the go-sdk transports, and inspects the status.
type HTTPPreValidator struct {
	ClientName      string
	ClientVersion   string
	ProtocolVersion string
	Logger          *slog.Logger
}

// PreValidate implements PreValidator.
func (v *HTTPPreValidator) PreValidate(ctx context.Context, server string, cfg *URLServerConfig) error {
	logger := v.logger()
	body, err := v.initializeRequest(server)
	if err != nil {
		return fmt.Errorf("mcpmgr: build pre-validation request: %w", err)
	}
	client := decorateHTTPClient(cfg.HTTPClient, cfg.Headers, cfg.AuthProvider, nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		if code, ok := authRejection(unwrapURLError(err)); ok {
			return &AuthFailure{Server: server, Status: code, Reason: err.Error()}
		}
		logger.Debug("auth pre-validation inconclusive", "server", server, "error", err)
		return nil
	}
	sessionID := resp.Header.Get(sessionIDHeaderName)
	defer v.terminate(ctx, client, cfg.URL, sessionID)
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		reason := http.StatusText(resp.StatusCode)
		if challenge := resp.Header.Get("WWW-Authenticate"); challenge != "" {
			reason = fmt.Sprintf("%s (%s)", reason, challenge)
		}
		return &AuthFailure{Server: server, Status: resp.StatusCode, Reason: reason}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Debug("auth pre-validation passed with non-auth status", "server", server, "status", resp.StatusCode)
		return nil
	}
	if !contenttype.NewMediaType(resp.Header.Get("Content-Type")).Matches(jsonMediaType) {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return nil
	}
	msg, err := jsonrpc.DecodeMessage(data)
	if err != nil {
		return nil
	}
	if r, ok := msg.(*jsonrpc.Response); ok && r.Error != nil {
		if code, ok := matchAuthText(r.Error.Error()); ok {
			return &AuthFailure{Server: server, Status: code, Reason: r.Error.Error()}
		}
	}
	return nil
}

func (v *HTTPPreValidator) initializeRequest(server string) ([]byte, error) {
	name := v.ClientName
	if name == "" {
		name = server
	}
	version := v.ClientVersion
	if version == "" {
		version = defaultClientVersion
	}
	protocol := v.ProtocolVersion
	if protocol == "" {
		protocol = probeProtocolVersion
	}
	params, err := json.Marshal(&mcp.InitializeParams{
		ProtocolVersion: protocol,
		Capabilities:    &mcp.ClientCapabilities{},
		ClientInfo:      &mcp.Implementation{Name: name, Version: version},
	})
	if err != nil {
		return nil, err
	}
	id, err := jsonrpc.MakeID("transport-test-" + uuid.NewString())
	if err != nil {
		return nil, err
	}
	return jsonrpc.EncodeMessage(&jsonrpc.Request{ID: id, Method: "initialize", Params: params})
}

// terminate ends a session the probe may have created on the server.
func (v *HTTPPreValidator) terminate(ctx context.Context, client *http.Client, endpoint, sessionID string) {
	if sessionID == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return
	}
	req.Header.Set(sessionIDHeaderName, sessionID)
	resp, err := client.Do(req)
	if err != nil {
		v.logger().Debug("terminate pre-validation session", "session", sessionID, "error", err)
		return
	}
	_ = resp.Body.Close()
}

func (v *HTTPPreValidator) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

// unwrapURLError drops the request URL from net/http errors so that text
// matching never sees path segments.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
