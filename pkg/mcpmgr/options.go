package mcpmgr

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultClientVersion = "1.0.0"
)

// EnvDefaults are fleet defaults that may be supplied through the
// environment.
type EnvDefaults struct {
	// ENV: MCPMGR_DEFAULT_TIMEOUT
	DefaultTimeout time.Duration `env:"MCPMGR_DEFAULT_TIMEOUT,default=30s"`
	// ENV: MCPMGR_CLIENT_NAME. Empty advertises each server's own name.
	ClientName string `env:"MCPMGR_CLIENT_NAME"`
	// ENV: MCPMGR_CLIENT_VERSION
	ClientVersion string `env:"MCPMGR_CLIENT_VERSION,default=1.0.0"`
	// ENV: MCPMGR_PREVALIDATE_AUTH
	PreValidateAuth bool `env:"MCPMGR_PREVALIDATE_AUTH,default=true"`
	// ENV: MCPMGR_LOG_JSONRPC
	LogJSONRPC bool `env:"MCPMGR_LOG_JSONRPC,default=false"`
	// ENV: MCPMGR_MAX_CONCURRENCY. Zero means unbounded.
	MaxConcurrency int `env:"MCPMGR_MAX_CONCURRENCY,default=0"`
}

// LoadEnvDefaults decodes EnvDefaults from the process environment. Struct
// tag defaults apply when variables are unset; a value that does not parse
// is an error.
func LoadEnvDefaults() (EnvDefaults, error) {
	var d EnvDefaults
	if err := envdecode.StrictDecode(&d); err != nil {
		return d, fmt.Errorf("mcpmgr: environment defaults: %w", err)
	}
	return d, nil
}

// FleetOptions configures a Fleet.
type FleetOptions struct {
	// DefaultTimeout applies to servers whose config omits a timeout.
	DefaultTimeout time.Duration
	// ClientName overrides the implementation name sent during the
	// handshake. When empty, the server name is used.
	ClientName    string
	ClientVersion string
	ClientOptions *mcp.ClientOptions
	// SkipAuthPreValidation disables the pre-validation request for
	// streamable HTTP servers.
	SkipAuthPreValidation bool
	// MaxConcurrency bounds how many servers are connected at once. Zero
	// means one goroutine per server.
	MaxConcurrency int
	// Headers are sent to every HTTP server. A server's own headers win
	// on conflict.
	Headers    http.Header
	LogJSONRPC bool
	RPCLogger  RPCLogger
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// Transports and PreValidator replace the default go-sdk backed
	// collaborators.
	Transports   Transports
	PreValidator PreValidator
	// Registerer, when set, receives the fleet's Prometheus collectors.
	Registerer prometheus.Registerer
	// TracerProvider defaults to the global otel provider.
	TracerProvider trace.TracerProvider
}

// OptionsFromEnv builds FleetOptions from LoadEnvDefaults.
func OptionsFromEnv() (*FleetOptions, error) {
	d, err := LoadEnvDefaults()
	if err != nil {
		return nil, err
	}
	return &FleetOptions{
		DefaultTimeout:        d.DefaultTimeout,
		ClientName:            d.ClientName,
		ClientVersion:         d.ClientVersion,
		SkipAuthPreValidation: !d.PreValidateAuth,
		LogJSONRPC:            d.LogJSONRPC,
		MaxConcurrency:        d.MaxConcurrency,
	}, nil
}

func (o *FleetOptions) withDefaults() FleetOptions {
	if o == nil {
		o = &FleetOptions{}
	}
	opts := *o
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultTimeout
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = defaultClientVersion
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Transports == nil {
		opts.Transports = &SDKTransports{
			ClientName:    opts.ClientName,
			ClientVersion: opts.ClientVersion,
			ClientOptions: opts.ClientOptions,
			RPCLogger:     opts.RPCLogger,
			LogJSONRPC:    opts.LogJSONRPC,
			Logger:        opts.Logger,
		}
	}
	if opts.PreValidator == nil {
		opts.PreValidator = &HTTPPreValidator{
			ClientName:    opts.ClientName,
			ClientVersion: opts.ClientVersion,
			Logger:        opts.Logger,
		}
	}
	return opts
}
