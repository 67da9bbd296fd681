package mcpmgr

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// AggregateResult holds one Outcome per input server, in input order, and
// the handle that releases everything the run acquired.
type AggregateResult struct {
	Outcomes []Outcome
	Release  *ReleaseHandle
}

// Get returns the outcome for name.
func (r *AggregateResult) Get(name string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Name == name {
			return o, true
		}
	}
	return Outcome{}, false
}

// Sessions returns the successful sessions in input order.
func (r *AggregateResult) Sessions() []*Session {
	var sessions []*Session
	for _, o := range r.Outcomes {
		if o.Session != nil {
			sessions = append(sessions, o.Session)
		}
	}
	return sessions
}

// Failures returns the failed outcomes' errors in input order.
func (r *AggregateResult) Failures() []*ConnectionError {
	var failures []*ConnectionError
	for _, o := range r.Outcomes {
		if o.Failure != nil {
			failures = append(failures, o.Failure)
		}
	}
	return failures
}

// Fleet connects a set of MCP servers concurrently.
type Fleet struct {
	connector *Connector
	limit     int
	logger    *slog.Logger
}

// NewFleet constructs a Fleet. A nil opts uses defaults.
func NewFleet(opts *FleetOptions) (*Fleet, error) {
	connector, err := NewConnector(opts)
	if err != nil {
		return nil, err
	}
	return &Fleet{
		connector: connector,
		limit:     connector.opts.MaxConcurrency,
		logger:    connector.logger,
	}, nil
}

// InitializeAll connects every server and waits for all of them. One
// server's failure never affects another's; each is recorded in its own
// Outcome. The caller owns the returned ReleaseHandle and must call it
// even when every server failed.
func (f *Fleet) InitializeAll(ctx context.Context, servers []NamedServer) *AggregateResult {
	registry := newReleaseRegistry()
	outcomes := make([]Outcome, len(servers))

	seen := make(map[string]int, len(servers))
	var g errgroup.Group
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	for i, srv := range servers {
		if first, dup := seen[srv.Name]; dup {
			outcomes[i] = Outcome{
				Name:      srv.Name,
				Transport: PlannedTransport(srv.Config),
				Failure: newConnectionError(KindConfig, srv.Name,
					fmt.Errorf("duplicate server name (first declared at position %d)", first)),
			}
			continue
		}
		seen[srv.Name] = i
		g.Go(func() error {
			outcomes[i] = f.connector.Connect(ctx, srv.Name, srv.Config, registry)
			return nil
		})
	}
	_ = g.Wait()

	result := &AggregateResult{Outcomes: outcomes, Release: newReleaseHandle(registry)}
	f.logger.Info("fleet initialized",
		"servers", len(servers),
		"connected", len(result.Sessions()),
		"failed", len(result.Failures()),
		"resources", registry.Len(),
	)
	return result
}

// LoadAndInitialize reads a JSON config file and connects every server in
// it. Only file errors are returned; per-server problems are outcomes.
func (f *Fleet) LoadAndInitialize(ctx context.Context, path string) (*AggregateResult, error) {
	servers, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return f.InitializeAll(ctx, servers), nil
}
