// Package mcpmgr connects a fleet of Model Context Protocol (MCP) servers
// from a single Go process. Each server is described either as a local
// process spoken to over stdio or as a URL, and the package negotiates the
// transport on top of the modelcontextprotocol/go-sdk client.
//
// # Core entry points
//
//   - Fleet is the orchestration type. Construct it with NewFleet, then call
//     InitializeAll with an ordered []NamedServer (or LoadAndInitialize with
//     a JSON config file). Every server is connected concurrently and gets
//     exactly one Outcome in the returned AggregateResult.
//   - ServerConfig (StdioServerConfig / URLServerConfig) declares how each
//     server is launched or contacted. URL servers default to automatic
//     transport selection: the credentials are pre-validated, streamable
//     HTTP is tried with a full initialize handshake, and a client-error
//     rejection falls back to the deprecated SSE transport. ws:// and wss://
//     URLs use the WebSocket transport.
//   - AggregateResult.Release tears down every process and connection the
//     run acquired, in reverse acquisition order. It must be called even
//     when some servers failed.
//
// Failures are *ConnectionError values whose Kind (spawn, connect, auth,
// config) can be tested with errors.Is against ErrSpawn, ErrConnect,
// ErrAuth and ErrConfig.
//
// FleetOptions carries client identity, timeouts and collaborators.
// OptionsFromEnv fills it from MCPMGR_* environment variables. When a
// prometheus.Registerer is supplied the fleet exports connection metrics,
// and every server connect is traced through the configured otel
// TracerProvider.
//
// Use the helper guards and narrowers (IsStdio/IsURL and AsStdio/AsURL) or
// TransportOf to branch on the concrete config type. Avoid marshaling
// BaseServerConfig directly because it contains function fields.
package mcpmgr
