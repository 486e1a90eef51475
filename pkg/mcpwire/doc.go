// Package mcpwire provides a high-level client for a single Model Context
// Protocol (MCP) server. It handles transport setup (stdio or SSE),
// configuration loading from a JSON profile file, session lifecycle, and a
// small error taxonomy so callers can distinguish connection, timeout,
// protocol, data, and configuration failures without inspecting wire-level
// errors. Importers can construct a Client directly, or resolve a named
// profile with FromConfig and let the library merge explicit overrides with
// the profile and built-in defaults.
//
// # Core entry points
//
//   - Client is the per-server handle. Construct it with NewClient or
//     FromConfig, then either call Open/Close explicitly or use WithSession
//     for scoped acquisition that closes the session even when the callback
//     fails.
//   - ClientOptions declares how the server is launched or contacted and
//     carries ambient settings (timeout, logger, JSON-RPC traffic logging,
//     injected environment lookup for "env:VAR" API keys).
//   - Config / ServerProfile model the mcp.json file: a default_server name
//     plus a mapping of named profiles.
//
// After the session is open, use GetServerMetadata, ListTools, CallTool,
// GetPrompt, ListResources, ReadResource, and SubscribeResource /
// UnsubscribeResource to interrogate the server. Every call applies the
// configured per-call timeout and reports failures through the taxonomy in
// errors.go; API errors carry the server-supplied JSON-RPC code.
//
// For several servers at once, see the mcpmulti package, which aggregates
// Clients by name and flattens their tools for agent-framework consumption.
package mcpwire
