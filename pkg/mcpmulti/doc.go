// Package mcpmulti aggregates connections to several MCP servers behind one
// client. Servers are addressed by name; tool listings from all servers can be
// flattened into a single slice for handing to an agent runtime.
//
// A Client is built with New from a set of ServerConnection declarations and
// connects to every server eagerly. Additional servers can join a running
// client with ConnectTo. All per-server operations proxy to a
// mcpwire.Client, so errors carry the originating server's name.
package mcpmulti
