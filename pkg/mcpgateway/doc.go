// Package mcpgateway re-exposes every server held by an mcpmulti.Client as a
// single Streamable MCP server over HTTP. Downstream clients connect to one
// endpoint and reach the tools, prompts, and resources of all upstream
// servers; names and URIs are prefixed with the owning server's name so
// collisions across servers stay addressable.
package mcpgateway
