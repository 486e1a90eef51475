package mcpgateway

import (
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
)

// Options configure a Gateway instance.
type Options struct {
	// Implementation identifies the gateway's MCP server metadata.
	Implementation *mcp.Implementation
	// Addr is the listen address used by ListenAndServe. Defaults to ":8700".
	Addr string
	// Path mounts the Streamable handler under a specific HTTP path.
	// Defaults to "/mcp".
	Path string
	// Namespace customizes how upstream names and URIs are exposed to
	// downstream clients. Defaults to ServerPrefixNamespace.
	Namespace NamespaceStrategy
	// Streamable tweaks the Streamable HTTP handler behavior passed to
	// mcp.NewStreamableHTTPHandler.
	Streamable mcp.StreamableHTTPOptions
	// CORS, when set, wraps the HTTP handler with the given cross-origin
	// policy. Nil leaves the handler unwrapped.
	CORS *cors.Options
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// SyncTimeout bounds each upstream synchronization call.
	SyncTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Implementation == nil {
		opts.Implementation = &mcp.Implementation{
			Name:    "mcpwire-gateway",
			Title:   "mcpwire Gateway",
			Version: "1.0.0",
		}
	} else {
		impl := *opts.Implementation
		opts.Implementation = &impl
	}
	if opts.Addr == "" {
		opts.Addr = ":8700"
	}
	if opts.Path == "" {
		opts.Path = "/mcp"
	}
	if opts.Namespace == nil {
		opts.Namespace = ServerPrefixNamespace{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 30 * time.Second
	}
	return opts
}
