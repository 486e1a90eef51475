package mcpmulti

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpwire/mcpwire-go/pkg/mcpwire"
)

// ServerConnection declares how to reach one server. The zero value is not
// usable; either BaseURL or Command must be set, matching the transport.
type ServerConnection struct {
	// BaseURL is the endpoint for the SSE transport.
	BaseURL string
	// Transport selects the transport kind. Empty defaults to "sse".
	Transport mcpwire.TransportKind
	// Command and Args launch the server for the stdio transport.
	Command string
	Args    []string
	// Env adds variables to the spawned server process (stdio only).
	Env map[string]string
	// APIKey is sent as a Bearer token; the "env:VAR" form is supported.
	APIKey string
	// Timeout bounds each call to this server. Zero means the default.
	Timeout time.Duration
	// Resources configures auto-subscription and default templates.
	Resources *mcpwire.ResourcePolicy
	// LogJSONRPC mirrors this server's JSON-RPC traffic to the logger.
	LogJSONRPC bool
	// SessionTransport injects a pre-built transport, bypassing BaseURL and
	// Command. Intended for embedding and in-memory tests.
	SessionTransport mcp.Transport
}

// Options apply across every server in the aggregate.
type Options struct {
	// Order fixes the connection order of the servers passed to New, which
	// governs Tools() aggregation order. Names omitted from Order follow in
	// sorted order; a name not present in the server set is an
	// UnknownServerError.
	Order []string
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// ClientName and ClientVersion are advertised to each server.
	ClientName    string
	ClientVersion string
	// EnvLookup resolves "env:VAR" API keys. Defaults to os.LookupEnv.
	EnvLookup mcpwire.EnvLookup
	// OnResourceUpdated is invoked for resource update notifications from any
	// server, with the originating server's name.
	OnResourceUpdated func(ctx context.Context, server, uri string)
}

func (sc ServerConnection) clientOptions(name string, opts Options) mcpwire.ClientOptions {
	co := mcpwire.ClientOptions{
		BaseURL:          sc.BaseURL,
		Transport:        sc.Transport,
		Command:          sc.Command,
		Args:             sc.Args,
		Env:              sc.Env,
		APIKey:           sc.APIKey,
		Timeout:          sc.Timeout,
		Resources:        sc.Resources,
		LogJSONRPC:       sc.LogJSONRPC,
		SessionTransport: sc.SessionTransport,
		ClientName:       opts.ClientName,
		ClientVersion:    opts.ClientVersion,
		Logger:           opts.Logger,
		EnvLookup:        opts.EnvLookup,
	}
	if handler := opts.OnResourceUpdated; handler != nil {
		co.OnResourceUpdated = func(ctx context.Context, uri string) {
			handler(ctx, name, uri)
		}
	}
	return co
}
