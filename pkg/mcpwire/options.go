package mcpwire

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TransportKind identifies how the client reaches a server.
type TransportKind string

const (
	// TransportSSE is a persistent event-stream HTTP connection.
	TransportSSE TransportKind = "sse"
	// TransportStdio launches the server as a subprocess and speaks over its
	// pipes.
	TransportStdio TransportKind = "stdio"
)

// DefaultTimeout applies when neither the options nor the profile set one.
const DefaultTimeout = 60 * time.Second

// NopLogger returns a logger that discards everything, for callers who want
// the client fully silent.
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// EnvLookup resolves environment variable references such as "env:VAR" in
// API keys. Injecting it keeps configuration resolution deterministic in
// tests; the default is os.LookupEnv.
type EnvLookup func(name string) (string, bool)

// ResourceUpdatedHandler is invoked when a subscribed resource changes on the
// server.
type ResourceUpdatedHandler func(ctx context.Context, uri string)

// ClientOptions declare how a Client reaches its server. Explicit fields take
// precedence over profile fields loaded by FromConfig, which in turn take
// precedence over built-in defaults.
type ClientOptions struct {
	// BaseURL is the endpoint for the SSE transport.
	BaseURL string
	// Transport selects the transport kind. Empty defaults to "sse".
	Transport TransportKind
	// Command and Args launch the server for the stdio transport.
	Command string
	Args    []string
	// Env adds variables to the spawned server process (stdio only).
	Env map[string]string
	// APIKey is sent as a Bearer token. The form "env:VAR" is resolved via
	// EnvLookup at construction time; an unset variable is a ConfigError.
	APIKey string
	// Timeout bounds every individual call. Zero means DefaultTimeout.
	Timeout time.Duration
	// HTTPClient overrides the HTTP client used by the SSE transport.
	HTTPClient *http.Client
	// Resources configures auto-subscription and client-side default
	// templates for the server's resources.
	Resources *ResourcePolicy
	// ClientName and ClientVersion are advertised during initialization.
	// Defaults: the server name and "1.0.0".
	ClientName    string
	ClientVersion string
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// LogJSONRPC mirrors all JSON-RPC traffic to Logger at debug level.
	LogJSONRPC bool
	// EnvLookup resolves "env:VAR" API keys. Defaults to os.LookupEnv.
	EnvLookup EnvLookup
	// ConfigPath points FromConfig at an explicit config file instead of the
	// standard search locations.
	ConfigPath string
	// OnResourceUpdated is invoked for resource update notifications from
	// the server.
	OnResourceUpdated ResourceUpdatedHandler
	// SessionTransport injects a pre-built MCP transport, bypassing BaseURL
	// and Command entirely. Intended for embedding and in-memory tests.
	SessionTransport mcp.Transport
}
