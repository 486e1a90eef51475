package mcpwire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerMetadata is the name/version record advertised by the server during
// initialization.
type ServerMetadata struct {
	Name         string
	Title        string
	Version      string
	Instructions string
}

// ResourceList bundles the server's enumerable resources with its resource
// templates, including any client-side default templates from the resource
// policy.
type ResourceList struct {
	Resources []*mcp.Resource
	Templates []*mcp.ResourceTemplate
}

// Client owns one connection to one MCP server. A Client holds at most one
// open session; Close tears it down and the Client cannot be reopened
// afterwards. Methods on a single Client are not safe for overlapping calls
// on the same session; callers should serialize per server.
type Client struct {
	server     string
	opts       ClientOptions
	authHeader string
	impl       *mcp.Implementation
	logger     *slog.Logger

	mu      sync.Mutex
	session *mcp.ClientSession
	closed  bool
	connID  string
	tools   []*mcp.Tool
}

// NewClient validates the options and returns an unconnected Client. API key
// resolution (including "env:VAR" lookups) and transport validation happen
// here, so configuration errors surface before any connection attempt.
func NewClient(server string, opts ClientOptions) (*Client, error) {
	if server == "" {
		server = "default"
	}
	if opts.Transport == "" {
		opts.Transport = TransportSSE
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.EnvLookup == nil {
		opts.EnvLookup = os.LookupEnv
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.SessionTransport == nil {
		switch opts.Transport {
		case TransportSSE:
			if opts.BaseURL == "" {
				return nil, &ConfigError{Server: server, Err: errors.New("base_url is required for the sse transport")}
			}
		case TransportStdio:
			if opts.Command == "" {
				return nil, &ConfigError{Server: server, Err: errors.New("command is required for the stdio transport")}
			}
		default:
			return nil, &ConfigError{Server: server, Err: fmt.Errorf("transport %q is not supported", opts.Transport)}
		}
	}

	key, err := resolveAPIKey(server, opts.APIKey, opts.EnvLookup)
	if err != nil {
		return nil, err
	}
	if err := validateResourcePolicy(server, opts.Resources); err != nil {
		return nil, err
	}

	name := opts.ClientName
	if name == "" {
		name = server
	}
	version := opts.ClientVersion
	if version == "" {
		version = "1.0.0"
	}

	c := &Client{
		server: server,
		opts:   opts,
		impl:   &mcp.Implementation{Name: name, Version: version},
		logger: logger,
	}
	if key != "" {
		c.authHeader = "Bearer " + key
	}
	return c, nil
}

// Server returns the name used in error messages and logs: the profile name
// for configured clients, or the name passed to NewClient.
func (c *Client) Server() string { return c.server }

// Open establishes the transport-specific session: spawns the server process
// for stdio, or opens the persistent event stream for SSE. Opening an
// already-open client is a no-op; opening a closed client fails with a
// ConnectionError.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &ConnectionError{Server: c.server, Err: ErrClosed}
	}
	if c.session != nil {
		c.mu.Unlock()
		return nil
	}

	transport, err := c.buildTransport()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	connID := uuid.NewString()
	if c.opts.LogJSONRPC {
		transport = &rpcLogTransport{
			server:   c.server,
			connID:   connID,
			delegate: transport,
			logger:   c.logger,
		}
	}

	client := mcp.NewClient(c.impl, c.composeClientOptions())
	connectCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	session, err := client.Connect(connectCtx, transport, nil)
	if err != nil {
		c.mu.Unlock()
		return normalizeError(c.server, err)
	}
	c.session = session
	c.connID = connID
	// The policy does network I/O; the lock must not be held across it, or a
	// notification handler re-entering the client would block the read loop.
	c.mu.Unlock()
	c.logger.Debug("session opened", "server", c.server, "conn", connID)

	if policy := c.opts.Resources; policy != nil && policy.Enabled {
		c.applyResourcePolicy(ctx, session, policy)
	}
	return nil
}

// Close tears the session down unconditionally. It is safe to call more than
// once; after the first call the client reports ErrClosed and never silently
// reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	session := c.session
	c.session = nil
	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return normalizeError(c.server, err)
	}
	c.logger.Debug("session closed", "server", c.server, "conn", c.connID)
	return nil
}

// WithSession opens the client, runs fn, and guarantees the session is closed
// afterwards, including when fn returns an error or panics.
func (c *Client) WithSession(ctx context.Context, fn func(ctx context.Context, c *Client) error) (err error) {
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer func() {
		closeErr := c.Close()
		if err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, c)
}

func (c *Client) composeClientOptions() *mcp.ClientOptions {
	opts := &mcp.ClientOptions{}
	if handler := c.opts.OnResourceUpdated; handler != nil {
		opts.ResourceUpdatedHandler = func(ctx context.Context, req *mcp.ResourceUpdatedNotificationRequest) {
			if req == nil || req.Params == nil {
				return
			}
			handler(ctx, req.Params.URI)
		}
	}
	return opts
}

func (c *Client) buildTransport() (mcp.Transport, error) {
	if c.opts.SessionTransport != nil {
		return c.opts.SessionTransport, nil
	}
	switch c.opts.Transport {
	case TransportStdio:
		cmd := exec.Command(c.opts.Command, c.opts.Args...)
		if len(c.opts.Env) > 0 {
			env := os.Environ()
			for k, v := range c.opts.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			cmd.Env = env
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case TransportSSE:
		return &mcp.SSEClientTransport{
			Endpoint:   c.opts.BaseURL,
			HTTPClient: c.httpClient(),
		}, nil
	default:
		return nil, &ConfigError{Server: c.server, Err: fmt.Errorf("transport %q is not supported", c.opts.Transport)}
	}
}

func (c *Client) httpClient() *http.Client {
	base := c.opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	if c.authHeader == "" {
		return base
	}
	clone := *base
	clone.Transport = &headerDecorator{
		next:       defaultRoundTripper(base.Transport),
		authHeader: c.authHeader,
	}
	return &clone
}

// current returns the open session or the appropriate ConnectionError.
func (c *Client) current() (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &ConnectionError{Server: c.server, Err: ErrClosed}
	}
	if c.session == nil {
		return nil, &ConnectionError{Server: c.server, Err: ErrNotConnected}
	}
	return c.session, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opts.Timeout)
}

// GetServerMetadata pings the server and returns the implementation record it
// advertised during initialization.
func (c *Client) GetServerMetadata(ctx context.Context) (*ServerMetadata, error) {
	session, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := session.Ping(ctx, nil); err != nil {
		return nil, normalizeError(c.server, err)
	}
	init := session.InitializeResult()
	if init == nil || init.ServerInfo == nil {
		return nil, &DataError{Server: c.server, Err: errors.New("server supplied no implementation info")}
	}
	return &ServerMetadata{
		Name:         init.ServerInfo.Name,
		Title:        init.ServerInfo.Title,
		Version:      init.ServerInfo.Version,
		Instructions: init.Instructions,
	}, nil
}

// ListTools retrieves the server's tools and caches the snapshot for
// synchronous aggregation (see CachedTools).
func (c *Client) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	session, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := session.ListTools(ctx, nil)
	if err != nil {
		if isMethodUnavailableError(err, "tools/list") {
			c.setCachedTools(nil)
			return []*mcp.Tool{}, nil
		}
		return nil, normalizeError(c.server, err)
	}
	c.setCachedTools(res.Tools)
	return res.Tools, nil
}

// CachedTools returns the snapshot captured by the last successful ListTools
// call, in server-reported order.
func (c *Client) CachedTools() []*mcp.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*mcp.Tool(nil), c.tools...)
}

func (c *Client) setCachedTools(tools []*mcp.Tool) {
	c.mu.Lock()
	c.tools = append([]*mcp.Tool(nil), tools...)
	c.mu.Unlock()
}

func (c *Client) cachedTool(name string) *mcp.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tool := range c.tools {
		if tool.Name == name {
			return tool
		}
	}
	return nil
}

// CallTool invokes a named tool. Nil arguments are sent as an empty mapping;
// when the tool's input schema is known from a prior ListTools, arguments are
// validated against it before the request is sent, and a mismatch is a
// DataError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	session, err := c.current()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &DataError{Server: c.server, Err: errors.New("tool name is required")}
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := c.validateToolArgs(name, args); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, normalizeError(c.server, err)
	}
	return res, nil
}

func (c *Client) validateToolArgs(name string, args map[string]any) error {
	tool := c.cachedTool(name)
	if tool == nil || tool.InputSchema == nil {
		return nil
	}
	resolved, err := tool.InputSchema.Resolve(nil)
	if err != nil {
		// An unresolvable schema is the server's defect; let the server
		// judge the arguments instead.
		c.logger.Debug("tool schema did not resolve", "server", c.server, "tool", name, "error", err)
		return nil
	}
	if err := resolved.Validate(args); err != nil {
		return &DataError{Server: c.server, Err: fmt.Errorf("arguments for tool %q: %w", name, err)}
	}
	return nil
}

// ListPrompts retrieves the server's prompts, normalizing servers without
// prompt support to an empty slice.
func (c *Client) ListPrompts(ctx context.Context) ([]*mcp.Prompt, error) {
	session, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := session.ListPrompts(ctx, nil)
	if err != nil {
		if isMethodUnavailableError(err, "prompts/list") {
			return []*mcp.Prompt{}, nil
		}
		return nil, normalizeError(c.server, err)
	}
	return res.Prompts, nil
}

// GetPrompt expands a named prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	session, err := c.current()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &DataError{Server: c.server, Err: errors.New("prompt name is required")}
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return nil, normalizeError(c.server, err)
	}
	return res, nil
}

// ListResources retrieves resources and resource templates in one call.
// Client-side default templates from the resource policy are appended after
// the server's own templates.
func (c *Client) ListResources(ctx context.Context) (*ResourceList, error) {
	session, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	list := &ResourceList{}
	res, err := session.ListResources(ctx, nil)
	if err != nil {
		if !isMethodUnavailableError(err, "resources/list") {
			return nil, normalizeError(c.server, err)
		}
	} else {
		list.Resources = res.Resources
	}
	templates, err := session.ListResourceTemplates(ctx, nil)
	if err != nil {
		if !isMethodUnavailableError(err, "resources/templates/list") {
			return nil, normalizeError(c.server, err)
		}
	} else {
		list.Templates = templates.ResourceTemplates
	}
	list.Templates = append(list.Templates, c.defaultTemplates()...)
	return list, nil
}

// ReadResource reads one resource by URI. Binary contents stay opaque bytes;
// text contents are returned unmodified.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	session, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, normalizeError(c.server, err)
	}
	return res, nil
}

// SubscribeResource registers for update notifications on a resource URI.
// The server is the source of truth for deduplication; subscribing twice to
// the same URI does not fail locally.
func (c *Client) SubscribeResource(ctx context.Context, uri string) error {
	session, err := c.current()
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := session.Subscribe(ctx, &mcp.SubscribeParams{URI: uri}); err != nil {
		return normalizeError(c.server, err)
	}
	return nil
}

// UnsubscribeResource cancels a subscription previously created with
// SubscribeResource.
func (c *Client) UnsubscribeResource(ctx context.Context, uri string) error {
	session, err := c.current()
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := session.Unsubscribe(ctx, &mcp.UnsubscribeParams{URI: uri}); err != nil {
		return normalizeError(c.server, err)
	}
	return nil
}

type headerDecorator struct {
	next       http.RoundTripper
	authHeader string
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", d.authHeader)
	}
	return d.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}

func isMethodUnavailableError(err error, method string) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	if !(strings.Contains(lower, "method not found") ||
		strings.Contains(lower, "not implemented") ||
		strings.Contains(lower, "unsupported") ||
		strings.Contains(lower, "does not support") ||
		strings.Contains(lower, "unimplemented")) {
		return false
	}
	for _, part := range strings.FieldsFunc(strings.ToLower(method), func(r rune) bool {
		return r == '/' || r == ':' || r == '.' || r == '_' || r == '-'
	}) {
		if part != "" && strings.Contains(lower, part) {
			return true
		}
	}
	return true
}
