package mcpmulti

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/mcpwire/mcpwire-go/pkg/mcpwire"
)

// UnknownServerError reports an operation addressed to a server name the
// client does not hold a connection for.
type UnknownServerError struct {
	Server string
}

func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("server %q is not configured", e.Server)
}

// DuplicateServerError reports a ConnectTo call reusing an existing name.
type DuplicateServerError struct {
	Server string
}

func (e *DuplicateServerError) Error() string {
	return fmt.Sprintf("server %q is already connected", e.Server)
}

// serverClient is the slice of mcpwire.Client the aggregate depends on.
type serverClient interface {
	Open(ctx context.Context) error
	Close() error
	GetServerMetadata(ctx context.Context) (*mcpwire.ServerMetadata, error)
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	CachedTools() []*mcp.Tool
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	ListPrompts(ctx context.Context) ([]*mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
	ListResources(ctx context.Context) (*mcpwire.ResourceList, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	SubscribeResource(ctx context.Context, uri string) error
	UnsubscribeResource(ctx context.Context, uri string) error
}

// Client multiplexes several named server connections. Connection order is
// stable: servers given to New come first, ordered by Options.Order (sorted
// names for any not listed there), and servers added with ConnectTo follow in
// arrival order. Tools() and Close() walk servers in that order.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	order   []string
	clients map[string]serverClient
	closed  bool
}

// New connects to every declared server eagerly and warms each server's tool
// cache. If any server fails to connect, the ones already opened are closed
// and the first error is returned; a partially connected aggregate is never
// handed out.
func New(ctx context.Context, servers map[string]ServerConnection, opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Client{
		opts:    o,
		logger:  logger,
		clients: make(map[string]serverClient, len(servers)),
	}

	names, err := connectionOrder(servers, o.Order)
	if err != nil {
		return nil, err
	}

	// Configuration errors surface before any connection is attempted.
	for _, name := range names {
		wc, err := mcpwire.NewClient(name, servers[name].clientOptions(name, o))
		if err != nil {
			return nil, err
		}
		m.clients[name] = wc
		m.order = append(m.order, name)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		client := m.clients[name]
		g.Go(func() error {
			if err := client.Open(gctx); err != nil {
				return err
			}
			_, err := client.ListTools(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		for _, name := range m.order {
			if closeErr := m.clients[name].Close(); closeErr != nil {
				logger.Warn("cleanup after failed connect", "server", name, "error", closeErr)
			}
		}
		return nil, err
	}
	logger.Debug("all servers connected", "count", len(m.order))
	return m, nil
}

// connectionOrder resolves the initial connection order: explicitly listed
// names first, then the remainder in sorted order.
func connectionOrder(servers map[string]ServerConnection, explicit []string) ([]string, error) {
	names := make([]string, 0, len(servers))
	listed := make(map[string]bool, len(explicit))
	for _, name := range explicit {
		if _, ok := servers[name]; !ok {
			return nil, &UnknownServerError{Server: name}
		}
		if listed[name] {
			continue
		}
		listed[name] = true
		names = append(names, name)
	}
	rest := make([]string, 0, len(servers))
	for name := range servers {
		if !listed[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...), nil
}

// ConnectTo adds one more server to a running aggregate. The name must be
// new; reconnecting an existing name is a DuplicateServerError.
func (m *Client) ConnectTo(ctx context.Context, name string, conn ServerConnection) error {
	wc, err := mcpwire.NewClient(name, conn.clientOptions(name, m.opts))
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return &mcpwire.ConnectionError{Server: name, Err: mcpwire.ErrClosed}
	}
	if _, exists := m.clients[name]; exists {
		m.mu.Unlock()
		return &DuplicateServerError{Server: name}
	}
	m.clients[name] = wc
	m.order = append(m.order, name)
	m.mu.Unlock()

	err = wc.Open(ctx)
	if err == nil {
		_, err = wc.ListTools(ctx)
	}
	if err != nil {
		m.remove(name)
		_ = wc.Close()
		return err
	}
	m.logger.Debug("server connected", "server", name)
	return nil
}

// Disconnect closes one server's session and removes it from the aggregate.
func (m *Client) Disconnect(name string) error {
	m.mu.Lock()
	client, ok := m.clients[name]
	m.mu.Unlock()
	if !ok {
		return &UnknownServerError{Server: name}
	}
	m.remove(name)
	if err := client.Close(); err != nil {
		return err
	}
	m.logger.Debug("server disconnected", "server", name)
	return nil
}

func (m *Client) remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Servers returns the connected server names in connection order.
func (m *Client) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *Client) lookup(name string) (serverClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[name]
	if !ok {
		return nil, &UnknownServerError{Server: name}
	}
	return client, nil
}

// Tools flattens every server's cached tool snapshot into agent-callable
// handles, in connection order. Name collisions across servers are preserved,
// not deduplicated; ServerName disambiguates.
func (m *Client) Tools() []*AgentTool {
	m.mu.RLock()
	order := append([]string(nil), m.order...)
	clients := make(map[string]serverClient, len(m.clients))
	for name, client := range m.clients {
		clients[name] = client
	}
	m.mu.RUnlock()

	var tools []*AgentTool
	for _, name := range order {
		client := clients[name]
		for _, tool := range client.CachedTools() {
			tools = append(tools, &AgentTool{
				ServerName:  name,
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
				client:      client,
			})
		}
	}
	return tools
}

// RefreshTools re-lists every server's tools so Tools() reflects the servers'
// current state.
func (m *Client) RefreshTools(ctx context.Context) error {
	m.mu.RLock()
	order := append([]string(nil), m.order...)
	clients := make(map[string]serverClient, len(m.clients))
	for name, client := range m.clients {
		clients[name] = client
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range order {
		client := clients[name]
		g.Go(func() error {
			_, err := client.ListTools(gctx)
			return err
		})
	}
	return g.Wait()
}

// GetServerMetadata returns the named server's advertised implementation
// record.
func (m *Client) GetServerMetadata(ctx context.Context, server string) (*mcpwire.ServerMetadata, error) {
	client, err := m.lookup(server)
	if err != nil {
		return nil, err
	}
	return client.GetServerMetadata(ctx)
}

// ListTools lists one server's tools.
func (m *Client) ListTools(ctx context.Context, server string) ([]*mcp.Tool, error) {
	client, err := m.lookup(server)
	if err != nil {
		return nil, err
	}
	return client.ListTools(ctx)
}

// CallTool invokes a tool on the named server.
func (m *Client) CallTool(ctx context.Context, server, name string, args map[string]any) (*mcp.CallToolResult, error) {
	client, err := m.lookup(server)
	if err != nil {
		return nil, err
	}
	return client.CallTool(ctx, name, args)
}

// ListPrompts lists one server's prompts.
func (m *Client) ListPrompts(ctx context.Context, server string) ([]*mcp.Prompt, error) {
	client, err := m.lookup(server)
	if err != nil {
		return nil, err
	}
	return client.ListPrompts(ctx)
}

// GetPrompt expands a prompt on the named server.
func (m *Client) GetPrompt(ctx context.Context, server, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	client, err := m.lookup(server)
	if err != nil {
		return nil, err
	}
	return client.GetPrompt(ctx, name, args)
}

// ListResources lists one server's resources and templates.
func (m *Client) ListResources(ctx context.Context, server string) (*mcpwire.ResourceList, error) {
	client, err := m.lookup(server)
	if err != nil {
		return nil, err
	}
	return client.ListResources(ctx)
}

// ReadResource reads a resource from the named server.
func (m *Client) ReadResource(ctx context.Context, server, uri string) (*mcp.ReadResourceResult, error) {
	client, err := m.lookup(server)
	if err != nil {
		return nil, err
	}
	return client.ReadResource(ctx, uri)
}

// SubscribeResource subscribes to updates for a resource on the named server.
func (m *Client) SubscribeResource(ctx context.Context, server, uri string) error {
	client, err := m.lookup(server)
	if err != nil {
		return err
	}
	return client.SubscribeResource(ctx, uri)
}

// UnsubscribeResource cancels a subscription on the named server.
func (m *Client) UnsubscribeResource(ctx context.Context, server, uri string) error {
	client, err := m.lookup(server)
	if err != nil {
		return err
	}
	return client.UnsubscribeResource(ctx, uri)
}

// Close tears down every session. Teardown is best effort: every server is
// closed even when earlier closes fail, and the failures are joined.
func (m *Client) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	order := append([]string(nil), m.order...)
	clients := m.clients
	m.clients = map[string]serverClient{}
	m.order = nil
	m.mu.Unlock()

	var errs []error
	for _, name := range order {
		if err := clients[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
