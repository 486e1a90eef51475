package mcpgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"

	"github.com/mcpwire/mcpwire-go/pkg/mcpmulti"
	"github.com/mcpwire/mcpwire-go/pkg/mcpwire"
)

// Gateway exposes a Streamable MCP server that fronts every server held by an
// mcpmulti.Client under a single HTTP endpoint.
type Gateway struct {
	multi *mcpmulti.Client
	opts  Options

	features *featureIndex

	server        *mcp.Server
	streamHandler *mcp.StreamableHTTPHandler
	mux           *http.ServeMux
	httpHandler   http.Handler

	serverMu     sync.Mutex
	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// NewGateway builds a Gateway over an already-connected aggregate and
// synchronizes the initial feature snapshot from every server.
func NewGateway(multi *mcpmulti.Client, opts *Options) (*Gateway, error) {
	if multi == nil {
		return nil, fmt.Errorf("mcpgateway: aggregate client is required")
	}
	options := opts.withDefaults()
	g := &Gateway{
		multi:    multi,
		opts:     options,
		features: newFeatureIndex(options.Namespace),
	}

	g.server = mcp.NewServer(options.Implementation, &mcp.ServerOptions{
		HasTools:           true,
		HasPrompts:         true,
		HasResources:       true,
		SubscribeHandler:   g.handleSubscribe,
		UnsubscribeHandler: g.handleUnsubscribe,
	})
	g.streamHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return g.server
	}, &options.Streamable)
	g.httpHandler = g.mountHandler()

	if err := g.SyncAll(context.Background()); err != nil {
		return nil, err
	}
	return g, nil
}

// Handler exposes the HTTP handler serving the Streamable endpoint, with the
// configured CORS policy applied.
func (g *Gateway) Handler() http.Handler {
	return g.httpHandler
}

// ServeMux exposes the underlying mux for callers who mount the gateway into
// a larger HTTP server.
func (g *Gateway) ServeMux() *http.ServeMux {
	return g.mux
}

// ListenAndServe runs an HTTP server until the provided context is cancelled
// or the server stops.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	g.httpServerMu.Lock()
	if g.httpServer != nil {
		srv := g.httpServer
		g.httpServerMu.Unlock()
		return fmt.Errorf("mcpgateway: server already running on %s", srv.Addr)
	}
	srv := &http.Server{Addr: g.opts.Addr, Handler: g.Handler()}
	g.httpServer = srv
	g.httpServerMu.Unlock()
	defer func() {
		g.httpServerMu.Lock()
		if g.httpServer == srv {
			g.httpServer = nil
		}
		g.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.opts.SyncTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.httpServerMu.Lock()
	srv := g.httpServer
	g.httpServer = nil
	g.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

// SyncAll refreshes every connected server.
func (g *Gateway) SyncAll(ctx context.Context) error {
	var lastErr error
	for _, server := range g.multi.Servers() {
		if err := g.SyncServer(ctx, server); err != nil {
			lastErr = err
			g.logError("sync server", err, "server", server)
		}
	}
	return lastErr
}

// SyncServer refreshes a specific server's tools, prompts, resources, and
// resource templates.
func (g *Gateway) SyncServer(ctx context.Context, server string) error {
	if err := g.syncTools(ctx, server); err != nil {
		return err
	}
	if err := g.syncPrompts(ctx, server); err != nil {
		return err
	}
	return g.syncResources(ctx, server)
}

// AttachServer connects one more upstream server through the aggregate and
// synchronizes its features.
func (g *Gateway) AttachServer(ctx context.Context, server string, conn mcpmulti.ServerConnection) error {
	if err := g.multi.ConnectTo(ctx, server, conn); err != nil {
		return err
	}
	return g.SyncServer(ctx, server)
}

// DetachServer deregisters a server's features and disconnects it.
func (g *Gateway) DetachServer(server string) error {
	g.applyTools(g.features.UpdateTools(server, nil))
	g.applyPrompts(g.features.UpdatePrompts(server, nil))
	g.applyResources(g.features.UpdateResources(server, nil))
	g.applyTemplates(g.features.UpdateTemplates(server, nil))
	return g.multi.Disconnect(server)
}

func (g *Gateway) syncTools(ctx context.Context, server string) error {
	ctx, cancel := g.syncContext(ctx)
	defer cancel()
	tools, err := g.multi.ListTools(ctx, server)
	if err != nil {
		return err
	}
	g.applyTools(g.features.UpdateTools(server, tools))
	return nil
}

func (g *Gateway) syncPrompts(ctx context.Context, server string) error {
	ctx, cancel := g.syncContext(ctx)
	defer cancel()
	prompts, err := g.multi.ListPrompts(ctx, server)
	if err != nil {
		return err
	}
	g.applyPrompts(g.features.UpdatePrompts(server, prompts))
	return nil
}

// syncResources refreshes resources and templates from the single combined
// listing the aggregate provides.
func (g *Gateway) syncResources(ctx context.Context, server string) error {
	ctx, cancel := g.syncContext(ctx)
	defer cancel()
	list, err := g.multi.ListResources(ctx, server)
	if err != nil {
		return err
	}
	g.applyResources(g.features.UpdateResources(server, list.Resources))
	g.applyTemplates(g.features.UpdateTemplates(server, list.Templates))
	return nil
}

func (g *Gateway) applyTools(removed []string, added []toolRegistration) {
	g.serverMu.Lock()
	defer g.serverMu.Unlock()
	if len(removed) > 0 {
		g.server.RemoveTools(removed...)
	}
	for _, reg := range added {
		g.server.AddTool(reg.Tool, g.makeToolHandler(reg.Route))
	}
}

func (g *Gateway) applyPrompts(removed []string, added []promptRegistration) {
	g.serverMu.Lock()
	defer g.serverMu.Unlock()
	if len(removed) > 0 {
		g.server.RemovePrompts(removed...)
	}
	for _, reg := range added {
		g.server.AddPrompt(reg.Prompt, g.makePromptHandler(reg.Route))
	}
}

func (g *Gateway) applyResources(removed []string, added []resourceRegistration) {
	g.serverMu.Lock()
	defer g.serverMu.Unlock()
	if len(removed) > 0 {
		g.server.RemoveResources(removed...)
	}
	for _, reg := range added {
		g.server.AddResource(reg.Resource, g.makeResourceHandler(reg.Route))
	}
}

func (g *Gateway) applyTemplates(removed []string, added []templateRegistration) {
	g.serverMu.Lock()
	defer g.serverMu.Unlock()
	if len(removed) > 0 {
		g.server.RemoveResourceTemplates(removed...)
	}
	for _, reg := range added {
		g.server.AddResourceTemplate(reg.Template, g.makeTemplateHandler(reg.Route))
	}
}

func (g *Gateway) makeToolHandler(route featureRoute) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := decodeArguments(route.Server, req)
		if err != nil {
			return nil, err
		}
		return g.multi.CallTool(ctx, route.Server, route.Native, args)
	}
}

func (g *Gateway) makePromptHandler(route featureRoute) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		var args map[string]string
		if req.Params != nil {
			args = req.Params.Arguments
		}
		return g.multi.GetPrompt(ctx, route.Server, route.Native, args)
	}
}

func (g *Gateway) makeResourceHandler(route featureRoute) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return g.multi.ReadResource(ctx, route.Server, route.Native)
	}
}

func (g *Gateway) makeTemplateHandler(route featureRoute) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		native := route.Native
		if req != nil && req.Params != nil {
			if candidate, ok := g.opts.Namespace.NativeResourceTemplateURI(route.Server, req.Params.URI); ok {
				native = candidate
			}
		}
		return g.multi.ReadResource(ctx, route.Server, native)
	}
}

func (g *Gateway) handleSubscribe(ctx context.Context, req *mcp.SubscribeRequest) error {
	if req == nil || req.Params == nil {
		return fmt.Errorf("mcpgateway: missing subscribe params")
	}
	route, ok := g.features.ResourceRoute(req.Params.URI)
	if !ok {
		return fmt.Errorf("mcpgateway: unknown resource %q", req.Params.URI)
	}
	return g.multi.SubscribeResource(ctx, route.Server, route.Native)
}

func (g *Gateway) handleUnsubscribe(ctx context.Context, req *mcp.UnsubscribeRequest) error {
	if req == nil || req.Params == nil {
		return fmt.Errorf("mcpgateway: missing unsubscribe params")
	}
	route, ok := g.features.ResourceRoute(req.Params.URI)
	if !ok {
		return fmt.Errorf("mcpgateway: unknown resource %q", req.Params.URI)
	}
	return g.multi.UnsubscribeResource(ctx, route.Server, route.Native)
}

// HandleResourceUpdate forwards an upstream resource update notification to
// downstream sessions under the gateway URI. Wire it into
// mcpmulti.Options.OnResourceUpdated. An update for a URI the gateway has not
// seen triggers a resync of that server's resources first.
func (g *Gateway) HandleResourceUpdate(ctx context.Context, server, nativeURI string) {
	gatewayURI, ok := g.features.GatewayURIForNative(server, nativeURI)
	if !ok {
		if err := g.syncResources(context.Background(), server); err != nil {
			g.logError("resync unknown resource", err, "server", server)
			return
		}
		gatewayURI, ok = g.features.GatewayURIForNative(server, nativeURI)
		if !ok {
			return
		}
	}
	params := &mcp.ResourceUpdatedNotificationParams{URI: gatewayURI}
	if err := g.server.ResourceUpdated(ctx, params); err != nil {
		g.logError("forward resource update", err, "server", server)
	}
}

func (g *Gateway) mountHandler() http.Handler {
	path := g.opts.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	mux := http.NewServeMux()
	mux.Handle(path, g.streamHandler)
	if !strings.HasSuffix(path, "/") {
		mux.Handle(path+"/", g.streamHandler)
	}
	g.mux = mux
	var handler http.Handler = mux
	if g.opts.CORS != nil {
		handler = cors.New(*g.opts.CORS).Handler(handler)
	}
	return handler
}

func (g *Gateway) syncContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if g.opts.SyncTimeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, g.opts.SyncTimeout)
}

func (g *Gateway) logError(msg string, err error, args ...any) {
	if err == nil {
		return
	}
	attrs := append([]any{"error", err}, args...)
	g.opts.Logger.Error(msg, attrs...)
}

// decodeArguments normalizes the wire-level tool arguments into the map shape
// the aggregate client expects. Failures name the upstream server the call
// was routed to.
func decodeArguments(server string, req *mcp.CallToolRequest) (map[string]any, error) {
	if req == nil || req.Params == nil || req.Params.Arguments == nil {
		return nil, nil
	}
	raw, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return nil, &mcpwire.DataError{Server: server, Err: fmt.Errorf("encode tool arguments: %w", err)}
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, &mcpwire.DataError{Server: server, Err: fmt.Errorf("decode tool arguments: %w", err)}
	}
	return args, nil
}
