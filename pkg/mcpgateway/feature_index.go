package mcpgateway

import (
	"maps"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	metaKeyServer     = "mcpwire.server"
	metaKeyNativeName = "mcpwire.native_name"
	metaKeyNativeURI  = "mcpwire.native_uri"
)

// featureIndex maps gateway-facing identifiers back to their originating
// server and native name or URI. It owns the namespace translation; the
// Gateway consults it on every proxied call.
type featureIndex struct {
	ns NamespaceStrategy

	mu sync.RWMutex

	tools           map[string]featureRoute
	serverTools     map[string][]string
	prompts         map[string]featureRoute
	serverPrompts   map[string][]string
	resources       map[string]featureRoute
	serverResources map[string][]string
	resourceReverse map[string]string
	templates       map[string]featureRoute
	serverTemplates map[string][]string
}

// featureRoute binds one gateway identifier to its upstream origin. Native
// holds the server-side name for tools and prompts, and the server-side URI
// for resources and templates.
type featureRoute struct {
	Gateway string
	Server  string
	Native  string
}

type toolRegistration struct {
	Tool  *mcp.Tool
	Route featureRoute
}

type promptRegistration struct {
	Prompt *mcp.Prompt
	Route  featureRoute
}

type resourceRegistration struct {
	Resource *mcp.Resource
	Route    featureRoute
}

type templateRegistration struct {
	Template *mcp.ResourceTemplate
	Route    featureRoute
}

func newFeatureIndex(ns NamespaceStrategy) *featureIndex {
	return &featureIndex{
		ns:              ns,
		tools:           make(map[string]featureRoute),
		serverTools:     make(map[string][]string),
		prompts:         make(map[string]featureRoute),
		serverPrompts:   make(map[string][]string),
		resources:       make(map[string]featureRoute),
		serverResources: make(map[string][]string),
		resourceReverse: make(map[string]string),
		templates:       make(map[string]featureRoute),
		serverTemplates: make(map[string][]string),
	}
}

// UpdateTools replaces one server's tool registrations with a fresh upstream
// snapshot, returning the gateway names to deregister and the clones to
// register.
func (f *featureIndex) UpdateTools(server string, upstream []*mcp.Tool) (removed []string, added []toolRegistration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed = f.dropLocked(f.tools, f.serverTools, server, nil)
	names := make([]string, 0, len(upstream))
	for _, tool := range upstream {
		if tool == nil {
			continue
		}
		route := featureRoute{
			Gateway: f.ns.ToolName(server, tool.Name),
			Server:  server,
			Native:  tool.Name,
		}
		clone := *tool
		clone.Name = route.Gateway
		clone.Meta = withMeta(tool.Meta, map[string]any{
			metaKeyServer:     server,
			metaKeyNativeName: tool.Name,
		})
		f.tools[route.Gateway] = route
		added = append(added, toolRegistration{Tool: &clone, Route: route})
		names = append(names, route.Gateway)
	}
	f.serverTools[server] = names
	return removed, added
}

// UpdatePrompts replaces one server's prompt registrations.
func (f *featureIndex) UpdatePrompts(server string, upstream []*mcp.Prompt) (removed []string, added []promptRegistration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed = f.dropLocked(f.prompts, f.serverPrompts, server, nil)
	var names []string
	for _, prompt := range upstream {
		if prompt == nil {
			continue
		}
		route := featureRoute{
			Gateway: f.ns.PromptName(server, prompt.Name),
			Server:  server,
			Native:  prompt.Name,
		}
		clone := *prompt
		clone.Name = route.Gateway
		clone.Meta = withMeta(prompt.Meta, map[string]any{
			metaKeyServer:     server,
			metaKeyNativeName: prompt.Name,
		})
		f.prompts[route.Gateway] = route
		added = append(added, promptRegistration{Prompt: &clone, Route: route})
		names = append(names, route.Gateway)
	}
	f.serverPrompts[server] = names
	return removed, added
}

// UpdateResources replaces one server's resource registrations and maintains
// the native-to-gateway reverse index used for update notifications.
func (f *featureIndex) UpdateResources(server string, upstream []*mcp.Resource) (removed []string, added []resourceRegistration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed = f.dropLocked(f.resources, f.serverResources, server, func(route featureRoute) {
		delete(f.resourceReverse, reverseKey(route.Server, route.Native))
	})
	var names []string
	for _, resource := range upstream {
		if resource == nil {
			continue
		}
		route := featureRoute{
			Gateway: f.ns.ResourceURI(server, resource.URI),
			Server:  server,
			Native:  resource.URI,
		}
		clone := *resource
		clone.URI = route.Gateway
		clone.Meta = withMeta(resource.Meta, map[string]any{
			metaKeyServer:    server,
			metaKeyNativeURI: resource.URI,
		})
		f.resources[route.Gateway] = route
		f.resourceReverse[reverseKey(server, resource.URI)] = route.Gateway
		added = append(added, resourceRegistration{Resource: &clone, Route: route})
		names = append(names, route.Gateway)
	}
	f.serverResources[server] = names
	return removed, added
}

// UpdateTemplates replaces one server's resource template registrations.
func (f *featureIndex) UpdateTemplates(server string, upstream []*mcp.ResourceTemplate) (removed []string, added []templateRegistration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed = f.dropLocked(f.templates, f.serverTemplates, server, nil)
	var names []string
	for _, tpl := range upstream {
		if tpl == nil {
			continue
		}
		route := featureRoute{
			Gateway: f.ns.ResourceTemplateURI(server, tpl.URITemplate),
			Server:  server,
			Native:  tpl.URITemplate,
		}
		clone := *tpl
		clone.URITemplate = route.Gateway
		clone.Meta = withMeta(tpl.Meta, map[string]any{
			metaKeyServer:    server,
			metaKeyNativeURI: tpl.URITemplate,
		})
		f.templates[route.Gateway] = route
		added = append(added, templateRegistration{Template: &clone, Route: route})
		names = append(names, route.Gateway)
	}
	f.serverTemplates[server] = names
	return removed, added
}

func (f *featureIndex) ToolRoute(name string) (featureRoute, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	route, ok := f.tools[name]
	return route, ok
}

func (f *featureIndex) PromptRoute(name string) (featureRoute, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	route, ok := f.prompts[name]
	return route, ok
}

func (f *featureIndex) ResourceRoute(uri string) (featureRoute, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	route, ok := f.resources[uri]
	return route, ok
}

func (f *featureIndex) TemplateRoute(uri string) (featureRoute, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	route, ok := f.templates[uri]
	return route, ok
}

// GatewayURIForNative resolves a server's native resource URI to the gateway
// URI currently registered for it.
func (f *featureIndex) GatewayURIForNative(server, nativeURI string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	uri, ok := f.resourceReverse[reverseKey(server, nativeURI)]
	return uri, ok
}

// dropLocked removes every registration the given server contributed to one
// feature map, invoking onDrop per removed route.
func (f *featureIndex) dropLocked(routes map[string]featureRoute, byServer map[string][]string, server string, onDrop func(featureRoute)) []string {
	names := byServer[server]
	if len(names) == 0 {
		return nil
	}
	for _, name := range names {
		if onDrop != nil {
			if route, ok := routes[name]; ok {
				onDrop(route)
			}
		}
		delete(routes, name)
	}
	delete(byServer, server)
	return append([]string(nil), names...)
}

func reverseKey(server, nativeURI string) string {
	return server + "\x00" + nativeURI
}

func withMeta(base map[string]any, extras map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any, len(extras))
	}
	for k, v := range extras {
		out[k] = v
	}
	return out
}
