package mcpgateway

import (
	"fmt"
	"net/url"
	"strings"
)

// NamespaceStrategy generates the downstream identifiers for upstream
// servers. Implementations must be deterministic and collision-free for a
// given server/name pair.
type NamespaceStrategy interface {
	ToolName(server, toolName string) string
	PromptName(server, promptName string) string
	ResourceURI(server, resourceURI string) string
	ResourceTemplateURI(server, templateURI string) string
	NativeResourceURI(server, gatewayURI string) (string, bool)
	NativeResourceTemplateURI(server, gatewayURI string) (string, bool)
}

// ServerPrefixNamespace prefixes tool and prompt names with the originating
// server name, separated by a configurable delimiter (default "__" to stay
// within the protocol's identifier character guidance). Resource URIs get a
// dedicated scheme so the original URI survives round-tripping.
type ServerPrefixNamespace struct {
	Separator string
}

func (s ServerPrefixNamespace) separator() string {
	if s.Separator == "" {
		return "__"
	}
	return s.Separator
}

func (s ServerPrefixNamespace) ToolName(server, toolName string) string {
	return server + s.separator() + toolName
}

func (s ServerPrefixNamespace) PromptName(server, promptName string) string {
	return server + s.separator() + promptName
}

func (s ServerPrefixNamespace) ResourceURI(server, resourceURI string) string {
	return s.encode("resources", server, resourceURI)
}

func (s ServerPrefixNamespace) ResourceTemplateURI(server, templateURI string) string {
	return s.encode("templates", server, templateURI)
}

func (s ServerPrefixNamespace) NativeResourceURI(server, gatewayURI string) (string, bool) {
	return s.decode("resources", server, gatewayURI)
}

func (s ServerPrefixNamespace) NativeResourceTemplateURI(server, gatewayURI string) (string, bool) {
	return s.decode("templates", server, gatewayURI)
}

func (s ServerPrefixNamespace) encode(category, server, raw string) string {
	return fmt.Sprintf("mcpwire+%s/%s::%s", url.PathEscape(server), category, raw)
}

func (s ServerPrefixNamespace) decode(category, server, gateway string) (string, bool) {
	prefix := fmt.Sprintf("mcpwire+%s/%s::", url.PathEscape(server), category)
	if !strings.HasPrefix(gateway, prefix) {
		return "", false
	}
	return strings.TrimPrefix(gateway, prefix), true
}
