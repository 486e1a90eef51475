package mcpmulti

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// AgentTool is one server's tool packaged for an agent runtime: the schema
// for argument construction plus a bound Call method. ServerName
// disambiguates tools that share a name across servers.
type AgentTool struct {
	ServerName  string
	Name        string
	Description string
	InputSchema *jsonschema.Schema

	client serverClient
}

// Call invokes the tool on its originating server.
func (t *AgentTool) Call(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	return t.client.CallTool(ctx, t.Name, args)
}
