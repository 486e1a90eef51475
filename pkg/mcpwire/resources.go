package mcpwire

import (
	"context"
	"fmt"
	"path"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"
)

// validateResourcePolicy rejects malformed policies at construction time so a
// bad uri_template or glob never surfaces mid-session.
func validateResourcePolicy(server string, policy *ResourcePolicy) error {
	if policy == nil {
		return nil
	}
	for _, spec := range policy.DefaultTemplates {
		if spec.URITemplate == "" {
			return &ConfigError{Server: server, Err: fmt.Errorf("default template %q has no uri_template", spec.Name)}
		}
		if _, err := uritemplate.New(spec.URITemplate); err != nil {
			return &ConfigError{Server: server, Err: fmt.Errorf("default template %q: %w", spec.URITemplate, err)}
		}
	}
	for _, pattern := range policy.AutoSubscribe {
		if _, err := path.Match(pattern, ""); err != nil {
			return &ConfigError{Server: server, Err: fmt.Errorf("auto_subscribe pattern %q: %w", pattern, err)}
		}
	}
	return nil
}

// defaultTemplates converts the policy's template specs into protocol
// descriptors, preserving their configured order.
func (c *Client) defaultTemplates() []*mcp.ResourceTemplate {
	policy := c.opts.Resources
	if policy == nil || !policy.Enabled || len(policy.DefaultTemplates) == 0 {
		return nil
	}
	templates := make([]*mcp.ResourceTemplate, 0, len(policy.DefaultTemplates))
	for _, spec := range policy.DefaultTemplates {
		templates = append(templates, &mcp.ResourceTemplate{
			URITemplate: spec.URITemplate,
			Name:        spec.Name,
			Description: spec.Description,
			MIMEType:    spec.MIMEType,
		})
	}
	return templates
}

// applyResourcePolicy subscribes to discovered resources whose URIs match the
// policy's auto_subscribe globs, in pattern order. Runs right after the
// session opens, without c.mu held; failures are logged, not fatal, since the
// session itself is healthy.
func (c *Client) applyResourcePolicy(ctx context.Context, session *mcp.ClientSession, policy *ResourcePolicy) {
	if len(policy.AutoSubscribe) == 0 {
		return
	}
	listCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	res, err := session.ListResources(listCtx, nil)
	if err != nil {
		c.logger.Warn("resource policy: list resources", "server", c.server, "error", err)
		return
	}
	for _, pattern := range policy.AutoSubscribe {
		for _, resource := range res.Resources {
			ok, err := path.Match(pattern, resource.URI)
			if err != nil || !ok {
				continue
			}
			subCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
			err = session.Subscribe(subCtx, &mcp.SubscribeParams{URI: resource.URI})
			cancel()
			if err != nil {
				c.logger.Warn("resource policy: subscribe", "server", c.server, "uri", resource.URI, "error", err)
				continue
			}
			c.logger.Debug("resource policy: subscribed", "server", c.server, "uri", resource.URI)
		}
	}
}
