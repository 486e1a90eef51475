package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcpwire/mcpwire-go/pkg/mcpwire"
)

func main() {
	configPath := flag.String("config", "", "path to mcp.json (defaults to the standard search locations)")
	serverName := flag.String("server", "", "server profile to use (defaults to the config's default_server)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := mcpwire.FromConfig(*serverName, &mcpwire.ClientOptions{
		ConfigPath: *configPath,
		ClientName: "client-example",
	})
	if err != nil {
		log.Fatalf("configure client: %v", err)
	}

	err = client.WithSession(ctx, func(ctx context.Context, c *mcpwire.Client) error {
		meta, err := c.GetServerMetadata(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Connected to %s %s\n", meta.Name, meta.Version)

		tools, err := c.ListTools(ctx)
		if err != nil {
			return err
		}
		for _, tool := range tools {
			fmt.Printf("Tool: %s - %s\n", tool.Name, tool.Description)
		}

		resources, err := c.ListResources(ctx)
		if err != nil {
			return err
		}
		for _, resource := range resources.Resources {
			fmt.Printf("Resource: %s (%s)\n", resource.URI, resource.MIMEType)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("session failed: %v", err)
	}
}
