package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"

	"github.com/mcpwire/mcpwire-go/pkg/mcpgateway"
	"github.com/mcpwire/mcpwire-go/pkg/mcpmulti"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var gateway *mcpgateway.Gateway
	multi, err := mcpmulti.New(ctx, map[string]mcpmulti.ServerConnection{
		"everything": {
			Transport: "stdio",
			Command:   "npx",
			Args:      []string{"@modelcontextprotocol/server-everything"},
			Timeout:   15 * time.Second,
		},
	}, &mcpmulti.Options{
		ClientName: "gateway-example",
		OnResourceUpdated: func(ctx context.Context, server, uri string) {
			if gateway != nil {
				gateway.HandleResourceUpdate(ctx, server, uri)
			}
		},
	})
	if err != nil {
		log.Fatalf("connect upstream servers: %v", err)
	}
	defer multi.Close()

	gateway, err = mcpgateway.NewGateway(multi, &mcpgateway.Options{
		Addr: ":8787",
		Path: "/mcp",
		Streamable: mcp.StreamableHTTPOptions{
			JSONResponse: true,
		},
		CORS: &cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Mcp-Session-Id"},
		},
	})
	if err != nil {
		log.Fatalf("build gateway: %v", err)
	}

	log.Printf("gateway serving Streamable MCP on :8787/mcp")
	if err := gateway.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("gateway server stopped: %v", err)
	}
}
