package mcpwire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func TestNormalizeErrorTimeout(t *testing.T) {
	t.Parallel()

	err := normalizeError("alpha", fmt.Errorf("call failed: %w", context.DeadlineExceeded))
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if timeoutErr.Server != "alpha" {
		t.Fatalf("server = %q, expected alpha", timeoutErr.Server)
	}
	if !strings.Contains(err.Error(), "alpha") {
		t.Fatalf("message should name the server: %s", err)
	}
}

func TestNormalizeErrorWireError(t *testing.T) {
	t.Parallel()

	wire := &jsonrpc.WireError{Code: -32602, Message: "invalid params"}
	err := normalizeError("bravo", fmt.Errorf("tools/call: %w", wire))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != -32602 {
		t.Fatalf("code = %d, expected -32602", apiErr.Code)
	}
	if !strings.Contains(apiErr.Error(), "-32602") || !strings.Contains(apiErr.Error(), "bravo") {
		t.Fatalf("message should carry server and code: %s", apiErr)
	}
}

func TestNormalizeErrorCancellationPassesThrough(t *testing.T) {
	t.Parallel()

	err := normalizeError("alpha", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation should pass through, got %v", err)
	}
	var mcpErr Error
	if errors.As(err, &mcpErr) {
		t.Fatalf("cancellation should not be wrapped into the taxonomy")
	}
}

func TestNormalizeErrorDefaultsToConnection(t *testing.T) {
	t.Parallel()

	err := normalizeError("charlie", errors.New("connection refused"))
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %T", err)
	}
}

func TestNormalizeErrorKeepsTaxonomy(t *testing.T) {
	t.Parallel()

	orig := &DataError{Server: "delta", Err: errors.New("bad shape")}
	if got := normalizeError("delta", orig); got != orig {
		t.Fatalf("taxonomy errors must pass through unchanged, got %v", got)
	}
}

func TestTaxonomyRootMatching(t *testing.T) {
	t.Parallel()

	kinds := []error{
		&ConnectionError{Server: "s", Err: ErrNotConnected},
		&TimeoutError{Server: "s", Err: context.DeadlineExceeded},
		&APIError{Server: "s", Code: 404, Message: "missing"},
		&DataError{Server: "s", Err: errors.New("shape")},
		&ConfigError{Server: "s", Err: errors.New("missing field")},
	}
	for _, kind := range kinds {
		wrapped := fmt.Errorf("outer: %w", kind)
		var mcpErr Error
		if !errors.As(wrapped, &mcpErr) {
			t.Fatalf("%T should match the Error root", kind)
		}
	}
}

func TestConnectionErrorSentinels(t *testing.T) {
	t.Parallel()

	err := &ConnectionError{Server: "s", Err: ErrClosed}
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("ErrClosed should be reachable through Unwrap")
	}
	if errors.Is(err, ErrNotConnected) {
		t.Fatalf("ErrNotConnected should not match")
	}
}
