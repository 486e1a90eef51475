package mcpwire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Error is implemented by every error kind this package produces. Callers can
// match a specific kind with errors.As, or catch the whole taxonomy at once:
//
//	var mcpErr mcpwire.Error
//	if errors.As(err, &mcpErr) { ... }
type Error interface {
	error
	mcpwireError()
}

// Sentinel conditions carried inside a ConnectionError, for errors.Is checks.
var (
	// ErrNotConnected indicates a call was made before Open.
	ErrNotConnected = errors.New("client is not connected")

	// ErrClosed indicates the client was closed and cannot be reused.
	ErrClosed = errors.New("client is closed")
)

// ConnectionError reports that the transport was unreachable, refused, or
// dropped mid-session.
type ConnectionError struct {
	Server string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcpwire: server %q: connection error: %v", e.Server, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
func (e *ConnectionError) mcpwireError() {}

// TimeoutError reports that a call did not complete within its deadline. The
// underlying session stays open unless the transport itself reported a
// failure, in which case a ConnectionError is raised instead.
type TimeoutError struct {
	Server string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mcpwire: server %q: call timed out: %v", e.Server, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) mcpwireError() {}

// APIError reports an application-level failure returned by the remote
// server. Code and Data mirror the JSON-RPC error object when the protocol
// supplied one.
type APIError struct {
	Server  string
	Code    int64
	Message string
	Data    json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("mcpwire: server %q: api error %d: %s", e.Server, e.Code, e.Message)
	}
	return fmt.Sprintf("mcpwire: server %q: api error: %s", e.Server, e.Message)
}

func (e *APIError) mcpwireError() {}

// DataError reports a payload that failed validation against the expected
// shape, either outgoing tool arguments or an incoming response.
type DataError struct {
	Server string
	Err    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("mcpwire: server %q: data error: %v", e.Server, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }
func (e *DataError) mcpwireError() {}

// ConfigError reports a missing or malformed configuration: absent file,
// invalid JSON, unknown profile, a missing transport-required field, or an
// unresolved env:VAR API key. Server names the offending profile when one is
// known.
type ConfigError struct {
	Server string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Server == "" {
		return fmt.Sprintf("mcpwire: configuration error: %v", e.Err)
	}
	return fmt.Sprintf("mcpwire: server %q: configuration error: %v", e.Server, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
func (e *ConfigError) mcpwireError() {}

// normalizeError maps a low-level failure onto the taxonomy. Errors already
// in the taxonomy and cooperative cancellation pass through untouched.
func normalizeError(server string, err error) error {
	if err == nil {
		return nil
	}
	var already Error
	if errors.As(err, &already) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Server: server, Err: err}
	}
	var wireErr *jsonrpc.WireError
	if errors.As(err, &wireErr) {
		return &APIError{Server: server, Code: wireErr.Code, Message: wireErr.Message, Data: wireErr.Data}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Server: server, Err: err}
	}
	return &ConnectionError{Server: server, Err: err}
}
