package bridge

import (
	"context"
	"encoding/json"
)

// Request is the wire format for requests sent over the Unix socket, one
// JSON object per line.
type Request struct {
	Type string          `json:"type"`           // "Invoke", "Ping"
	Cmd  string          `json:"cmd,omitempty"`  // gateway command for Invoke
	Args json.RawMessage `json:"args,omitempty"` // command arguments for Invoke
}

// Response is the wire format for responses sent over the Unix socket.
type Response struct {
	Type    string          `json:"type"`              // "Result", "Pong", "Error"
	Result  json.RawMessage `json:"result,omitempty"`  // JSON-encoded command result
	Code    int             `json:"code,omitempty"`    // error code
	Message string          `json:"message,omitempty"` // error message
}

// Error codes, borrowed from JSON-RPC.
const (
	CodeParse    = -32700
	CodeUnknown  = -32601
	CodeInternal = -32603
)

// Router runs commands for the server. Implemented by the command gateway.
type Router interface {
	Invoke(ctx context.Context, cmd string, args json.RawMessage) (any, error)
}
