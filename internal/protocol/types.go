// Package protocol implements the MCP JSON-RPC envelope and the request
// dispatcher that routes decoded requests to registered capabilities
// after the security gates have passed.
package protocol

import (
	"context"
	"encoding/json"
)

// Version is the protocol revision echoed in the initialize handshake.
const Version = "2024-11-05"

// JSONRPCVersion tags every response envelope.
const JSONRPCVersion = "2.0"

// Request is the decoded wire envelope for one call.
type Request struct {
	JSONRPC   string          `json:"jsonrpc,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	ID        *string         `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// Response is the wire envelope for one reply. Exactly one of Result
// and Error is set.
type Response struct {
	JSONRPC string       `json:"jsonrpc"`
	Result  any          `json:"result,omitempty"`
	Error   *ErrorObject `json:"error,omitempty"`
	ID      *string      `json:"id,omitempty"`
}

// ErrorObject is the error half of a response envelope.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Caller describes the already-established trust state of the
// connection a request arrived on. The transport fills it in before
// dispatch.
type Caller struct {
	Source        string
	Authenticated bool
}

// ContentItem is one piece of tool or resource output.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// ToolResult is the uniform result of a capability invocation. Failed
// invocations carry IsError rather than becoming protocol errors.
type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// TextResult builds a single-text tool result.
func TextResult(text string) *ToolResult {
	return &ToolResult{
		Content: []ContentItem{{Type: "text", Text: text}},
	}
}

// ErrorResult builds an error-flagged tool result.
func ErrorResult(text string) *ToolResult {
	return &ToolResult{
		Content: []ContentItem{{Type: "text", Text: text}},
		IsError: true,
	}
}

// Tool is a named capability behind the uniform execute interface. The
// dispatcher invokes tools opaquely; what they do to the host is not
// its concern.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, args json.RawMessage) (*ToolResult, error)
}

// CommandInvoker is implemented by tools whose invocation executes a
// host sub-command. The dispatcher consults the command allow-list for
// these before invoking them.
type CommandInvoker interface {
	CommandFromArgs(args json.RawMessage) (string, bool)
}

// ResourceResult is the payload of a resources/read call.
type ResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ResourceContent is one readable resource representation.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Resource is a named readable capability addressed by resource:// URI.
type Resource interface {
	Name() string
	Description() string
	MimeType() string
	Read(ctx context.Context, uri string) (*ResourceResult, error)
}

// ToolDefinition is the tools/list wire representation of a Tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ResourceDefinition is the resources/list wire representation.
type ResourceDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}
