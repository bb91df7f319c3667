// Package errors defines the structured error taxonomy shared by the
// security layer, the protocol dispatcher, and the transport.
//
// Every rejection the gateway produces is represented as a *WardenError
// carrying a category, a stable code, and a JSON-RPC error code so that
// transports can turn any error into a well-formed protocol response
// without inspecting message strings.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes errors by how callers should react to them.
type ErrorType string

const (
	// ErrorTypeProtocol covers malformed envelopes and unknown methods.
	// Always recovered locally and surfaced as a structured response.
	ErrorTypeProtocol ErrorType = "protocol"
	// ErrorTypeAuthentication covers bad or missing credentials.
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeRateLimit covers exhausted token buckets and active bans.
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeSession covers unknown or expired session ids.
	ErrorTypeSession ErrorType = "session"
	// ErrorTypeAuthorization covers commands denied by the allow-list.
	ErrorTypeAuthorization ErrorType = "authorization"
	// ErrorTypeCapability covers requests naming an unregistered tool
	// or resource.
	ErrorTypeCapability ErrorType = "capability"
	// ErrorTypeTool covers capability failures and host hand-off
	// timeouts. Never fatal for the dispatcher.
	ErrorTypeTool ErrorType = "tool"
	// ErrorTypeTransport covers bind failures and mid-stream write
	// errors. Fatal only for the affected connection or subscriber.
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeConfig covers invalid configuration values.
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// Reserved JSON-RPC error codes plus the gateway's domain codes.
const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInternalError  = -32603

	RPCAuthenticationError = -32001
	RPCRateLimitError      = -32002
	RPCSessionError        = -32003
	RPCAuthorizationError  = -32004
	RPCCapabilityNotFound  = -32005
	RPCToolExecutionError  = -32006
)

// WardenError is the structured error type used throughout the gateway.
type WardenError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Source      string // network identity of the caller, when known
	Recoverable bool
}

// Error implements the error interface.
func (e *WardenError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Source != "" {
		parts = append(parts, "source:"+e.Source)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *WardenError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *WardenError) Is(target error) bool {
	var t *WardenError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithSource attaches the caller's network identity to the error.
func (e *WardenError) WithSource(source string) *WardenError {
	e.Source = source
	return e
}

// RPCCode maps the error to its reserved JSON-RPC error code.
func (e *WardenError) RPCCode() int {
	switch e.Type {
	case ErrorTypeProtocol:
		if e.Code == CodeMethodNotFound {
			return RPCMethodNotFound
		}
		return RPCParseError
	case ErrorTypeAuthentication:
		return RPCAuthenticationError
	case ErrorTypeRateLimit:
		return RPCRateLimitError
	case ErrorTypeSession:
		return RPCSessionError
	case ErrorTypeAuthorization:
		return RPCAuthorizationError
	case ErrorTypeCapability:
		return RPCCapabilityNotFound
	case ErrorTypeTool:
		return RPCToolExecutionError
	default:
		return RPCInternalError
	}
}

// Stable error codes.
const (
	CodeParseError       = "ERR_PARSE"
	CodeMethodNotFound   = "ERR_METHOD_NOT_FOUND"
	CodeBadCredential    = "ERR_BAD_CREDENTIAL"
	CodeBanned           = "ERR_BANNED"
	CodeRateLimited      = "ERR_RATE_LIMITED"
	CodeSessionInvalid   = "ERR_SESSION_INVALID"
	CodeCommandDenied    = "ERR_COMMAND_DENIED"
	CodeToolNotFound     = "ERR_TOOL_NOT_FOUND"
	CodeResourceNotFound = "ERR_RESOURCE_NOT_FOUND"
	CodeToolFailed       = "ERR_TOOL_FAILED"
	CodeHostTimeout      = "ERR_HOST_TIMEOUT"
	CodeOriginDenied     = "ERR_ORIGIN_DENIED"
	CodeStreamCapacity   = "ERR_STREAM_CAPACITY"
	CodeBindFailed       = "ERR_BIND_FAILED"
	CodeConfigInvalid    = "ERR_CONFIG_INVALID"
	CodeInternal         = "ERR_INTERNAL"
)

// NewProtocolError creates a protocol error for a malformed envelope.
func NewProtocolError(code, message string, cause error) *WardenError {
	return &WardenError{
		Type:        ErrorTypeProtocol,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewAuthenticationError creates an authentication failure error.
func NewAuthenticationError(code, message string) *WardenError {
	return &WardenError{
		Type:        ErrorTypeAuthentication,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewRateLimitError creates a rate-limit rejection error.
func NewRateLimitError(code, message string) *WardenError {
	return &WardenError{
		Type:        ErrorTypeRateLimit,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewSessionError creates an unknown-or-expired session error.
func NewSessionError(message string) *WardenError {
	return &WardenError{
		Type:        ErrorTypeSession,
		Code:        CodeSessionInvalid,
		Message:     message,
		Recoverable: true,
	}
}

// NewAuthorizationError creates an allow-list denial error.
func NewAuthorizationError(message string) *WardenError {
	return &WardenError{
		Type:        ErrorTypeAuthorization,
		Code:        CodeCommandDenied,
		Message:     message,
		Recoverable: true,
	}
}

// NewCapabilityError creates an unknown tool or resource error.
func NewCapabilityError(code, message string) *WardenError {
	return &WardenError{
		Type:        ErrorTypeCapability,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewToolError creates a tool execution failure error.
func NewToolError(code, message string, cause error) *WardenError {
	return &WardenError{
		Type:        ErrorTypeTool,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewTransportError creates a transport-level error.
func NewTransportError(code, message string, cause error) *WardenError {
	return &WardenError{
		Type:    ErrorTypeTransport,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *WardenError {
	return &WardenError{
		Type:    ErrorTypeConfig,
		Code:    CodeConfigInvalid,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *WardenError {
	return &WardenError{
		Type:    ErrorTypeInternal,
		Code:    CodeInternal,
		Message: message,
		Cause:   cause,
	}
}

// IsSecurityEvent reports whether the error should be logged as a
// security event with the caller's identity.
func IsSecurityEvent(err error) bool {
	var we *WardenError
	if errors.As(err, &we) {
		switch we.Type {
		case ErrorTypeAuthentication, ErrorTypeRateLimit, ErrorTypeAuthorization:
			return true
		}
	}

	return false
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var we *WardenError
	if errors.As(err, &we) {
		return we.Recoverable
	}

	return false
}
