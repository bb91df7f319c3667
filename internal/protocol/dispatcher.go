package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/errors"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/security"
)

// HandlerFunc handles one decoded request and returns the result
// payload or a *errors.WardenError.
type HandlerFunc func(ctx context.Context, caller Caller, req *Request) (any, error)

type handlerEntry struct {
	fn           HandlerFunc
	requiresAuth bool
}

// DispatcherConfig identifies the server in the initialize handshake
// and selects which capability classes it advertises.
type DispatcherConfig struct {
	ServerName       string
	ServerVersion    string
	ToolsEnabled     bool
	ResourcesEnabled bool
}

// Dispatcher routes decoded protocol requests to registered method
// handlers. Routing is a pure lookup: the same request always reaches
// the same handler, and side effects happen only inside capability
// invocation.
type Dispatcher struct {
	config   DispatcherConfig
	handlers map[string]handlerEntry
	registry *Registry
	sessions *security.SessionStore
	policy   *security.CommandPolicy
	logger   logging.Logger

	cmdLimiter   *security.RateLimiter
	cmdPerMinute int
}

// NewDispatcher creates a dispatcher over the capability registry and
// registers the built-in method table.
func NewDispatcher(
	config DispatcherConfig,
	registry *Registry,
	sessions *security.SessionStore,
	policy *security.CommandPolicy,
	logger logging.Logger,
) *Dispatcher {
	d := &Dispatcher{
		config:   config,
		handlers: make(map[string]handlerEntry),
		registry: registry,
		sessions: sessions,
		policy:   policy,
		logger:   logger,
	}

	d.Register("initialize", false, d.handleInitialize)
	d.Register("tools/list", true, d.handleToolsList)
	d.Register("tools/call", true, d.handleToolsCall)
	d.Register("resources/list", true, d.handleResourcesList)
	d.Register("resources/read", true, d.handleResourcesRead)
	d.Register("session/end", true, d.handleSessionEnd)

	return d
}

// SetCommandLimiter throttles command-invoking tool calls per source.
// A nil limiter or non-positive budget disables the throttle.
func (d *Dispatcher) SetCommandLimiter(limiter *security.RateLimiter, perMinute int) {
	d.cmdLimiter = limiter
	d.cmdPerMinute = perMinute
}

// Register adds a method handler. Adding a method is a registration,
// not a switch branch.
func (d *Dispatcher) Register(method string, requiresAuth bool, fn HandlerFunc) {
	d.handlers[method] = handlerEntry{fn: fn, requiresAuth: requiresAuth}
}

// Dispatch decodes a raw envelope, runs the security gates, invokes the
// routed handler, and composes the response. It never panics and never
// returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte, caller Caller) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, errors.NewProtocolError(errors.CodeParseError, "parse error", err))
	}

	return d.DispatchRequest(ctx, &req, caller)
}

// DispatchRequest routes an already-decoded request.
func (d *Dispatcher) DispatchRequest(ctx context.Context, req *Request, caller Caller) (resp *Response) {
	defer func() {
		// A capability must never crash the dispatcher or transport.
		if r := recover(); r != nil {
			err := errors.NewInternalError(fmt.Sprintf("handler panic: %v", r), nil)
			if d.logger != nil {
				d.logger.Error(ctx, err, "recovered handler panic", "method", req.Method)
			}
			resp = errorResponse(req.ID, err)
		}
	}()

	entry, ok := d.handlers[req.Method]
	if !ok {
		return errorResponse(req.ID, errors.NewProtocolError(
			errors.CodeMethodNotFound, "method not found: "+req.Method, nil))
	}

	if entry.requiresAuth && !caller.Authenticated {
		if req.SessionID == "" {
			err := errors.NewAuthenticationError(errors.CodeBadCredential, "authentication required")
			logging.LogSecurityEvent(d.logger, ctx, err, "unauthenticated_request", caller.Source, req.Method)
			return errorResponse(req.ID, err)
		}
		if !d.sessions.Validate(req.SessionID) {
			err := errors.NewSessionError("unknown or expired session")
			logging.LogSecurityEvent(d.logger, ctx, err, "invalid_session", caller.Source, req.Method)
			return errorResponse(req.ID, err)
		}
	}

	result, err := entry.fn(ctx, caller, req)
	if err != nil {
		if errors.IsSecurityEvent(err) {
			logging.LogSecurityEvent(d.logger, ctx, err, "request_denied", caller.Source, req.Method)
		} else if d.logger != nil {
			d.logger.Warn(ctx, err, "request failed", "method", req.Method, "source", caller.Source)
		}
		return errorResponse(req.ID, err)
	}

	return &Response{
		JSONRPC: JSONRPCVersion,
		Result:  result,
		ID:      req.ID,
	}
}

func errorResponse(id *string, err error) *Response {
	code := errors.RPCInternalError
	var we *errors.WardenError
	if stderrors.As(err, &we) {
		code = we.RPCCode()
	}

	return &Response{
		JSONRPC: JSONRPCVersion,
		Error:   &ErrorObject{Code: code, Message: err.Error()},
		ID:      id,
	}
}

// InitializeResult is the initialize handshake payload.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities"`
	SessionID       string         `json:"sessionId,omitempty"`
}

// ServerInfo names the server in the handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

func (d *Dispatcher) handleInitialize(ctx context.Context, caller Caller, req *Request) (any, error) {
	var params initializeParams
	if len(req.Params) > 0 {
		// Malformed params degrade to an anonymous client, not an error.
		_ = json.Unmarshal(req.Params, &params)
	}

	capabilities := make(map[string]any)
	if d.config.ToolsEnabled {
		capabilities["tools"] = struct{}{}
	}
	if d.config.ResourcesEnabled {
		capabilities["resources"] = struct{}{}
	}

	result := InitializeResult{
		ProtocolVersion: Version,
		ServerInfo: ServerInfo{
			Name:    d.config.ServerName,
			Version: d.config.ServerVersion,
		},
		Capabilities: capabilities,
	}

	// Authenticated callers get a session so stateful connections can
	// present it instead of re-sending the credential.
	if caller.Authenticated {
		result.SessionID = d.sessions.Create(caller.Source)
	}

	if d.logger != nil {
		d.logger.Info(ctx, "client initialized",
			"client", params.ClientInfo.Name,
			"client_version", params.ClientInfo.Version,
			"source", caller.Source)
	}

	return result, nil
}

func (d *Dispatcher) handleToolsList(_ context.Context, _ Caller, _ *Request) (any, error) {
	return map[string]any{"tools": d.registry.ToolDefinitions()}, nil
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, caller Caller, req *Request) (any, error) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.NewProtocolError(errors.CodeParseError, "invalid tools/call params", err)
	}

	tool, ok := d.registry.Tool(params.Name)
	if !ok {
		return nil, errors.NewCapabilityError(errors.CodeToolNotFound, "tool not found: "+params.Name)
	}

	// Tools that execute a host sub-command pass the allow-list first.
	if invoker, ok := tool.(CommandInvoker); ok {
		if command, ok := invoker.CommandFromArgs(params.Arguments); ok {
			if !d.policy.IsAllowed(command) {
				denied := command
				if fields := strings.Fields(command); len(fields) > 0 {
					denied = fields[0]
				}
				return nil, errors.NewAuthorizationError("command not allowed: " + denied).WithSource(caller.Source)
			}

			// Denied commands consume no budget; only commands
			// actually headed for the host are counted.
			if d.cmdLimiter != nil && d.cmdPerMinute > 0 {
				key := security.CategoryCommands + ":" + caller.Source
				if !d.cmdLimiter.Allow(key, d.cmdPerMinute, security.PerMinute(d.cmdPerMinute)) {
					return nil, errors.NewRateLimitError(errors.CodeRateLimited,
						"command rate limit exceeded").WithSource(caller.Source)
				}
			}
		}
	}

	result, err := tool.Execute(ctx, params.Arguments)
	if err != nil {
		// Capability failures become an error-flagged result; they
		// must never take down the dispatcher.
		if d.logger != nil {
			d.logger.Warn(ctx, err, "tool execution failed", "tool", params.Name, "source", caller.Source)
		}
		return ErrorResult("tool execution failed: " + err.Error()), nil
	}

	if d.logger != nil {
		d.logger.Debug(ctx, "tool executed", "tool", params.Name, "source", caller.Source)
	}

	return result, nil
}

func (d *Dispatcher) handleResourcesList(_ context.Context, _ Caller, _ *Request) (any, error) {
	return map[string]any{"resources": d.registry.ResourceDefinitions()}, nil
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, _ Caller, req *Request) (any, error) {
	var params resourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.NewProtocolError(errors.CodeParseError, "invalid resources/read params", err)
	}

	name := resourceNameFromURI(params.URI)
	resource, ok := d.registry.Resource(name)
	if !ok {
		return nil, errors.NewCapabilityError(errors.CodeResourceNotFound, "resource not found: "+name)
	}

	return resource.Read(ctx, params.URI)
}

func (d *Dispatcher) handleSessionEnd(ctx context.Context, caller Caller, req *Request) (any, error) {
	if req.SessionID == "" {
		return nil, errors.NewSessionError("no session to end")
	}
	d.sessions.End(req.SessionID)

	return map[string]any{"ended": true}, nil
}

// resourceNameFromURI extracts the resource name from a resource:// URI;
// anything after the first path segment addresses within the resource.
func resourceNameFromURI(uri string) string {
	name := strings.TrimPrefix(uri, "resource://")
	if i := strings.Index(name, "/"); i >= 0 {
		name = name[:i]
	}

	return name
}
