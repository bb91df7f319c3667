package protocol

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/errors"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/security"
)

type stubTool struct {
	name    string
	execute func(ctx context.Context, args json.RawMessage) (*ToolResult, error)
}

func (t *stubTool) Name() string                { return t.name }
func (t *stubTool) Description() string         { return "stub tool" }
func (t *stubTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }

func (t *stubTool) Execute(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
	return t.execute(ctx, args)
}

type stubCommandTool struct {
	stubTool
}

func (t *stubCommandTool) CommandFromArgs(args json.RawMessage) (string, bool) {
	var params struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Command == "" {
		return "", false
	}
	return params.Command, true
}

type stubResource struct {
	name string
	read func(ctx context.Context, uri string) (*ResourceResult, error)
}

func (r *stubResource) Name() string        { return r.name }
func (r *stubResource) Description() string { return "stub resource" }
func (r *stubResource) MimeType() string    { return "application/json" }

func (r *stubResource) Read(ctx context.Context, uri string) (*ResourceResult, error) {
	return r.read(ctx, uri)
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	registry   *Registry
	sessions   *security.SessionStore
	policy     *security.CommandPolicy
}

func newDispatcherFixture(t *testing.T, allowedCommands []string) *dispatcherFixture {
	t.Helper()

	logger := logging.NewNop()
	registry := NewRegistry()
	sessions := security.NewSessionStore(30*time.Minute, logger)
	t.Cleanup(sessions.Stop)

	policy := security.NewCommandPolicy(allowedCommands != nil, allowedCommands, logger)

	dispatcher := NewDispatcher(DispatcherConfig{
		ServerName:       "warden",
		ServerVersion:    "test",
		ToolsEnabled:     true,
		ResourcesEnabled: true,
	}, registry, sessions, policy, logger)

	return &dispatcherFixture{
		dispatcher: dispatcher,
		registry:   registry,
		sessions:   sessions,
		policy:     policy,
	}
}

func callRequest(method string, params any, id string) []byte {
	raw, _ := json.Marshal(params)
	req := Request{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  raw,
		ID:      &id,
	}
	encoded, _ := json.Marshal(req)
	return encoded
}

func TestDispatchMalformedPayload(t *testing.T) {
	f := newDispatcherFixture(t, nil)

	resp := f.dispatcher.Dispatch(context.Background(), []byte("{not json"), Caller{Authenticated: true})

	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.RPCParseError, resp.Error.Code)
	assert.Nil(t, resp.ID)
	assert.Equal(t, JSONRPCVersion, resp.JSONRPC)
}

func TestDispatchUnknownMethod(t *testing.T) {
	f := newDispatcherFixture(t, nil)

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("tools/destroy", nil, "7"), Caller{Authenticated: true})

	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.RPCMethodNotFound, resp.Error.Code)
	require.NotNil(t, resp.ID)
	assert.Equal(t, "7", *resp.ID)
}

func TestDispatchRequiresAuthentication(t *testing.T) {
	f := newDispatcherFixture(t, nil)

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("tools/list", nil, "1"), Caller{Source: "10.0.0.9"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.RPCAuthenticationError, resp.Error.Code)
}

func TestDispatchRejectsUnknownSession(t *testing.T) {
	f := newDispatcherFixture(t, nil)

	id := "1"
	raw, _ := json.Marshal(Request{
		JSONRPC:   JSONRPCVersion,
		Method:    "tools/list",
		ID:        &id,
		SessionID: "bogus-session",
	})
	resp := f.dispatcher.Dispatch(context.Background(), raw, Caller{Source: "10.0.0.9"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.RPCSessionError, resp.Error.Code)
}

func TestDispatchAcceptsValidSession(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	sessionID := f.sessions.Create("10.0.0.9")

	id := "1"
	raw, _ := json.Marshal(Request{
		JSONRPC:   JSONRPCVersion,
		Method:    "tools/list",
		ID:        &id,
		SessionID: sessionID,
	})
	resp := f.dispatcher.Dispatch(context.Background(), raw, Caller{Source: "10.0.0.9"})

	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Result)
}

func TestInitializeHandshake(t *testing.T) {
	f := newDispatcherFixture(t, nil)

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("initialize", map[string]any{
			"protocolVersion": Version,
			"clientInfo":      map[string]string{"name": "test-client", "version": "0.1"},
		}, "init-1"), Caller{Source: "127.0.0.1", Authenticated: true})

	require.Nil(t, resp.Error)
	result, ok := resp.Result.(InitializeResult)
	require.True(t, ok)

	assert.Equal(t, Version, result.ProtocolVersion)
	assert.Equal(t, "warden", result.ServerInfo.Name)
	assert.Contains(t, result.Capabilities, "tools")
	assert.Contains(t, result.Capabilities, "resources")
	require.NotEmpty(t, result.SessionID)
	assert.True(t, f.sessions.Validate(result.SessionID))
}

func TestInitializeWithoutAuthHasNoSession(t *testing.T) {
	f := newDispatcherFixture(t, nil)

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("initialize", nil, "init-2"), Caller{Source: "10.0.0.9"})

	require.Nil(t, resp.Error)
	result, ok := resp.Result.(InitializeResult)
	require.True(t, ok)
	assert.Empty(t, result.SessionID)
}

func TestToolsListReportsRegisteredTools(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	f.registry.RegisterTool(&stubTool{name: "server_status"})
	f.registry.RegisterTool(&stubTool{name: "execute_command"})

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("tools/list", nil, "1"), Caller{Authenticated: true})

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	tools := result["tools"].([]ToolDefinition)
	require.Len(t, tools, 2)
	assert.Equal(t, "execute_command", tools[0].Name)
	assert.Equal(t, "server_status", tools[1].Name)
}

func TestToolsCallUnknownTool(t *testing.T) {
	f := newDispatcherFixture(t, nil)

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("tools/call", map[string]any{"name": "missing"}, "1"),
		Caller{Authenticated: true})

	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.RPCCapabilityNotFound, resp.Error.Code)
}

func TestToolsCallExecutesTool(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	f.registry.RegisterTool(&stubTool{
		name: "server_status",
		execute: func(context.Context, json.RawMessage) (*ToolResult, error) {
			return TextResult("online"), nil
		},
	})

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("tools/call", map[string]any{"name": "server_status"}, "1"),
		Caller{Authenticated: true})

	require.Nil(t, resp.Error)
	result := resp.Result.(*ToolResult)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "online", result.Content[0].Text)
}

func TestToolsCallDeniedCommand(t *testing.T) {
	f := newDispatcherFixture(t, []string{"say", "list"})

	tool := &stubCommandTool{}
	tool.name = "execute_command"
	tool.execute = func(context.Context, json.RawMessage) (*ToolResult, error) {
		t.Fatal("denied command must not execute")
		return nil, nil
	}
	f.registry.RegisterTool(tool)

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("tools/call", map[string]any{
			"name":      "execute_command",
			"arguments": map[string]string{"command": "stop now"},
		}, "1"), Caller{Source: "127.0.0.1", Authenticated: true})

	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.RPCAuthorizationError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "stop")
}

func TestToolsCallAllowedCommand(t *testing.T) {
	f := newDispatcherFixture(t, []string{"say", "list"})

	tool := &stubCommandTool{}
	tool.name = "execute_command"
	tool.execute = func(context.Context, json.RawMessage) (*ToolResult, error) {
		return TextResult("done"), nil
	}
	f.registry.RegisterTool(tool)

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("tools/call", map[string]any{
			"name":      "execute_command",
			"arguments": map[string]string{"command": "say hello"},
		}, "1"), Caller{Authenticated: true})

	require.Nil(t, resp.Error)
	assert.False(t, resp.Result.(*ToolResult).IsError)
}

func TestToolsCallCommandRateLimit(t *testing.T) {
	f := newDispatcherFixture(t, []string{"say"})

	limiter := security.NewRateLimiter(logging.NewNop())
	t.Cleanup(limiter.Stop)
	f.dispatcher.SetCommandLimiter(limiter, 2)

	tool := &stubCommandTool{}
	tool.name = "execute_command"
	tool.execute = func(context.Context, json.RawMessage) (*ToolResult, error) {
		return TextResult("done"), nil
	}
	f.registry.RegisterTool(tool)

	call := func() *Response {
		return f.dispatcher.Dispatch(context.Background(),
			callRequest("tools/call", map[string]any{
				"name":      "execute_command",
				"arguments": map[string]string{"command": "say hi"},
			}, "1"), Caller{Source: "127.0.0.1", Authenticated: true})
	}

	require.Nil(t, call().Error)
	require.Nil(t, call().Error)

	third := call()
	require.NotNil(t, third.Error)
	assert.Equal(t, errors.RPCRateLimitError, third.Error.Code)
}

func TestToolsCallFailureBecomesErrorResult(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	f.registry.RegisterTool(&stubTool{
		name: "world_info",
		execute: func(context.Context, json.RawMessage) (*ToolResult, error) {
			return nil, errors.NewToolError(errors.CodeToolFailed, "world unavailable", nil)
		},
	})

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("tools/call", map[string]any{"name": "world_info"}, "1"),
		Caller{Authenticated: true})

	require.Nil(t, resp.Error, "tool failure is a result, not a protocol error")
	result := resp.Result.(*ToolResult)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "world unavailable")
}

func TestToolsCallPanicRecovered(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	f.registry.RegisterTool(&stubTool{
		name: "world_info",
		execute: func(context.Context, json.RawMessage) (*ToolResult, error) {
			panic("boom")
		},
	})

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("tools/call", map[string]any{"name": "world_info"}, "1"),
		Caller{Authenticated: true})

	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.RPCInternalError, resp.Error.Code)
	require.NotNil(t, resp.ID)
	assert.Equal(t, "1", *resp.ID)
}

func TestResourcesReadRoutesByURI(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	f.registry.RegisterResource(&stubResource{
		name: "player-data",
		read: func(_ context.Context, uri string) (*ResourceResult, error) {
			return &ResourceResult{Contents: []ResourceContent{{
				URI:      uri,
				MimeType: "application/json",
				Text:     `{"players":[]}`,
			}}}, nil
		},
	})

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("resources/read", map[string]string{
			"uri": "resource://player-data/steve",
		}, "1"), Caller{Authenticated: true})

	require.Nil(t, resp.Error)
	result := resp.Result.(*ResourceResult)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "resource://player-data/steve", result.Contents[0].URI)
}

func TestResourcesReadUnknownResource(t *testing.T) {
	f := newDispatcherFixture(t, nil)

	resp := f.dispatcher.Dispatch(context.Background(),
		callRequest("resources/read", map[string]string{"uri": "resource://missing"}, "1"),
		Caller{Authenticated: true})

	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.RPCCapabilityNotFound, resp.Error.Code)
}

func TestSessionEnd(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	sessionID := f.sessions.Create("127.0.0.1")

	id := "1"
	raw, _ := json.Marshal(Request{
		JSONRPC:   JSONRPCVersion,
		Method:    "session/end",
		ID:        &id,
		SessionID: sessionID,
	})
	resp := f.dispatcher.Dispatch(context.Background(), raw, Caller{Source: "127.0.0.1"})

	require.Nil(t, resp.Error)
	assert.False(t, f.sessions.Validate(sessionID))
}
