package tools

import (
	"context"
	"encoding/json"

	"github.com/wardenhq/warden/internal/errors"
	"github.com/wardenhq/warden/internal/host"
	"github.com/wardenhq/warden/internal/protocol"
)

// jsonResult renders any payload as a pretty-printed text result.
func jsonResult(payload any) (*protocol.ToolResult, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, errors.NewToolError(errors.CodeToolFailed, "encode result", err)
	}

	return protocol.TextResult(string(encoded)), nil
}

// ServerStatus reports the host process state.
type ServerStatus struct {
	runner *host.Runner
	host   host.Host
}

func NewServerStatus(runner *host.Runner, h host.Host) *ServerStatus {
	return &ServerStatus{runner: runner, host: h}
}

func (t *ServerStatus) Name() string { return "server_status" }

func (t *ServerStatus) Description() string {
	return "Report host process status: version, uptime, players, memory"
}

func (t *ServerStatus) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *ServerStatus) Execute(ctx context.Context, _ json.RawMessage) (*protocol.ToolResult, error) {
	value, err := t.runner.Do(ctx, func() (any, error) {
		return t.host.Status(), nil
	})
	if err != nil {
		return nil, err
	}

	return jsonResult(value)
}

// ServerLogs returns recent host log lines. It reads the capture ring
// directly; the ring is concurrency-safe so no runner hop is needed.
type ServerLogs struct {
	logs *host.LogBuffer
}

func NewServerLogs(logs *host.LogBuffer) *ServerLogs {
	return &ServerLogs{logs: logs}
}

func (t *ServerLogs) Name() string { return "server_logs" }

func (t *ServerLogs) Description() string {
	return "Fetch recent host log lines, optionally filtered by level or substring"
}

func (t *ServerLogs) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit":    map[string]any{"type": "integer", "description": "Max lines to return (newest kept)"},
			"level":    map[string]any{"type": "string", "description": "Exact level filter, e.g. INFO or WARN"},
			"contains": map[string]any{"type": "string", "description": "Case-insensitive substring filter"},
		},
	}
}

type serverLogsArgs struct {
	Limit    int    `json:"limit"`
	Level    string `json:"level"`
	Contains string `json:"contains"`
}

func (t *ServerLogs) Execute(_ context.Context, args json.RawMessage) (*protocol.ToolResult, error) {
	var params serverLogsArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, errors.NewToolError(errors.CodeToolFailed, "invalid arguments", err)
		}
	}
	if params.Limit <= 0 {
		params.Limit = 100
	}

	entries := t.logs.Recent(params.Limit, params.Level, params.Contains)

	return jsonResult(map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}
