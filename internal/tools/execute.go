// Package tools provides the capability adapters exposed over the
// protocol: thin Tools and Resources over the Host interface, each
// invoked opaquely by the dispatcher through execute(name, arguments).
package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/wardenhq/warden/internal/errors"
	"github.com/wardenhq/warden/internal/host"
	"github.com/wardenhq/warden/internal/protocol"
)

// ExecuteCommand runs a console command on the host. The dispatcher
// checks the command allow-list before this tool ever runs.
type ExecuteCommand struct {
	runner *host.Runner
	host   host.Host
}

func NewExecuteCommand(runner *host.Runner, h host.Host) *ExecuteCommand {
	return &ExecuteCommand{runner: runner, host: h}
}

func (t *ExecuteCommand) Name() string { return "execute_command" }

func (t *ExecuteCommand) Description() string {
	return "Execute a console command on the host and return its output"
}

func (t *ExecuteCommand) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Console command without a leading slash",
			},
		},
		"required": []string{"command"},
	}
}

type executeArgs struct {
	Command string `json:"command"`
}

// CommandFromArgs exposes the command for allow-list enforcement.
func (t *ExecuteCommand) CommandFromArgs(args json.RawMessage) (string, bool) {
	var params executeArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return "", false
	}
	command := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(params.Command), "/"))
	if command == "" {
		return "", false
	}

	return command, true
}

func (t *ExecuteCommand) Execute(ctx context.Context, args json.RawMessage) (*protocol.ToolResult, error) {
	command, ok := t.CommandFromArgs(args)
	if !ok {
		return nil, errors.NewToolError(errors.CodeToolFailed, "missing or empty command", nil)
	}

	value, err := t.runner.Do(ctx, func() (any, error) {
		return t.host.ExecuteCommand(command)
	})
	if err != nil {
		return nil, err
	}

	return protocol.TextResult(value.(string)), nil
}
