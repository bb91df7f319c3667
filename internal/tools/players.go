package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wardenhq/warden/internal/errors"
	"github.com/wardenhq/warden/internal/host"
	"github.com/wardenhq/warden/internal/protocol"
)

// PlayerList lists known players.
type PlayerList struct {
	runner *host.Runner
	host   host.Host
}

func NewPlayerList(runner *host.Runner, h host.Host) *PlayerList {
	return &PlayerList{runner: runner, host: h}
}

func (t *PlayerList) Name() string { return "player_list" }

func (t *PlayerList) Description() string {
	return "List known players with online, op and ban state"
}

func (t *PlayerList) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *PlayerList) Execute(ctx context.Context, _ json.RawMessage) (*protocol.ToolResult, error) {
	value, err := t.runner.Do(ctx, func() (any, error) {
		return t.host.Players(), nil
	})
	if err != nil {
		return nil, err
	}

	players := value.([]host.PlayerInfo)

	return jsonResult(map[string]any{
		"count":   len(players),
		"players": players,
	})
}

// ManagePlayer applies a moderation action to a player.
type ManagePlayer struct {
	runner *host.Runner
	host   host.Host
}

func NewManagePlayer(runner *host.Runner, h host.Host) *ManagePlayer {
	return &ManagePlayer{runner: runner, host: h}
}

func (t *ManagePlayer) Name() string { return "manage_player" }

func (t *ManagePlayer) Description() string {
	return "Kick, ban, pardon, op or deop a player"
}

func (t *ManagePlayer) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{"kick", "ban", "pardon", "op", "deop"},
			},
			"player": map[string]any{"type": "string"},
			"reason": map[string]any{"type": "string"},
		},
		"required": []string{"action", "player"},
	}
}

type managePlayerArgs struct {
	Action string `json:"action"`
	Player string `json:"player"`
	Reason string `json:"reason"`
}

func validAction(action string) (host.PlayerAction, bool) {
	switch host.PlayerAction(action) {
	case host.ActionKick, host.ActionBan, host.ActionPardon, host.ActionOp, host.ActionDeop:
		return host.PlayerAction(action), true
	}
	return "", false
}

func (t *ManagePlayer) Execute(ctx context.Context, args json.RawMessage) (*protocol.ToolResult, error) {
	var params managePlayerArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, errors.NewToolError(errors.CodeToolFailed, "invalid arguments", err)
	}
	if params.Player == "" {
		return nil, errors.NewToolError(errors.CodeToolFailed, "missing player", nil)
	}
	action, ok := validAction(params.Action)
	if !ok {
		return nil, errors.NewToolError(errors.CodeToolFailed,
			fmt.Sprintf("unknown action: %q", params.Action), nil)
	}

	value, err := t.runner.Do(ctx, func() (any, error) {
		return t.host.ManagePlayer(action, params.Player, params.Reason)
	})
	if err != nil {
		return nil, err
	}

	return protocol.TextResult(value.(string)), nil
}
