package tools

import (
	"context"
	"encoding/json"

	"github.com/wardenhq/warden/internal/host"
	"github.com/wardenhq/warden/internal/protocol"
)

// WorldInfo reports loaded worlds.
type WorldInfo struct {
	runner *host.Runner
	host   host.Host
}

func NewWorldInfo(runner *host.Runner, h host.Host) *WorldInfo {
	return &WorldInfo{runner: runner, host: h}
}

func (t *WorldInfo) Name() string { return "world_info" }

func (t *WorldInfo) Description() string {
	return "Report loaded worlds: environment, time, weather, population"
}

func (t *WorldInfo) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *WorldInfo) Execute(ctx context.Context, _ json.RawMessage) (*protocol.ToolResult, error) {
	value, err := t.runner.Do(ctx, func() (any, error) {
		return t.host.Worlds(), nil
	})
	if err != nil {
		return nil, err
	}

	worlds := value.([]host.WorldSnapshot)

	return jsonResult(map[string]any{
		"count":  len(worlds),
		"worlds": worlds,
	})
}
