package tools

import (
	"context"
	"encoding/json"

	"github.com/wardenhq/warden/internal/protocol"
	"github.com/wardenhq/warden/internal/security"
)

// AllowedCommands reports the live command allow-list so clients can
// discover what execute_command will accept before trying.
type AllowedCommands struct {
	policy *security.CommandPolicy
}

func NewAllowedCommands(policy *security.CommandPolicy) *AllowedCommands {
	return &AllowedCommands{policy: policy}
}

func (t *AllowedCommands) Name() string { return "get_allowed_commands" }

func (t *AllowedCommands) Description() string {
	return "Report which console commands the allow-list currently permits"
}

func (t *AllowedCommands) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *AllowedCommands) Execute(_ context.Context, _ json.RawMessage) (*protocol.ToolResult, error) {
	payload := map[string]any{
		"whitelistEnabled": t.policy.Enabled(),
		"allowAll":         false,
		"commands":         []string{},
	}

	switch {
	case !t.policy.Enabled():
		payload["allowAll"] = true
		payload["note"] = "whitelist disabled: all commands allowed"
	case t.policy.Universal():
		payload["allowAll"] = true
		payload["note"] = "wildcard entry present: all commands allowed"
		payload["commands"] = t.policy.Entries()
	default:
		payload["commands"] = t.policy.Entries()
	}

	return jsonResult(payload)
}
