package tools

import (
	"github.com/wardenhq/warden/internal/host"
	"github.com/wardenhq/warden/internal/protocol"
	"github.com/wardenhq/warden/internal/security"
)

// RegisterAll wires the standard capability set into a registry.
func RegisterAll(
	registry *protocol.Registry,
	runner *host.Runner,
	h host.Host,
	policy *security.CommandPolicy,
	logs *host.LogBuffer,
	serverName, serverVersion string,
) {
	registry.RegisterTool(NewExecuteCommand(runner, h))
	registry.RegisterTool(NewServerStatus(runner, h))
	registry.RegisterTool(NewServerLogs(logs))
	registry.RegisterTool(NewPlayerList(runner, h))
	registry.RegisterTool(NewManagePlayer(runner, h))
	registry.RegisterTool(NewWorldInfo(runner, h))
	registry.RegisterTool(NewAllowedCommands(policy))

	registry.RegisterResource(NewServerInfo(runner, h, serverName, serverVersion))
	registry.RegisterResource(NewPlayerData(runner, h))
}
