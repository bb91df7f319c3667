package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/wardenhq/warden/internal/errors"
	"github.com/wardenhq/warden/internal/host"
	"github.com/wardenhq/warden/internal/protocol"
)

func resourceJSON(uri string, payload any) (*protocol.ResourceResult, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, errors.NewToolError(errors.CodeToolFailed, "encode resource", err)
	}

	return &protocol.ResourceResult{Contents: []protocol.ResourceContent{{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(encoded),
	}}}, nil
}

// ServerInfo is the resource://server-info resource.
type ServerInfo struct {
	runner  *host.Runner
	host    host.Host
	name    string
	version string
}

func NewServerInfo(runner *host.Runner, h host.Host, name, version string) *ServerInfo {
	return &ServerInfo{runner: runner, host: h, name: name, version: version}
}

func (r *ServerInfo) Name() string        { return "server-info" }
func (r *ServerInfo) Description() string { return "Gateway and host process information" }
func (r *ServerInfo) MimeType() string    { return "application/json" }

func (r *ServerInfo) Read(ctx context.Context, uri string) (*protocol.ResourceResult, error) {
	value, err := r.runner.Do(ctx, func() (any, error) {
		return r.host.Status(), nil
	})
	if err != nil {
		return nil, err
	}

	return resourceJSON(uri, map[string]any{
		"gateway": map[string]string{
			"name":            r.name,
			"version":         r.version,
			"protocolVersion": protocol.Version,
		},
		"host": value,
	})
}

// PlayerData is the resource://player-data resource. A path segment
// after the resource name narrows it to one player:
// resource://player-data/steve.
type PlayerData struct {
	runner *host.Runner
	host   host.Host
}

func NewPlayerData(runner *host.Runner, h host.Host) *PlayerData {
	return &PlayerData{runner: runner, host: h}
}

func (r *PlayerData) Name() string        { return "player-data" }
func (r *PlayerData) Description() string { return "Known players and their moderation state" }
func (r *PlayerData) MimeType() string    { return "application/json" }

func (r *PlayerData) Read(ctx context.Context, uri string) (*protocol.ResourceResult, error) {
	value, err := r.runner.Do(ctx, func() (any, error) {
		return r.host.Players(), nil
	})
	if err != nil {
		return nil, err
	}
	players := value.([]host.PlayerInfo)

	rest := strings.TrimPrefix(uri, "resource://"+r.Name())
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return resourceJSON(uri, map[string]any{"count": len(players), "players": players})
	}

	for _, player := range players {
		if strings.EqualFold(player.Name, rest) {
			return resourceJSON(uri, player)
		}
	}

	return nil, errors.NewCapabilityError(errors.CodeResourceNotFound, "no such player: "+rest)
}
