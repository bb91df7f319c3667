// Package host defines the bridge to the administered host process and
// the serialized execution context all host calls must go through.
package host

import "time"

// StatusSnapshot is a point-in-time view of the host process.
type StatusSnapshot struct {
	Online        bool    `json:"online"`
	Version       string  `json:"version"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	PlayersOnline int     `json:"playersOnline"`
	MaxPlayers    int     `json:"maxPlayers"`
	TPS           float64 `json:"tps"`
	MemoryUsedMB  int64   `json:"memoryUsedMB"`
	MemoryMaxMB   int64   `json:"memoryMaxMB"`
}

// PlayerInfo describes one known player.
type PlayerInfo struct {
	Name     string    `json:"name"`
	ID       string    `json:"id"`
	World    string    `json:"world,omitempty"`
	Online   bool      `json:"online"`
	Op       bool      `json:"op"`
	Banned   bool      `json:"banned"`
	JoinedAt time.Time `json:"joinedAt,omitempty"`
}

// WorldSnapshot describes one loaded world.
type WorldSnapshot struct {
	Name         string `json:"name"`
	Environment  string `json:"environment"`
	Time         int64  `json:"time"`
	Weather      string `json:"weather"`
	Players      int    `json:"players"`
	LoadedChunks int    `json:"loadedChunks"`
}

// PlayerAction is a moderation action on a player.
type PlayerAction string

const (
	ActionKick   PlayerAction = "kick"
	ActionBan    PlayerAction = "ban"
	ActionPardon PlayerAction = "pardon"
	ActionOp     PlayerAction = "op"
	ActionDeop   PlayerAction = "deop"
)

// Event is something that happened on the host worth pushing to
// stream subscribers.
type Event struct {
	Type    string    `json:"type"`
	Player  string    `json:"player,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher receives host events. A nil publisher drops them.
type Publisher func(Event)

// Host is the administered process. Implementations are NOT safe for
// concurrent use; every call must be funneled through a Runner.
type Host interface {
	// ExecuteCommand runs one console command and returns its output.
	ExecuteCommand(command string) (string, error)

	// Status reports the current process state.
	Status() StatusSnapshot

	// Players lists known players, online first.
	Players() []PlayerInfo

	// ManagePlayer applies a moderation action and returns a
	// human-readable confirmation.
	ManagePlayer(action PlayerAction, player, reason string) (string, error)

	// Worlds lists loaded worlds.
	Worlds() []WorldSnapshot
}
