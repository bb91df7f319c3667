package host

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sim is an in-memory host used when no real process is attached:
// development, demos, and tests. It honors the Host contract,
// including the no-concurrent-calls rule, so it must sit behind a
// Runner like any real host.
type Sim struct {
	version   string
	startedAt time.Time

	players map[string]*PlayerInfo
	worlds  []WorldSnapshot

	logs    *LogBuffer
	publish Publisher
}

// NewSim creates a simulated host with one default world. logs may be
// nil when command output capture is not needed.
func NewSim(version string, logs *LogBuffer) *Sim {
	return &Sim{
		version:   version,
		startedAt: time.Now(),
		players:   make(map[string]*PlayerInfo),
		worlds: []WorldSnapshot{
			{Name: "world", Environment: "normal", Weather: "clear", LoadedChunks: 256},
		},
		logs: logs,
	}
}

// SetPublisher installs the event sink. Passing nil silences events.
func (s *Sim) SetPublisher(publish Publisher) {
	s.publish = publish
}

func (s *Sim) emit(eventType, player, message string) {
	if s.publish != nil {
		s.publish(Event{Type: eventType, Player: player, Message: message, At: time.Now()})
	}
}

func (s *Sim) log(level, message string) {
	if s.logs != nil {
		s.logs.Append(level, message)
	}
}

// Connect brings a player online, creating it on first sight.
func (s *Sim) Connect(name string) {
	player, ok := s.players[strings.ToLower(name)]
	if !ok {
		player = &PlayerInfo{Name: name, ID: uuid.NewString(), World: "world"}
		s.players[strings.ToLower(name)] = player
	}
	player.Online = true
	player.JoinedAt = time.Now()

	s.log("INFO", name+" joined the game")
	s.emit("player_joined", name, "")
}

// Disconnect takes a player offline.
func (s *Sim) Disconnect(name string) {
	if player, ok := s.players[strings.ToLower(name)]; ok && player.Online {
		player.Online = false
		s.log("INFO", name+" left the game")
		s.emit("player_left", name, "")
	}
}

func (s *Sim) ExecuteCommand(command string) (string, error) {
	s.log("INFO", "console issued: "+command)

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty command")
	}

	switch strings.ToLower(fields[0]) {
	case "list":
		names := make([]string, 0, len(s.players))
		for _, player := range s.players {
			if player.Online {
				names = append(names, player.Name)
			}
		}
		sort.Strings(names)
		return fmt.Sprintf("There are %d players online: %s", len(names), strings.Join(names, ", ")), nil
	case "say":
		message := strings.TrimSpace(strings.TrimPrefix(command, fields[0]))
		s.emit("broadcast", "", message)
		return "Broadcast: " + message, nil
	case "time", "weather", "difficulty", "gamerule":
		return "Set " + fields[0], nil
	default:
		return "Executed: " + command, nil
	}
}

func (s *Sim) Status() StatusSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	online := 0
	for _, player := range s.players {
		if player.Online {
			online++
		}
	}

	return StatusSnapshot{
		Online:        true,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		PlayersOnline: online,
		MaxPlayers:    20,
		TPS:           20.0,
		MemoryUsedMB:  int64(mem.Alloc / (1 << 20)),
		MemoryMaxMB:   int64(mem.Sys / (1 << 20)),
	}
}

func (s *Sim) Players() []PlayerInfo {
	out := make([]PlayerInfo, 0, len(s.players))
	for _, player := range s.players {
		out = append(out, *player)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Online != out[j].Online {
			return out[i].Online
		}
		return out[i].Name < out[j].Name
	})

	return out
}

func (s *Sim) ManagePlayer(action PlayerAction, name, reason string) (string, error) {
	player, ok := s.players[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unknown player: %s", name)
	}
	if reason == "" {
		reason = "no reason given"
	}

	switch action {
	case ActionKick:
		if !player.Online {
			return "", fmt.Errorf("player not online: %s", name)
		}
		player.Online = false
		s.log("WARN", fmt.Sprintf("%s kicked (%s)", player.Name, reason))
		s.emit("player_kicked", player.Name, reason)
		return fmt.Sprintf("Kicked %s: %s", player.Name, reason), nil
	case ActionBan:
		player.Banned = true
		player.Online = false
		s.log("WARN", fmt.Sprintf("%s banned (%s)", player.Name, reason))
		s.emit("player_banned", player.Name, reason)
		return fmt.Sprintf("Banned %s: %s", player.Name, reason), nil
	case ActionPardon:
		player.Banned = false
		s.log("INFO", player.Name+" pardoned")
		return "Pardoned " + player.Name, nil
	case ActionOp:
		player.Op = true
		return "Opped " + player.Name, nil
	case ActionDeop:
		player.Op = false
		return "De-opped " + player.Name, nil
	default:
		return "", fmt.Errorf("unknown action: %s", action)
	}
}

func (s *Sim) Worlds() []WorldSnapshot {
	out := make([]WorldSnapshot, len(s.worlds))
	copy(out, s.worlds)

	for i := range out {
		players := 0
		for _, player := range s.players {
			if player.Online && player.World == out[i].Name {
				players++
			}
		}
		out[i].Players = players
		out[i].Time = time.Since(s.startedAt).Milliseconds() / 50 % 24000
	}

	return out
}
