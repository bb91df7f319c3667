package security

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/wardenhq/warden/internal/logging"
)

// CommandPolicy decides which sub-commands a validated caller may
// trigger, based on a configured list of entries where `*` matches any
// substring. The compiled pattern set is immutable and swapped
// atomically on reload, so a rebuild never exposes an empty set.
type CommandPolicy struct {
	enabled bool
	set     atomic.Pointer[patternSet]
	logger  logging.Logger
}

type patternSet struct {
	entries   []string
	universal bool
	patterns  []compiledPattern
}

type compiledPattern struct {
	raw     string
	matcher *regexp.Regexp
}

// NewCommandPolicy compiles the configured allow-list entries. When
// enabled is false every command is allowed.
func NewCommandPolicy(enabled bool, entries []string, logger logging.Logger) *CommandPolicy {
	cp := &CommandPolicy{
		enabled: enabled,
		logger:  logger,
	}
	cp.set.Store(compileEntries(entries))

	return cp
}

// Reload rebuilds the pattern set from fresh entries and swaps it in.
func (cp *CommandPolicy) Reload(entries []string) {
	cp.set.Store(compileEntries(entries))

	if cp.logger != nil {
		cp.logger.Info(context.Background(), "command allow-list reloaded",
			"entries", len(entries))
	}
}

func compileEntries(entries []string) *patternSet {
	set := &patternSet{
		entries: append([]string(nil), entries...),
	}

	for _, entry := range entries {
		if entry == "*" {
			set.universal = true
			continue
		}
		set.patterns = append(set.patterns, compiledPattern{
			raw:     entry,
			matcher: compileWildcard(entry),
		})
	}

	return set
}

// compileWildcard translates an allow-list entry into an anchored,
// case-insensitive matcher where each `*` matches any substring.
func compileWildcard(entry string) *regexp.Regexp {
	parts := strings.Split(entry, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}

	return regexp.MustCompile("(?i)^" + strings.Join(parts, ".*") + "$")
}

// IsAllowed reports whether the command may run. Only the command's
// first whitespace-delimited token is matched; arguments are ignored.
func (cp *CommandPolicy) IsAllowed(command string) bool {
	if !cp.enabled {
		return true
	}

	set := cp.set.Load()
	if set.universal {
		return true
	}

	base := firstToken(command)
	for _, p := range set.patterns {
		if p.matcher.MatchString(base) {
			// Which overlapping pattern gets credited here is
			// unspecified; only the allow outcome is contractual.
			if cp.logger != nil {
				cp.logger.Debug(context.Background(), "command matched allow-list pattern",
					"command", base, "pattern", p.raw)
			}
			return true
		}
	}

	if cp.logger != nil {
		cp.logger.Warn(context.Background(), nil, "command not in allow-list", "command", base)
	}

	return false
}

// Enabled reports whether allow-listing is active.
func (cp *CommandPolicy) Enabled() bool {
	return cp.enabled
}

// Entries returns the raw configured entries of the current set.
func (cp *CommandPolicy) Entries() []string {
	return cp.set.Load().entries
}

// Universal reports whether the literal "*" entry is present.
func (cp *CommandPolicy) Universal() bool {
	return cp.set.Load().universal
}

func firstToken(command string) string {
	command = strings.TrimSpace(command)
	if i := strings.IndexAny(command, " \t"); i >= 0 {
		return command[:i]
	}

	return command
}
