package host

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBufferEvictsOldest(t *testing.T) {
	buffer := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		buffer.Append("INFO", fmt.Sprintf("line %d", i))
	}

	entries := buffer.Recent(0, "", "")
	require.Len(t, entries, 3)
	assert.Equal(t, "line 2", entries[0].Message)
	assert.Equal(t, "line 4", entries[2].Message)
	assert.Equal(t, 3, buffer.Len())
}

func TestLogBufferLevelFilter(t *testing.T) {
	buffer := NewLogBuffer(10)
	buffer.Append("INFO", "startup complete")
	buffer.Append("WARN", "disk nearly full")
	buffer.Append("INFO", "player joined")

	entries := buffer.Recent(0, "warn", "")
	require.Len(t, entries, 1)
	assert.Equal(t, "disk nearly full", entries[0].Message)
}

func TestLogBufferSubstringFilter(t *testing.T) {
	buffer := NewLogBuffer(10)
	buffer.Append("INFO", "Steve joined the game")
	buffer.Append("INFO", "Alex joined the game")
	buffer.Append("INFO", "Steve left the game")

	entries := buffer.Recent(0, "", "steve")
	require.Len(t, entries, 2)
}

func TestLogBufferLimitKeepsNewest(t *testing.T) {
	buffer := NewLogBuffer(10)
	for i := 0; i < 6; i++ {
		buffer.Append("INFO", fmt.Sprintf("line %d", i))
	}

	entries := buffer.Recent(2, "", "")
	require.Len(t, entries, 2)
	assert.Equal(t, "line 4", entries[0].Message)
	assert.Equal(t, "line 5", entries[1].Message)
}
