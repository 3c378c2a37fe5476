package codunot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuildChatConfigMissingFileAllowsAll(t *testing.T) {
	g := NewGuildChatConfig(
		filepath.Join(t.TempDir(), "missing.json"),
		testLogger(t),
	)
	assert.True(t, g.Allows("guild-1", "chan-1"))
	assert.True(t, g.Allows("", "chan-1"))
}

func TestGuildChatConfigChannelMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.json")
	require.NoError(
		t,
		os.WriteFile(
			path,
			[]byte(`{
				"guild-1": {"mode": "channels", "channels": ["chan-a", "chan-b"]},
				"guild-2": {"mode": "server"}
			}`),
			0o600,
		),
	)
	g := NewGuildChatConfig(path, testLogger(t))

	assert.True(t, g.Allows("guild-1", "chan-a"))
	assert.True(t, g.Allows("guild-1", "chan-b"))
	assert.False(t, g.Allows("guild-1", "chan-c"))

	assert.True(t, g.Allows("guild-2", "anything"))
	assert.True(t, g.Allows("guild-unlisted", "anything"))
}

func TestGuildChatConfigCorruptFileAllowsAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	g := NewGuildChatConfig(path, testLogger(t))
	assert.True(t, g.Allows("guild-1", "chan-1"))
}
