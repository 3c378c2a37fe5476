package codunot

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/lmittmann/tint"
)

const (
	guildChatModeServer   = "server"
	guildChatModeChannels = "channels"
)

type guildChatEntry struct {
	Mode     string   `json:"mode"`
	Channels []string `json:"channels"`
}

// GuildChatConfig is the optional per-guild channel allow-list from
// guild_chat_config.json. A guild with no entry, or with mode "server",
// admits every channel; mode "channels" admits only the listed ones.
// It acts as a pre-filter that intersects with the mention rule — it
// never admits a message the mention rule would reject.
type GuildChatConfig struct {
	mu     sync.Mutex
	guilds map[string]guildChatEntry
	logger *slog.Logger
}

func NewGuildChatConfig(path string, logger *slog.Logger) *GuildChatConfig {
	if logger == nil {
		logger = slog.Default()
	}
	g := &GuildChatConfig{
		guilds: map[string]guildChatEntry{},
		logger: logger.With(loggerNameKey, "guild_config"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			g.logger.Warn("could not read guild config", tint.Err(err))
		}
		return g
	}
	if err = json.Unmarshal(data, &g.guilds); err != nil {
		g.logger.Warn("guild config corrupt, admitting all channels", tint.Err(err))
		g.guilds = map[string]guildChatEntry{}
	}
	return g
}

// Allows reports whether the guild admits chat in the given channel.
func (g *GuildChatConfig) Allows(guildID string, channelID string) bool {
	if guildID == "" {
		return true
	}

	g.mu.Lock()
	entry, ok := g.guilds[guildID]
	g.mu.Unlock()

	if !ok || entry.Mode != guildChatModeChannels {
		return true
	}
	for _, ch := range entry.Channels {
		if ch == channelID {
			return true
		}
	}
	return false
}
