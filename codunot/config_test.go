package codunot

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultBotName, cfg.BotName)
	assert.Equal(t, 60, cfg.HistorySize)
	assert.Equal(t, 12, cfg.ContextLength)
	assert.Equal(t, 200, cfg.MaxMessageLen)
	assert.Equal(t, 900, cfg.Egress.GuildLimit)
	assert.Equal(t, 4, cfg.Provider.MaxRetries)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.Provider.BaseURL)
	assert.Equal(t, "https://lichess.org/api/cloud-eval", cfg.Chess.EvalURL)
	assert.Equal(t, "127.0.0.1:5000", cfg.API.Listen)

	require.NotNil(t, cfg.LogLevel)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel.Level())
}

func TestConfigRedactsSecretsInLogs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discord.Token = "super-secret-discord-token"
	cfg.Provider.Token = "super-secret-provider-key"
	cfg.API.TopGGSecret = "super-secret-webhook"

	rendered := cfg.LogValue().String()
	assert.NotContains(t, rendered, "super-secret-discord-token")
	assert.NotContains(t, rendered, "super-secret-provider-key")
	assert.NotContains(t, rendered, "super-secret-webhook")
	assert.True(
		t,
		strings.Contains(rendered, "[redacted]"),
		"redaction marker should appear",
	)
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discord.Token = "discord-token"
	cfg.Provider.Token = "provider-token"
	require.NoError(t, structValidator.Struct(cfg))

	cfg.MaxMessageLen = 0
	require.Error(t, structValidator.Struct(cfg))

	cfg = DefaultConfig()
	cfg.Provider.Token = "provider-token"
	require.Error(
		t,
		structValidator.Struct(cfg),
		"missing discord token must fail validation",
	)
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeRoast, ParseMode("roast"))
	assert.Equal(t, ModeChess, ParseMode("chess"))
	assert.Equal(t, ModeFunny, ParseMode("unknown"))
	assert.Equal(t, ModeFunny, ParseMode(""))
}
