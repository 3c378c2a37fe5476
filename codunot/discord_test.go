package codunot

import (
	"log/slog"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelKey(t *testing.T) {
	dm := &discordgo.Message{
		ChannelID: "chan-9",
		Author:    &discordgo.User{ID: "user-1"},
	}
	assert.Equal(t, "dm_user-1", channelKey(dm))

	guild := &discordgo.Message{
		ChannelID: "chan-9",
		GuildID:   "guild-1",
		Author:    &discordgo.User{ID: "user-1"},
	}
	assert.Equal(t, "chan-9", channelKey(guild))
}

func TestMessageMentionsUser(t *testing.T) {
	m := &discordgo.Message{
		Content:  "<@bot-1> hi",
		Mentions: []*discordgo.User{{ID: "bot-1"}, {ID: "user-2"}},
	}
	assert.True(t, messageMentionsUser(m, "bot-1"))
	assert.True(t, messageMentionsUser(m, "user-2"))
	assert.False(t, messageMentionsUser(m, "user-3"))
	assert.False(t, messageMentionsUser(m, ""))
	assert.False(t, messageMentionsUser(nil, "bot-1"))

	// content alone is not a mention
	plain := &discordgo.Message{Content: "<@bot-1> hi"}
	assert.False(t, messageMentionsUser(plain, "bot-1"))
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, "hi there", stripMention("<@bot-1> hi there", "bot-1"))
	assert.Equal(t, "hi there", stripMention("<@!bot-1> hi there", "bot-1"))
	assert.Equal(t, "hi there", stripMention("hi <@bot-1> there", "bot-1"))
	assert.Equal(t, "hi there", stripMention("  hi there  ", ""))
	assert.Equal(
		t,
		"<@other> hi",
		stripMention("<@other> hi", "bot-1"),
		"other users' mentions stay",
	)
}

func TestSessionHandlerLogLevels(t *testing.T) {
	disc, err := discordgo.New("Bot test-token")
	require.NoError(t, err)
	session := DiscordSession{session: disc}

	require.NoError(t, session.SetLogLevel(slog.LevelDebug))
	assert.Equal(t, discordgo.LogDebug, disc.LogLevel)
	require.NoError(t, session.SetLogLevel(slog.LevelError))
	assert.Equal(t, discordgo.LogError, disc.LogLevel)
	assert.Error(t, session.SetLogLevel(slog.Level(12)))
}
