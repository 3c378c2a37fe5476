package codunot

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t testing.TB) *slog.Logger {
	t.Helper()
	level := &slog.LevelVar{}
	level.Set(slog.LevelError)
	return newLogger(t.Name(), level)
}

// fakeSender records outbound sends in order.
type fakeSender struct {
	mu    sync.Mutex
	sends []outboundChunk
}

func (f *fakeSender) ChannelMessageSend(
	channelID string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(
		f.sends,
		outboundChunk{ChannelID: channelID, Content: content},
	)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSender) sent() []outboundChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]outboundChunk, len(f.sends))
	copy(out, f.sends)
	return out
}

// newCompletionServer serves an OpenAI-style chat completion endpoint
// that always replies with the given content.
func newCompletionServer(t testing.TB, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(
					map[string]any{
						"choices": []map[string]any{
							{
								"message": map[string]any{
									"role":    "assistant",
									"content": reply,
								},
							},
						},
					},
				)
			},
		),
	)
	t.Cleanup(srv.Close)
	return srv
}

const (
	testBotID   = "bot-1000"
	testOwnerID = "owner-2000"
)

// newTestApp assembles an App wired to a fake discord sender and the
// given provider URL, with all state files under a temp dir.
func newTestApp(t testing.TB, providerURL string) (*App, *fakeSender) {
	t.Helper()
	tmpdir := t.TempDir()
	logger := testLogger(t)

	cfg := DefaultConfig()
	cfg.Discord.Token = "test-discord-token"
	cfg.Provider.Token = "test-provider-token"
	cfg.Provider.BaseURL = providerURL
	cfg.OwnerID = testOwnerID
	cfg.Database = filepath.Join(tmpdir, "archive.sqlite3")
	cfg.MemoryFile = filepath.Join(tmpdir, "memory.json")
	cfg.GuildConfigFile = filepath.Join(tmpdir, "guilds.json")
	cfg.VotesFile = filepath.Join(tmpdir, "votes.json")
	cfg.UsageFile = filepath.Join(tmpdir, "usage.json")
	cfg.ChatCacheFile = filepath.Join(tmpdir, "chat_cache.json")
	cfg.LogLevel.Set(slog.LevelError)

	rng := rand.New(rand.NewSource(1))

	archive, err := NewArchive(
		cfg.Database,
		cfg.DatabaseSlowThreshold,
		cfg.DatabaseLogLevel,
	)
	require.NoError(t, err)

	app := &App{
		config:  cfg,
		logger:  logger,
		discord: newDiscord(cfg.Discord),
		memory:  NewMemoryStore(cfg.MemoryFile, cfg.HistorySize, logger),
		mute:    NewMuteController(),
		guilds: NewGuildRateLimiter(
			cfg.Egress.GuildLimit,
			cfg.Egress.GuildWindow,
		),
		allow:   NewGuildChatConfig(cfg.GuildConfigFile, logger),
		router:  NewProviderRouter(cfg.Provider, nil, rng),
		human:   NewHumanizer(rng),
		images:  NewImagePipeline(nil, nil, logger),
		lichess: NewLichessClient(cfg.Chess, logger),
		archive: archive,
		cache:   NewChatCacheWriter(cfg.ChatCacheFile, logger),
		usage:   NewUsageCounter(cfg.UsageFile, logger),
		votes:   NewVoteStore(cfg.VotesFile, logger),
		chess:   map[string]*ChessSession{},
	}
	app.discord.botUserID.Store(testBotID)
	app.router.backoff = func(time.Duration) {}

	sender := &fakeSender{}
	app.egress = NewEgressQueue(sender, time.Millisecond, logger)
	return app, sender
}

// guildMessage builds an inbound guild message, optionally mentioning
// the bot.
func guildMessage(authorID string, content string, mention bool) *discordgo.Message {
	m := &discordgo.Message{
		ID:        "msg-1",
		ChannelID: "chan-1",
		GuildID:   "guild-1",
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Username: "tester"},
	}
	if mention {
		m.Content = "<@" + testBotID + "> " + content
		m.Mentions = []*discordgo.User{{ID: testBotID}}
	}
	return m
}

func dmMessage(authorID string, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "msg-1",
		ChannelID: "dm-chan-1",
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Username: "tester"},
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "he", truncate("hello", 2))
	assert.Equal(t, "hél", truncate("héllo", 3))
}

func TestWriteJSONFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeJSONFileAtomic(path, map[string]int{"a": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded map[string]int
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, 1, loaded["a"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not survive the write")
}
