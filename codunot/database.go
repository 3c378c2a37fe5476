package codunot

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// InboundMessage archives an admitted inbound discord message.
type InboundMessage struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	CreatedAt int64  `gorm:"autoCreateTime:milli" json:"created_at"`
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Mode      string `json:"mode"`
}

// OutboundReply archives one reply (pre-chunking) with the mode and
// prompt kind that produced it.
type OutboundReply struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	CreatedAt int64  `gorm:"autoCreateTime:milli" json:"created_at"`
	ChannelID string `json:"channel_id"`
	Mode      string `json:"mode"`
	Kind      string `json:"kind"`
	Content   string `json:"content"`
	Fallback  bool   `json:"fallback"`
}

// Archive is the best-effort sqlite record of everything the bot saw
// and said. Failed writes are logged and ignored: the archive is an
// audit trail, not operational state.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewArchive(
	path string,
	slowThreshold time.Duration,
	level *slog.LevelVar,
) (*Archive, error) {
	logger := newLogger("archive", level)
	db, err := gorm.Open(
		sqlite.Open(path),
		&gorm.Config{
			Logger: newGORMLogger(logger.Handler(), slowThreshold),
		},
	)
	if err != nil {
		return nil, err
	}
	if err = db.AutoMigrate(&InboundMessage{}, &OutboundReply{}); err != nil {
		return nil, err
	}
	return &Archive{db: db, logger: logger}, nil
}

func (a *Archive) RecordInbound(rec InboundMessage) {
	if a == nil || a.db == nil {
		return
	}
	if err := a.db.Create(&rec).Error; err != nil {
		a.logger.Error("failed to archive inbound message", tint.Err(err))
	}
}

func (a *Archive) RecordOutbound(rec OutboundReply) {
	if a == nil || a.db == nil {
		return
	}
	if err := a.db.Create(&rec).Error; err != nil {
		a.logger.Error("failed to archive outbound reply", tint.Err(err))
	}
}

const chatCacheLimit = 150_000

type chatCacheEntry struct {
	Prompt string `json:"prompt"`
	Reply  string `json:"reply"`
}

// ChatCacheWriter appends prompt/reply pairs to chat_cache.json,
// trimming from the front at the capacity limit. Nothing in the bot
// reads the file back; it exists for offline analysis.
type ChatCacheWriter struct {
	mu      sync.Mutex
	path    string
	entries []chatCacheEntry
	limit   int
	logger  *slog.Logger
}

func NewChatCacheWriter(path string, logger *slog.Logger) *ChatCacheWriter {
	if logger == nil {
		logger = slog.Default()
	}
	w := &ChatCacheWriter{
		path:   path,
		limit:  chatCacheLimit,
		logger: logger.With(loggerNameKey, "chat_cache"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("could not read chat cache", tint.Err(err))
		}
		return w
	}
	if err = json.Unmarshal(data, &w.entries); err != nil {
		w.logger.Warn("chat cache corrupt, starting empty", tint.Err(err))
		w.entries = nil
	}
	if len(w.entries) > w.limit {
		w.entries = w.entries[len(w.entries)-w.limit:]
	}
	return w
}

// Append records one exchange and persists best-effort.
func (w *ChatCacheWriter) Append(prompt string, reply string) {
	w.mu.Lock()
	w.entries = append(w.entries, chatCacheEntry{Prompt: prompt, Reply: reply})
	if len(w.entries) > w.limit {
		w.entries = w.entries[len(w.entries)-w.limit:]
	}
	snapshot := make([]chatCacheEntry, len(w.entries))
	copy(snapshot, w.entries)
	w.mu.Unlock()

	if err := writeJSONFileAtomic(w.path, snapshot); err != nil {
		w.logger.Error("failed to persist chat cache", tint.Err(err))
	}
}

// Len returns the number of cached exchanges.
func (w *ChatCacheWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
