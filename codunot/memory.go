package codunot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

const memoryFileVersion = 1

// Mode selects the bot's persona and provider parameters for a channel.
type Mode string

const (
	ModeFunny   Mode = "funny"
	ModeRoast   Mode = "roast"
	ModeSerious Mode = "serious"
	ModeChess   Mode = "chess"
)

// ParseMode returns the Mode for the given string, or ModeFunny if the
// string names no known mode.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeFunny, ModeRoast, ModeSerious, ModeChess:
		return Mode(s)
	default:
		return ModeFunny
	}
}

// MessageRecord is one remembered chat line.
type MessageRecord struct {
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type channelMemory struct {
	History     []MessageRecord `json:"history"`
	Mode        Mode            `json:"mode"`
	RoastTarget string          `json:"roast_target,omitempty"`
}

type memorySnapshot struct {
	Version  int                       `json:"version"`
	Channels map[string]*channelMemory `json:"channels"`
}

// MemoryStore keeps a bounded per-channel history of recent messages
// plus the channel's persisted mode and roast target. It is backed by a
// single JSON snapshot file; a missing or corrupt file is treated as
// empty. Mute windows and chess boards are deliberately not stored here:
// they do not survive restarts.
type MemoryStore struct {
	mu       sync.Mutex
	path     string
	limit    int
	channels map[string]*channelMemory
	logger   *slog.Logger
	now      func() time.Time
}

// NewMemoryStore loads the snapshot at path (if any) and returns a store
// retaining at most limit records per channel.
func NewMemoryStore(path string, limit int, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	m := &MemoryStore{
		path:     path,
		limit:    limit,
		channels: map[string]*channelMemory{},
		logger:   logger.With(loggerNameKey, "memory"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	m.load()
	return m
}

func (m *MemoryStore) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("could not read memory file", tint.Err(err))
		}
		return
	}
	var snap memorySnapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		m.logger.Warn(
			"memory file corrupt, starting empty",
			"path", m.path,
			tint.Err(err),
		)
		return
	}
	if snap.Channels != nil {
		m.channels = snap.Channels
	}
	for _, ch := range m.channels {
		if ch.Mode == "" {
			ch.Mode = ModeFunny
		}
		if len(ch.History) > m.limit {
			ch.History = ch.History[len(ch.History)-m.limit:]
		}
	}
}

func (m *MemoryStore) channel(chanID string) *channelMemory {
	ch, ok := m.channels[chanID]
	if !ok {
		ch = &channelMemory{Mode: ModeFunny}
		m.channels[chanID] = ch
	}
	return ch
}

// Add appends a record with the current wall-clock timestamp, truncating
// from the front so the channel keeps at most the configured limit.
func (m *MemoryStore) Add(chanID string, author string, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := m.channel(chanID)
	ch.History = append(
		ch.History,
		MessageRecord{Author: author, Content: content, Timestamp: m.now()},
	)
	if len(ch.History) > m.limit {
		ch.History = ch.History[len(ch.History)-m.limit:]
	}
}

// Recent returns the last k records for the channel, oldest first.
func (m *MemoryStore) Recent(chanID string, k int) []MessageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[chanID]
	if !ok || k <= 0 {
		return nil
	}
	history := ch.History
	if len(history) > k {
		history = history[len(history)-k:]
	}
	out := make([]MessageRecord, len(history))
	copy(out, history)
	return out
}

// RecentFlat returns the last k records as "author: content" lines,
// oldest first.
func (m *MemoryStore) RecentFlat(chanID string, k int) []string {
	records := m.Recent(chanID, k)
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, fmt.Sprintf("%s: %s", r.Author, r.Content))
	}
	return lines
}

// LastTimestamp returns the most recent record's timestamp for the
// channel, and false if the channel has no history.
func (m *MemoryStore) LastTimestamp(chanID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[chanID]
	if !ok || len(ch.History) == 0 {
		return time.Time{}, false
	}
	return ch.History[len(ch.History)-1].Timestamp, true
}

// GetMode returns the channel's mode, lazily creating the channel with
// the default mode.
func (m *MemoryStore) GetMode(chanID string) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel(chanID).Mode
}

// SetMode updates the channel's persisted mode.
func (m *MemoryStore) SetMode(chanID string, mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel(chanID).Mode = mode
}

func (m *MemoryStore) GetRoastTarget(chanID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[chanID]
	if !ok {
		return ""
	}
	return ch.RoastTarget
}

func (m *MemoryStore) SetRoastTarget(chanID string, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel(chanID).RoastTarget = name
}

// Persist serializes all channels to the snapshot file. Failures are
// logged and returned but are never fatal: the in-memory state remains
// authoritative.
func (m *MemoryStore) Persist() error {
	m.mu.Lock()
	snap := memorySnapshot{
		Version:  memoryFileVersion,
		Channels: m.channels,
	}
	err := writeJSONFileAtomic(m.path, snap)
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("failed to persist memory", "path", m.path, tint.Err(err))
	}
	return err
}

// Close persists and releases the store.
func (m *MemoryStore) Close() error {
	return m.Persist()
}
