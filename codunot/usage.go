package codunot

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

type usageCounts struct {
	Day   string         `json:"day"`
	Daily map[string]int `json:"daily"`
	Total map[string]int `json:"total"`
}

// UsageCounter tracks per-user daily and lifetime provider-call counts
// in usage_counts.json. Daily counts roll over when the UTC date
// changes. Writes are best effort.
type UsageCounter struct {
	mu     sync.Mutex
	path   string
	counts usageCounts
	logger *slog.Logger
	now    func() time.Time
}

func NewUsageCounter(path string, logger *slog.Logger) *UsageCounter {
	if logger == nil {
		logger = slog.Default()
	}
	u := &UsageCounter{
		path: path,
		counts: usageCounts{
			Daily: map[string]int{},
			Total: map[string]int{},
		},
		logger: logger.With(loggerNameKey, "usage"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	u.load()
	return u
}

func (u *UsageCounter) load() {
	data, err := os.ReadFile(u.path)
	if err != nil {
		if !os.IsNotExist(err) {
			u.logger.Warn("could not read usage file", tint.Err(err))
		}
		return
	}
	var counts usageCounts
	if err = json.Unmarshal(data, &counts); err != nil {
		u.logger.Warn("usage file corrupt, starting empty", tint.Err(err))
		return
	}
	if counts.Daily == nil {
		counts.Daily = map[string]int{}
	}
	if counts.Total == nil {
		counts.Total = map[string]int{}
	}
	u.counts = counts
}

// Increment bumps the user's counters and persists.
func (u *UsageCounter) Increment(userID string) {
	u.mu.Lock()
	today := u.now().Format(time.DateOnly)
	if u.counts.Day != today {
		u.counts.Day = today
		u.counts.Daily = map[string]int{}
	}
	u.counts.Daily[userID]++
	u.counts.Total[userID]++
	snapshot := usageCounts{
		Day:   u.counts.Day,
		Daily: make(map[string]int, len(u.counts.Daily)),
		Total: make(map[string]int, len(u.counts.Total)),
	}
	for k, v := range u.counts.Daily {
		snapshot.Daily[k] = v
	}
	for k, v := range u.counts.Total {
		snapshot.Total[k] = v
	}
	u.mu.Unlock()

	if err := writeJSONFileAtomic(u.path, snapshot); err != nil {
		u.logger.Error("failed to persist usage counts", tint.Err(err))
	}
}

// DailyCount returns today's count for the user.
func (u *UsageCounter) DailyCount(userID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.counts.Day != u.now().Format(time.DateOnly) {
		return 0
	}
	return u.counts.Daily[userID]
}

// TotalCount returns the user's lifetime count.
func (u *UsageCounter) TotalCount(userID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts.Total[userID]
}
