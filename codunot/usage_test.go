package codunot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUsageCounterIncrement(t *testing.T) {
	u := NewUsageCounter(filepath.Join(t.TempDir(), "usage.json"), testLogger(t))

	u.Increment("user-1")
	u.Increment("user-1")
	u.Increment("user-2")

	assert.Equal(t, 2, u.DailyCount("user-1"))
	assert.Equal(t, 2, u.TotalCount("user-1"))
	assert.Equal(t, 1, u.DailyCount("user-2"))
	assert.Equal(t, 0, u.DailyCount("user-3"))
}

func TestUsageCounterDayRollover(t *testing.T) {
	u := NewUsageCounter(filepath.Join(t.TempDir(), "usage.json"), testLogger(t))

	current := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	u.now = func() time.Time { return current }

	u.Increment("user-1")
	u.Increment("user-1")
	assert.Equal(t, 2, u.DailyCount("user-1"))

	current = current.Add(2 * time.Hour) // past UTC midnight
	assert.Equal(t, 0, u.DailyCount("user-1"), "daily resets on new day")
	assert.Equal(t, 2, u.TotalCount("user-1"), "total survives")

	u.Increment("user-1")
	assert.Equal(t, 1, u.DailyCount("user-1"))
	assert.Equal(t, 3, u.TotalCount("user-1"))
}

func TestUsageCounterPersistRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")

	u := NewUsageCounter(path, testLogger(t))
	u.Increment("user-1")

	reloaded := NewUsageCounter(path, testLogger(t))
	assert.Equal(t, 1, reloaded.TotalCount("user-1"))
	assert.Equal(t, 1, reloaded.DailyCount("user-1"))
}
