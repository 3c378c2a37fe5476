package codunot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEgressQueueSendsInOrder(t *testing.T) {
	sender := &fakeSender{}
	q := NewEgressQueue(sender, time.Millisecond, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		q.Drain(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		q.Enqueue("chan-1", fmt.Sprintf("chunk %d", i))
	}

	require.Eventually(
		t,
		func() bool { return len(sender.sent()) == 5 },
		5*time.Second,
		10*time.Millisecond,
	)

	sent := sender.sent()
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("chunk %d", i), sent[i].Content)
		assert.Equal(t, "chan-1", sent[i].ChannelID)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not stop on context cancel")
	}
}

func TestEgressQueueEnqueueNeverBlocks(t *testing.T) {
	// no drainer running: enqueues must still return immediately
	q := NewEgressQueue(&fakeSender{}, time.Millisecond, testLogger(t))
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.Enqueue("chan-1", "x")
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("enqueue blocked")
	}
	assert.Equal(t, 1000, q.Len())
}

func TestGuildRateLimiterWindow(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewGuildRateLimiter(3, time.Minute)
	g.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		require.True(t, g.Allow("guild-1"), "send %d", i)
	}
	assert.False(t, g.Allow("guild-1"), "limit reached")

	// other guilds have independent budgets
	assert.True(t, g.Allow("guild-2"))

	// sliding window: the old sends age out and slots reopen
	current = current.Add(61 * time.Second)
	assert.True(t, g.Allow("guild-1"))
}

func TestGuildRateLimiterLimit(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewGuildRateLimiter(DefaultGuildSendLimit, DefaultGuildSendWindow)
	g.now = func() time.Time { return current }

	for i := 0; i < DefaultGuildSendLimit; i++ {
		current = current.Add(time.Millisecond)
		require.True(t, g.Allow("guild-1"), "send %d", i)
	}
	assert.False(t, g.Allow("guild-1"), "send 901 must be rejected")
}

func TestGuildRateLimiterDMsAlwaysAdmitted(t *testing.T) {
	g := NewGuildRateLimiter(1, time.Minute)
	for i := 0; i < 10; i++ {
		assert.True(t, g.Allow(""))
	}
}
