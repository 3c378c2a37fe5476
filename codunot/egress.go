package codunot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

// MessageSender is the slice of the discord session used for outbound
// sends, extracted for testing.
type MessageSender interface {
	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

type outboundChunk struct {
	ChannelID string
	Content   string
}

// EgressQueue is the single outbound FIFO. All reply text leaves the
// bot through here: producers enqueue chunks without blocking, and one
// drainer goroutine sends them in order with inter-send pacing.
// Per-item send failures are logged and swallowed; the drainer never
// stops on an item error.
type EgressQueue struct {
	mu      sync.Mutex
	items   []outboundChunk
	wake    chan struct{}
	sender  MessageSender
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewEgressQueue(
	sender MessageSender,
	pacing time.Duration,
	logger *slog.Logger,
) *EgressQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if pacing <= 0 {
		pacing = DefaultEgressPacing
	}
	return &EgressQueue{
		wake:    make(chan struct{}, 1),
		sender:  sender,
		limiter: rate.NewLimiter(rate.Every(pacing), 1),
		logger:  logger.With(loggerNameKey, "egress"),
	}
}

// Enqueue appends one chunk to the queue. It never blocks and never
// drops: if the queue grows, sends lag behind instead.
func (q *EgressQueue) Enqueue(channelID string, content string) {
	q.mu.Lock()
	q.items = append(q.items, outboundChunk{ChannelID: channelID, Content: content})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued chunks.
func (q *EgressQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *EgressQueue) pop() (outboundChunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return outboundChunk{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Drain runs the consumer loop until ctx is cancelled.
func (q *EgressQueue) Drain(ctx context.Context) {
	for {
		item, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		if err := q.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := q.sender.ChannelMessageSend(
			item.ChannelID,
			item.Content,
		); err != nil {
			q.logger.Error(
				"failed to send message",
				"channel_id", item.ChannelID,
				tint.Err(err),
			)
		}
	}
}

// GuildRateLimiter admits at most limit sends per guild inside a
// sliding window. Direct messages (empty guild ID) are always admitted.
// It is consulted on the admission path, before any reply work begins.
type GuildRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	sends  map[string][]time.Time
	now    func() time.Time
}

func NewGuildRateLimiter(limit int, window time.Duration) *GuildRateLimiter {
	if limit <= 0 {
		limit = DefaultGuildSendLimit
	}
	if window <= 0 {
		window = DefaultGuildSendWindow
	}
	return &GuildRateLimiter{
		window: window,
		limit:  limit,
		sends:  map[string][]time.Time{},
		now:    time.Now,
	}
}

// Allow evicts entries older than the window, then admits and records
// one send if the guild is under its limit.
func (g *GuildRateLimiter) Allow(guildID string) bool {
	if guildID == "" {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	currentTime := g.now()
	cutoff := currentTime.Add(-g.window)

	recent := g.sends[guildID][:0]
	for _, ts := range g.sends[guildID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= g.limit {
		g.sends[guildID] = recent
		return false
	}
	g.sends[guildID] = append(recent, currentTime)
	return true
}
