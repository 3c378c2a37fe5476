package codunot

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

var nudgeMessages = []string{
	"it's quiet in here... too quiet 👀",
	"yo did everyone fall asleep",
	"hello?? chat died fr 💀",
}

// DeadChannelPinger periodically nudges configured channels that have
// gone quiet. Each target gets at most MaxNudges nudges per process
// lifetime, so a dead channel doesn't accumulate spam across scans.
type DeadChannelPinger struct {
	config *PingerConfig
	memory *MemoryStore
	egress *EgressQueue
	logger *slog.Logger
	mu     sync.Mutex
	nudges map[string]int
	rng    *rand.Rand
	now    func() time.Time
}

func NewDeadChannelPinger(
	config *PingerConfig,
	memory *MemoryStore,
	egress *EgressQueue,
	rng *rand.Rand,
	logger *slog.Logger,
) *DeadChannelPinger {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadChannelPinger{
		config: config,
		memory: memory,
		egress: egress,
		logger: logger.With(loggerNameKey, "pinger"),
		nudges: map[string]int{},
		rng:    rng,
		now:    time.Now,
	}
}

// Run scans on each tick until ctx is cancelled.
func (p *DeadChannelPinger) Run(ctx context.Context) {
	interval := p.config.Interval
	if interval <= 0 {
		interval = DefaultPingerInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scan()
		}
	}
}

func (p *DeadChannelPinger) scan() {
	idleAge := p.config.IdleAge
	if idleAge <= 0 {
		idleAge = DefaultPingerIdleAge
	}
	maxNudges := p.config.MaxNudges
	if maxNudges <= 0 {
		maxNudges = DefaultPingerMaxNudges
	}

	for _, target := range p.config.Targets {
		last, ok := p.memory.LastTimestamp(target)
		if !ok || p.now().Sub(last) < idleAge {
			continue
		}

		p.mu.Lock()
		count := p.nudges[target]
		if count >= maxNudges {
			p.mu.Unlock()
			continue
		}
		p.nudges[target]++
		nudge := nudgeMessages[p.rng.Intn(len(nudgeMessages))]
		p.mu.Unlock()

		p.logger.Info("nudging dead channel", "channel_id", target, "count", count+1)
		p.egress.Enqueue(target, nudge)
	}
}
