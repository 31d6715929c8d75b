// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Default polling intervals
const (
	DefaultFastPoll = 500 * time.Millisecond
	DefaultSlowPoll = 5 * time.Second
)

// Poller periodically reads live telemetry. The fast schedule reads the
// S-meter, AF level and squelch level; the slow schedule reads the GPS
// position. A tick is skipped while the queue has anything queued or in
// flight, so polling never piles up behind user commands.
type Poller struct {
	queue   *Queue
	clock   clockwork.Clock
	fast    time.Duration
	slow    time.Duration
	address byte
	log     zerolog.Logger
	stats   *Statistics

	mu      sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// PollerConfig configures a Poller
type PollerConfig struct {
	Clock   clockwork.Clock
	Fast    time.Duration
	Slow    time.Duration
	Address byte
	Logger  zerolog.Logger
	Stats   *Statistics
}

// NewPoller creates a stopped poller feeding q
func NewPoller(q *Queue, cfg PollerConfig) *Poller {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Fast <= 0 {
		cfg.Fast = DefaultFastPoll
	}
	if cfg.Slow <= 0 {
		cfg.Slow = DefaultSlowPoll
	}
	if cfg.Address == 0 {
		cfg.Address = civ.AddrID52
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStatistics(cfg.Clock)
	}
	return &Poller{
		queue:   q,
		clock:   cfg.Clock,
		fast:    cfg.Fast,
		slow:    cfg.Slow,
		address: cfg.Address,
		log:     cfg.Logger,
		stats:   cfg.Stats,
	}
}

// Start begins both schedules. Starting a running poller does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.running.Add(2)
	go p.loop(ctx, p.fast, p.fastTick)
	go p.loop(ctx, p.slow, p.slowTick)
	p.log.Debug().Dur("fast", p.fast).Dur("slow", p.slow).Msg("poller started")
}

// Stop halts both schedules and waits for them to exit
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.running.Wait()
	p.log.Debug().Msg("poller stopped")
}

// Running reports whether the poller is started
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, tick func()) {
	defer p.running.Done()

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			tick()
		}
	}
}

func (p *Poller) fastTick() {
	if p.queue.Busy() {
		p.stats.pollSkipped()
		return
	}
	p.send(civ.ReadMeter(civ.MeterS))
	p.send(civ.ReadLevel(civ.LevelAF))
	p.send(civ.ReadLevel(civ.LevelSquelch))
}

func (p *Poller) slowTick() {
	if p.queue.Busy() {
		p.stats.pollSkipped()
		return
	}
	p.send(civ.ReadGPS())
}

// send enqueues without waiting; the router applies the reply
func (p *Poller) send(f civ.Frame) {
	p.queue.Enqueue(f.To(p.address).Bytes(), ChannelNone)
}
