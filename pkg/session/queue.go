// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultCommandTimeout is how long a command may stay in flight
const DefaultCommandTimeout = 2 * time.Second

// Reply is the response matched to a command, with the channel hint the
// command was enqueued with
type Reply struct {
	Response civ.Response
	Channel  Channel
}

// Future is the pending result of an enqueued command
type Future struct {
	once  sync.Once
	done  chan struct{}
	reply *Reply
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(reply *Reply, err error) *Future {
	f := newFuture()
	f.resolve(reply, err)
	return f
}

func (f *Future) resolve(reply *Reply, err error) {
	f.once.Do(func() {
		f.reply = reply
		f.err = err
		close(f.done)
	})
}

// Done is closed once the command has been resolved
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the command resolves or ctx ends.
//
// A nil Reply with a nil error means the command got no answer: it timed
// out, was parsed as garbage, or was dropped by Drain. A non-nil error is
// either ErrWrite or the context's error.
func (f *Future) Wait(ctx context.Context) (*Reply, error) {
	select {
	case <-f.done:
		return f.reply, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type queuedCommand struct {
	data   []byte
	hint   Channel
	timer  clockwork.Timer
	future *Future
}

// QueueConfig configures a Queue
type QueueConfig struct {
	Clock   clockwork.Clock
	Timeout time.Duration
	Logger  zerolog.Logger
	Stats   *Statistics
}

// Queue serializes commands onto a half-duplex link. At most one command
// is in flight; the next is written only once the previous one has been
// answered, timed out or failed to write.
type Queue struct {
	mu       sync.Mutex
	writer   io.Writer
	clock    clockwork.Clock
	timeout  time.Duration
	log      zerolog.Logger
	stats    *Statistics
	pending  []*queuedCommand
	inFlight *queuedCommand
	writing  bool
	closed   bool
}

// NewQueue creates a queue writing to w. A nil writer drops every command.
func NewQueue(w io.Writer, cfg QueueConfig) *Queue {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCommandTimeout
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStatistics(cfg.Clock)
	}
	return &Queue{
		writer:  w,
		clock:   cfg.Clock,
		timeout: cfg.Timeout,
		log:     cfg.Logger,
		stats:   cfg.Stats,
	}
}

// Enqueue appends a command and returns its future. hint names the channel
// the command targets, or ChannelNone. After Drain the future is already
// resolved with no reply.
func (q *Queue) Enqueue(data []byte, hint Channel) *Future {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return resolvedFuture(nil, nil)
	}
	cmd := &queuedCommand{
		data:   data,
		hint:   hint,
		future: newFuture(),
	}
	q.pending = append(q.pending, cmd)
	q.mu.Unlock()

	q.pump()
	return cmd.future
}

// Busy reports whether any command is queued or in flight
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight != nil || q.writing || len(q.pending) > 0
}

// Len returns the number of queued commands, excluding the one in flight
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain closes the queue and resolves every queued and in-flight command
// with no reply
func (q *Queue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	if cmd := q.inFlight; cmd != nil {
		q.inFlight = nil
		cmd.timer.Stop()
		cmd.future.resolve(nil, nil)
	}
	for _, cmd := range q.pending {
		cmd.future.resolve(nil, nil)
	}
	q.pending = nil
}

// pump writes the next command if the link is free. The write itself
// happens outside the lock.
func (q *Queue) pump() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.inFlight == nil && !q.writing && len(q.pending) > 0 {
		if q.writer == nil {
			for _, cmd := range q.pending {
				cmd.future.resolve(nil, nil)
			}
			q.pending = nil
			return
		}

		cmd := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.inFlight = cmd
		q.writing = true
		cmd.timer = q.clock.AfterFunc(q.timeout, func() { q.expire(cmd) })

		w := q.writer
		q.mu.Unlock()
		n, err := w.Write(cmd.data)
		q.mu.Lock()
		q.writing = false

		if err != nil {
			q.stats.writeError()
			q.log.Warn().Err(err).Str("data", civ.FormatHex(cmd.data)).Msg("civ write failed")
			if q.inFlight == cmd {
				q.inFlight = nil
				cmd.timer.Stop()
				cmd.future.resolve(nil, fmt.Errorf("%w: %w", ErrWrite, err))
			}
			continue
		}

		q.stats.wrote(n)
		q.log.Debug().Str("data", civ.FormatHex(cmd.data)).Str("channel", cmd.hint.String()).Msg("civ command sent")
	}
}

// expire resolves cmd with no reply if it is still in flight
func (q *Queue) expire(cmd *queuedCommand) {
	q.mu.Lock()
	if q.inFlight != cmd {
		q.mu.Unlock()
		return
	}
	q.inFlight = nil
	q.stats.timeout()
	cmd.future.resolve(nil, nil)
	q.mu.Unlock()

	q.log.Warn().
		Err(ErrTimeout).
		Str("data", civ.FormatHex(cmd.data)).
		Dur("timeout", q.timeout).
		Msg("civ command timed out")
	q.pump()
}

// current returns the in-flight command, or nil
func (q *Queue) current() *queuedCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// finish resolves cmd with reply and advances the queue. It is a no-op
// for the future if cmd already timed out.
func (q *Queue) finish(cmd *queuedCommand, reply *Reply) {
	q.mu.Lock()
	if q.inFlight == cmd {
		q.inFlight = nil
		cmd.timer.Stop()
		cmd.future.resolve(reply, nil)
	}
	q.mu.Unlock()

	q.pump()
}
