// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// bitsPerByte on an 8N1 serial line (start + 8 data + stop)
const bitsPerByte = 10

// Statistics tracks link traffic and command outcomes. Safe for concurrent use.
type Statistics struct {
	mu    sync.Mutex
	clock clockwork.Clock
	c     Counters
	start time.Time
}

// Counters is a point-in-time copy of the statistics
type Counters struct {
	StartTime time.Time
	Elapsed   time.Duration

	TxBytes     uint64
	RxBytes     uint64
	Commands    uint64
	Responses   uint64
	Unsolicited uint64
	Timeouts    uint64
	Rejects     uint64
	WriteErrors uint64
	ParseErrors uint64
	PollSkips   uint64

	// Rates (calculated)
	TxBitRate float64 // bits/sec
	RxBitRate float64 // bits/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics(clock clockwork.Clock) *Statistics {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Statistics{clock: clock, start: clock.Now()}
}

func (s *Statistics) add(fn func(c *Counters)) {
	s.mu.Lock()
	fn(&s.c)
	s.mu.Unlock()
}

func (s *Statistics) wrote(n int) {
	s.add(func(c *Counters) {
		c.Commands++
		c.TxBytes += uint64(n)
	})
}

func (s *Statistics) read(n int)   { s.add(func(c *Counters) { c.RxBytes += uint64(n) }) }
func (s *Statistics) timeout()     { s.add(func(c *Counters) { c.Timeouts++ }) }
func (s *Statistics) writeError()  { s.add(func(c *Counters) { c.WriteErrors++ }) }
func (s *Statistics) parseError()  { s.add(func(c *Counters) { c.ParseErrors++ }) }
func (s *Statistics) pollSkipped() { s.add(func(c *Counters) { c.PollSkips++ }) }

func (s *Statistics) response(resp responseOutcome) {
	s.add(func(c *Counters) {
		c.Responses++
		if resp.unsolicited {
			c.Unsolicited++
		}
		if resp.rejected {
			c.Rejects++
		}
	})
}

type responseOutcome struct {
	unsolicited bool
	rejected    bool
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	c.StartTime = s.start
	c.Elapsed = s.clock.Since(s.start)
	if secs := c.Elapsed.Seconds(); secs > 0 {
		c.TxBitRate = float64(c.TxBytes*bitsPerByte) / secs
		c.RxBitRate = float64(c.RxBytes*bitsPerByte) / secs
	}
	return c
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = Counters{}
	s.start = s.clock.Now()
}

// String returns a formatted statistics summary
func (c Counters) String() string {
	var timeoutPercent, rejectPercent float64
	if c.Commands > 0 {
		timeoutPercent = float64(c.Timeouts) * 100.0 / float64(c.Commands)
		rejectPercent = float64(c.Rejects) * 100.0 / float64(c.Commands)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", c.Elapsed.Seconds())
	result += fmt.Sprintf("Commands:        %8d\n", c.Commands)
	result += fmt.Sprintf("Responses:       %8d\n", c.Responses)
	if c.Unsolicited > 0 {
		result += fmt.Sprintf("  Unsolicited:      %5d\n", c.Unsolicited)
	}
	if c.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", c.Timeouts, timeoutPercent)
	}
	if c.Rejects > 0 {
		result += fmt.Sprintf("Rejected:        %8d (%.1f%%)\n", c.Rejects, rejectPercent)
	}
	if c.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", c.WriteErrors)
	}
	if c.ParseErrors > 0 {
		result += fmt.Sprintf("Parse Errors:    %8d\n", c.ParseErrors)
	}
	if c.PollSkips > 0 {
		result += fmt.Sprintf("Poll Skips:      %8d\n", c.PollSkips)
	}
	result += fmt.Sprintf("TX:              %8d bytes (%.0f bps)\n", c.TxBytes, c.TxBitRate)
	result += fmt.Sprintf("RX:              %8d bytes (%.0f bps)\n", c.RxBytes, c.RxBitRate)
	result += "================================\n"

	return result
}
