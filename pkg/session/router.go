// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Decoder turns raw link bytes into responses. civ.FrameBuffer implements
// it. Feed stops at the first malformed frame and returns the responses
// decoded before it together with the error; Feed(nil) continues with the
// buffered remainder.
type Decoder interface {
	Feed(data []byte) ([]civ.Response, error)
	Reset()
}

// Router matches decoded responses to the in-flight command and applies
// them to shadow state
type Router struct {
	decoder   Decoder
	queue     *Queue
	store     *ChannelStore
	telemetry *Telemetry
	stats     *Statistics
	clock     clockwork.Clock
	log       zerolog.Logger
	emit      EventHandler
}

// RouterConfig configures a Router
type RouterConfig struct {
	Decoder   Decoder
	Queue     *Queue
	Store     *ChannelStore
	Telemetry *Telemetry
	Stats     *Statistics
	Clock     clockwork.Clock
	Logger    zerolog.Logger
	OnEvent   EventHandler
}

// NewRouter creates a router
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStatistics(cfg.Clock)
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(Event) {}
	}
	return &Router{
		decoder:   cfg.Decoder,
		queue:     cfg.Queue,
		store:     cfg.Store,
		telemetry: cfg.Telemetry,
		stats:     cfg.Stats,
		clock:     cfg.Clock,
		log:       cfg.Logger,
		emit:      cfg.OnEvent,
	}
}

// Process decodes one chunk read from the link and routes the result.
//
// Everything in a chunk was received before any command written while
// processing it, so only the first response or parse error in the chunk
// can answer the command that was in flight when the chunk arrived. The
// rest are unsolicited.
func (r *Router) Process(chunk []byte) {
	answered := false

	resps, err := r.decoder.Feed(chunk)
	for {
		for _, resp := range resps {
			r.route(resp, &answered)
		}
		if err == nil {
			return
		}
		r.parseError(err, &answered)
		resps, err = r.decoder.Feed(nil)
	}
}

func (r *Router) route(resp civ.Response, answered *bool) {
	var cmd *queuedCommand
	if !*answered && !resp.Broadcast {
		cmd = r.queue.current()
		*answered = cmd != nil
	}

	hint := ChannelNone
	if cmd != nil {
		hint = cmd.hint
	}

	ch := r.dispatch(hint, resp)

	r.stats.response(responseOutcome{
		unsolicited: cmd == nil,
		rejected:    resp.Kind == civ.KindReject,
	})
	r.emit(Event{
		Type:      EventResponse,
		Time:      r.clock.Now(),
		Response:  resp,
		Channel:   ch,
		Solicited: cmd != nil,
	})

	if cmd != nil {
		reply := &Reply{Response: resp, Channel: hint}
		if ch != ChannelNone {
			reply.Channel = ch
		}
		r.queue.finish(cmd, reply)
	}
}

// dispatch applies resp to exactly one of channel state or telemetry and
// returns the channel written, if any
func (r *Router) dispatch(hint Channel, resp civ.Response) Channel {
	switch resp.Kind {
	case civ.KindFrequency, civ.KindMode, civ.KindToneMode, civ.KindToneFrequency, civ.KindDTCS:
		ch, ok := r.store.Apply(hint, resp)
		if !ok {
			r.log.Debug().Str("kind", resp.Kind.String()).Msg("response not applied to channel state")
			return ChannelNone
		}
		return ch

	case civ.KindLevel, civ.KindMeter, civ.KindGPS, civ.KindDuplex, civ.KindOffset, civ.KindTransceiverID:
		r.telemetry.Apply(resp, r.clock.Now())

	case civ.KindOK, civ.KindReject:
		// acknowledgement only

	default:
		r.log.Debug().
			Str("cmd", civ.FormatCommand(resp.Command)).
			Uint8("sub", resp.Sub).
			Msg("ignoring unrecognized response")
	}
	return ChannelNone
}

// parseError fails the in-flight command with no reply. The decoder has
// already skipped the bad frame; no attempt is made to guess what it was.
func (r *Router) parseError(err error, answered *bool) {
	r.stats.parseError()
	r.log.Warn().Err(err).Msg("civ parse error")

	if !*answered {
		if cmd := r.queue.current(); cmd != nil {
			*answered = true
			r.queue.finish(cmd, nil)
		}
	}

	r.emit(Event{
		Type: EventError,
		Time: r.clock.Now(),
		Err:  err,
	})
}
