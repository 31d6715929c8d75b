// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"time"

	"github.com/Thermoquad/civstat/pkg/civ"
)

// EventType identifies what an Event carries
type EventType uint8

// Event types
const (
	// EventResponse carries a routed response, solicited or not
	EventResponse EventType = iota
	// EventState carries a lifecycle transition
	EventState
	// EventError carries a non-fatal error (parse failure, lost link)
	EventError
)

// Event is delivered to the EventHandler for every routed response,
// lifecycle transition and reported error
type Event struct {
	Type EventType
	Time time.Time

	Response  civ.Response
	Channel   Channel // channel whose state the response updated, if any
	Solicited bool

	State State
	Err   error
}

// EventHandler receives session events. It is called from the session's
// read goroutine and must not block on session operations. Disconnect
// waits for that goroutine, so a handler that wants to end the session
// must call it from a new goroutine.
type EventHandler func(Event)
