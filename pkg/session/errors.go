// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import "errors"

// Session errors
var (
	ErrWrite            = errors.New("session: transport write failed")
	ErrTimeout          = errors.New("session: command timed out")
	ErrNoReply          = errors.New("session: no reply from radio")
	ErrRejected         = errors.New("session: command rejected by radio")
	ErrNotActive        = errors.New("session: not active")
	ErrClosed           = errors.New("session: closed")
	ErrAlreadyConnected = errors.New("session: already connected")
	ErrNoTransport      = errors.New("session: no transport opener configured")
)
