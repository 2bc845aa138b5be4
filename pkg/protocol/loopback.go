// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

// Loopback is an in-process transport connecting two stacks back to
// back. Everything encoded into one end is decoded at the other end's
// upper layer, optionally routed through a fault hook that may drop or
// mangle messages to simulate a hostile channel in tests.
type Loopback struct {
	a, b *LoopbackEnd
}

// FaultFunc filters a message in transit; returning nil drops it.
type FaultFunc func(p []byte) []byte

// NewLoopback returns a connected loopback pair.
func NewLoopback() *Loopback {
	l := &Loopback{}
	l.a = &LoopbackEnd{lb: l}
	l.b = &LoopbackEnd{lb: l, flip: true}
	return l
}

// A returns one end of the pair, to be used as a stack's bottom layer.
func (l *Loopback) A() *LoopbackEnd { return l.a }

// B returns the other end.
func (l *Loopback) B() *LoopbackEnd { return l.b }

// LoopbackEnd is one side of a Loopback.
type LoopbackEnd struct {
	Base
	lb      *Loopback
	flip    bool
	partial []byte

	// MTUOverride simulates a constrained link when non-zero.
	MTUOverride int

	// Fault filters outbound messages.
	Fault FaultFunc
}

func (e *LoopbackEnd) Name() string { return "loopback" }

func (e *LoopbackEnd) MTU() int { return e.MTUOverride }

func (e *LoopbackEnd) Encode(p []byte, last bool) {
	// One decoded message per logical message; coalesce partial chunks
	// so boundaries survive the crossing.
	e.partial = append(e.partial, p...)
	if !last {
		return
	}
	msg := e.partial
	e.partial = nil
	if e.Fault != nil {
		if msg = e.Fault(msg); msg == nil {
			return
		}
	}
	peer := e.lb.a
	if !e.flip {
		peer = e.lb.b
	}
	if up := peer.Up(); up != nil {
		up.Decode(msg)
	}
}

func (e *LoopbackEnd) Flush() bool { return true }
func (e *LoopbackEnd) Idle()       {}
