// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// Arq implements stop-and-wait automatic repeat request over a lossy
// channel. Every message gets a one byte header
//
//	bit 7: ACK
//	bit 6: NOP (header only, no payload to deliver)
//	bits 0-5: sequence number
//
// Sequence numbers run 1..63 and wrap back to 1; seq 0 is reserved for
// the RESET handshake. A fresh connection starts with a RESET that the
// peer acknowledges with ACK|0; the first payload then carries seq 1.
//
// The sender keeps at most one message in flight and rolls back and
// retransmits it when the ack timeout expires. The receiver re-acks
// duplicates without re-delivering and drops out-of-sequence messages
// without acking, so the upper layer sees each message exactly once and
// in order, as long as the channel is eventually live. CRC sits below:
// corrupted messages vanish there and run into the same timeout.
//
// Timeouts are driven cooperatively: the poll loop must call Idle
// regularly; nothing runs in the background.
const (
	arqFlagAck = 0x80
	arqFlagNop = 0x40
	arqMaskSeq = 0x3f
)

// ArqEvent describes a state change of interest to diagnostics.
type ArqEvent int

const (
	// ArqEventConnected fires when the RESET handshake completes.
	ArqEventConnected ArqEvent = iota
	// ArqEventRetransmit fires per retransmitted message.
	ArqEventRetransmit
	// ArqEventReset fires when this side starts a (re-)connect.
	ArqEventReset
	// ArqEventGaveUp fires when the retry budget is exhausted.
	ArqEventGaveUp
)

// DefaultAckTimeout is the retransmit timeout of a fresh Arq.
const DefaultAckTimeout = 100 * time.Millisecond

type Arq struct {
	Base

	ackTimeout time.Duration
	maxRetries int
	onEvent    func(ArqEvent)
	now        func() time.Time

	// Sender half.
	connected bool
	resetSent bool
	sendSeq   uint8 // seq of the message in flight / to be sent next
	partial   []byte
	queue     [][]byte
	inflight  []byte // full message including header
	sentAt    time.Time
	retries   int

	// Receiver half.
	recvSeq uint8 // last delivered seq, 0 right after reset

	// Retransmits counts timeouts that led to a retransmission.
	Retransmits uint64
}

// ArqOption configures an Arq layer.
type ArqOption func(*Arq)

// WithAckTimeout sets the retransmit timeout.
func WithAckTimeout(d time.Duration) ArqOption {
	return func(a *Arq) { a.ackTimeout = d }
}

// WithMaxRetries bounds retransmissions per message; 0 retries forever.
// When the budget is exhausted the connection is torn down and the
// handshake starts over.
func WithMaxRetries(n int) ArqOption {
	return func(a *Arq) { a.maxRetries = n }
}

// WithArqEvents registers a diagnostics callback.
func WithArqEvents(f func(ArqEvent)) ArqOption {
	return func(a *Arq) { a.onEvent = f }
}

// WithArqClock replaces the time source, for tests.
func WithArqClock(now func() time.Time) ArqOption {
	return func(a *Arq) { a.now = now }
}

// NewArq returns an ARQ layer with the default 100 ms ack timeout.
func NewArq(opts ...ArqOption) *Arq {
	a := &Arq{
		ackTimeout: DefaultAckTimeout,
		now:        time.Now,
		sendSeq:    1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Arq) Name() string { return "arq" }

// Connected reports whether the RESET handshake completed.
func (a *Arq) Connected() bool { return a.connected }

func (a *Arq) event(e ArqEvent) {
	if a.onEvent != nil {
		a.onEvent(e)
	}
}

func (a *Arq) Encode(p []byte, last bool) {
	a.partial = append(a.partial, p...)
	if !last {
		return
	}
	msg := a.partial
	a.partial = nil
	a.queue = append(a.queue, msg)
	a.pump()
}

// pump transmits whatever the stop-and-wait window allows.
func (a *Arq) pump() {
	if !a.connected {
		if !a.resetSent {
			a.sendReset()
		}
		return
	}
	if a.inflight != nil || len(a.queue) == 0 {
		return
	}
	msg := a.queue[0]
	a.queue = a.queue[1:]
	full := make([]byte, 0, len(msg)+1)
	full = append(full, a.sendSeq)
	full = append(full, msg...)
	a.inflight = full
	a.retries = 0
	a.transmit()
}

func (a *Arq) transmit() {
	a.sentAt = a.now()
	a.Base.Encode(a.inflight, true)
}

func (a *Arq) sendReset() {
	a.resetSent = true
	a.sentAt = a.now()
	a.retries = 0
	a.event(ArqEventReset)
	a.Base.Encode([]byte{arqFlagNop | 0}, true)
}

func (a *Arq) Decode(p []byte) {
	if len(p) == 0 {
		return
	}
	hdr, payload := p[0], p[1:]
	seq := hdr & arqMaskSeq

	if hdr&arqFlagAck != 0 {
		a.handleAck(seq)
		return
	}

	if seq == 0 {
		// Peer reset: restart the inbound sequence and confirm.
		a.recvSeq = 0
		a.Base.Encode([]byte{arqFlagAck | arqFlagNop | 0}, true)
		return
	}

	switch seq {
	case nextSeq(a.recvSeq):
		a.recvSeq = seq
		a.Base.Encode([]byte{arqFlagAck | arqFlagNop | seq}, true)
		if hdr&arqFlagNop == 0 {
			a.Base.Decode(payload)
		}
	case a.recvSeq:
		// Duplicate: our ack got lost. Re-ack, do not re-deliver.
		a.Base.Encode([]byte{arqFlagAck | arqFlagNop | seq}, true)
	default:
		// Out of sequence; stay silent so the sender times out.
		cclog.Debugf("arq: dropping out-of-sequence message %d (expect %d)",
			seq, nextSeq(a.recvSeq))
	}
}

func (a *Arq) handleAck(seq uint8) {
	if seq == 0 {
		if !a.connected {
			a.connected = true
			a.resetSent = false
			a.sendSeq = 1
			a.event(ArqEventConnected)
			a.pump()
		}
		return
	}
	if a.inflight == nil || seq != a.sendSeq {
		return // stale ack
	}
	a.inflight = nil
	a.sendSeq = nextSeq(a.sendSeq)
	a.retries = 0
	a.pump()
}

// Idle drives the retransmit timer; the poll loop calls this regularly.
func (a *Arq) Idle() {
	waiting := a.inflight != nil || (!a.connected && a.resetSent)
	if waiting && a.now().Sub(a.sentAt) >= a.ackTimeout {
		if a.maxRetries > 0 && a.retries >= a.maxRetries {
			a.giveUp()
		} else {
			a.retries++
			a.Retransmits++
			a.event(ArqEventRetransmit)
			if a.inflight != nil && a.connected {
				a.transmit()
			} else {
				a.resetSent = false
				a.sendReset()
			}
		}
	}
	a.Base.Idle()
}

// giveUp tears the connection down and starts over; the unacked message
// stays at the head of the queue.
func (a *Arq) giveUp() {
	cclog.Warnf("arq: peer unresponsive after %d retries, reconnecting", a.retries)
	a.event(ArqEventGaveUp)
	if a.inflight != nil {
		msg := a.inflight[1:]
		a.queue = append([][]byte{msg}, a.queue...)
		a.inflight = nil
	}
	a.connected = false
	a.resetSent = false
	a.sendReset()
}

func (a *Arq) Flush() bool {
	a.pump()
	return a.inflight == nil && len(a.queue) == 0 && a.Base.Flush()
}

func (a *Arq) MTU() int {
	m := a.Base.MTU()
	if m == 0 {
		return 0
	}
	return m - 1
}

// nextSeq advances a 6-bit sequence number, skipping the reserved 0.
func nextSeq(s uint8) uint8 {
	s++
	if s > arqMaskSeq {
		s = 1
	}
	return s
}
