// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a hand-advanced time source for timeout tests.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newArqUnderTest(clk *fakeClock, opts ...ArqOption) (*Arq, *sink, *capture) {
	top := &sink{}
	a := NewArq(append([]ArqOption{WithArqClock(clk.now)}, opts...)...)
	bottom := &capture{}
	Connect(top, a, bottom)
	return a, top, bottom
}

func TestArqHandshakeThenData(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	a, _, bottom := newArqUnderTest(clk)

	a.Encode([]byte("hi"), true)

	// Nothing but the RESET goes out before the handshake completes.
	require.Len(t, bottom.msgs, 1)
	assert.Equal(t, []byte{arqFlagNop}, bottom.msgs[0])
	assert.False(t, a.Connected())

	a.Decode([]byte{arqFlagAck | arqFlagNop})
	assert.True(t, a.Connected())
	require.Len(t, bottom.msgs, 2)
	assert.Equal(t, append([]byte{1}, []byte("hi")...), bottom.msgs[1])

	// Ack releases the window for the next message.
	a.Encode([]byte("there"), true)
	require.Len(t, bottom.msgs, 2) // still in flight
	a.Decode([]byte{arqFlagAck | arqFlagNop | 1})
	require.Len(t, bottom.msgs, 3)
	assert.Equal(t, append([]byte{2}, []byte("there")...), bottom.msgs[2])
}

func TestArqReceiverDeliversInOrder(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	a, top, bottom := newArqUnderTest(clk)

	a.Decode(append([]byte{1}, []byte("one")...))
	require.Len(t, top.msgs, 1)
	assert.Equal(t, []byte("one"), top.msgs[0])
	assert.Equal(t, []byte{arqFlagAck | arqFlagNop | 1}, bottom.last())

	// Duplicate: re-ack without re-delivering (scenario S6, receiver side).
	a.Decode(append([]byte{1}, []byte("one")...))
	assert.Len(t, top.msgs, 1)
	assert.Equal(t, []byte{arqFlagAck | arqFlagNop | 1}, bottom.last())

	// Out-of-sequence: silence.
	before := len(bottom.msgs)
	a.Decode(append([]byte{5}, []byte("skip")...))
	assert.Len(t, top.msgs, 1)
	assert.Len(t, bottom.msgs, before)

	a.Decode(append([]byte{2}, []byte("two")...))
	require.Len(t, top.msgs, 2)
	assert.Equal(t, []byte("two"), top.msgs[1])
}

func TestArqRetransmitOnTimeout(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	a, _, bottom := newArqUnderTest(clk)

	a.Encode([]byte("msg"), true)
	a.Decode([]byte{arqFlagAck | arqFlagNop}) // handshake
	data := bottom.last()

	// Ack never arrives; after the timeout the same message repeats.
	clk.advance(DefaultAckTimeout + time.Millisecond)
	a.Idle()
	assert.Equal(t, data, bottom.last())
	assert.Equal(t, uint64(1), a.Retransmits)

	// Late ack releases it; no further retransmissions.
	a.Decode([]byte{arqFlagAck | arqFlagNop | 1})
	n := len(bottom.msgs)
	clk.advance(time.Second)
	a.Idle()
	assert.Len(t, bottom.msgs, n)
}

func TestArqGiveUpRestartsHandshake(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	var events []ArqEvent
	a, _, bottom := newArqUnderTest(clk,
		WithMaxRetries(2), WithArqEvents(func(e ArqEvent) { events = append(events, e) }))

	a.Encode([]byte("msg"), true)
	a.Decode([]byte{arqFlagAck | arqFlagNop})

	for i := 0; i < 3; i++ {
		clk.advance(DefaultAckTimeout + time.Millisecond)
		a.Idle()
	}

	assert.Contains(t, events, ArqEventGaveUp)
	assert.False(t, a.Connected())
	// The handshake restarted.
	assert.Equal(t, []byte{arqFlagNop}, bottom.last())
}

func TestArqSequenceWrap(t *testing.T) {
	assert.Equal(t, uint8(1), nextSeq(0))
	assert.Equal(t, uint8(2), nextSeq(1))
	assert.Equal(t, uint8(63), nextSeq(62))
	assert.Equal(t, uint8(1), nextSeq(63))
}

// TestArqExactlyOnceOverLossyChannel wires two ARQ peers through a
// loopback that drops the first ack (scenario S6 end to end): the upper
// layer must still see exactly one delivery.
func TestArqExactlyOnceOverLossyChannel(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	lb := NewLoopback()

	topA := &sink{}
	arqA := NewArq(WithArqClock(clk.now))
	Connect(topA, arqA, lb.A())

	topB := &sink{}
	arqB := NewArq(WithArqClock(clk.now))
	Connect(topB, arqB, lb.B())

	// Drop the first data ack travelling B -> A.
	dropped := false
	lb.B().Fault = func(p []byte) []byte {
		if !dropped && len(p) == 1 && p[0]&arqFlagAck != 0 && p[0]&arqMaskSeq == 1 {
			dropped = true
			return nil
		}
		return p
	}

	arqA.Encode([]byte("payload"), true)

	// Handshake succeeded, data went out, B delivered it, but the ack
	// was dropped.
	require.Len(t, topB.msgs, 1)
	assert.Equal(t, []byte("payload"), topB.msgs[0])

	// Sender times out and retransmits; B recognizes the duplicate and
	// re-acks without a second delivery.
	clk.advance(DefaultAckTimeout + time.Millisecond)
	arqA.Idle()

	assert.Len(t, topB.msgs, 1)
	assert.Equal(t, uint64(1), arqA.Retransmits)

	// The window is free again.
	arqA.Encode([]byte("next"), true)
	require.Len(t, topB.msgs, 2)
	assert.Equal(t, []byte("next"), topB.msgs[1])
}
