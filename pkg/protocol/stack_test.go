// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFullStack assembles the §6.3 lossy-channel stack on one loopback
// end: AsciiEscape -> Terminal -> Arq -> Crc16 -> Segmentation -> transport.
func buildFullStack(end *LoopbackEnd, clk *fakeClock, onMsg func([]byte)) *Handler {
	h := &Handler{OnMessage: onMsg}
	Connect(h,
		NewAsciiEscape(),
		NewTerminal(),
		NewArq(WithArqClock(clk.now)),
		NewCrc16(),
		NewSegmentation(),
		end,
	)
	return h
}

// TestFullStackEcho runs an echoing peer under the complete layer stack
// over a constrained loopback link (testable property 2): requests and
// responses survive escaping, framing, ARQ, CRC and segmentation intact.
func TestFullStackEcho(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	lb := NewLoopback()
	lb.A().MTUOverride = 16
	lb.B().MTUOverride = 16

	var received [][]byte
	client := buildFullStack(lb.A(), clk, func(p []byte) {
		received = append(received, append([]byte(nil), p...))
	})

	var server *Handler
	server = buildFullStack(lb.B(), clk, func(p []byte) {
		// Echo, including the binary tail that exercises escaping.
		server.Encode(p, true)
	})

	msg := append([]byte("eHello"), 0x00, 0x1b, 0x0d, 0x7f, 0x11)
	client.Encode(msg, true)

	require.Len(t, received, 1)
	assert.Equal(t, msg, received[0])

	// A larger message spanning many segments.
	big := bytes.Repeat([]byte{0xa5, 0x00, 0x42}, 200)
	client.Encode(big, true)
	require.Len(t, received, 2)
	assert.Equal(t, big, received[1])
}

// TestFullStackSurvivesCrcDrop corrupts one transport message; ARQ must
// recover on its own and keep exactly-once delivery.
func TestFullStackSurvivesCrcDrop(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	lb := NewLoopback()

	var received [][]byte
	client := buildFullStack(lb.A(), clk, func(p []byte) {
		received = append(received, append([]byte(nil), p...))
	})

	var serverGot [][]byte
	server := buildFullStack(lb.B(), clk, func(p []byte) {
		serverGot = append(serverGot, append([]byte(nil), p...))
	})
	_ = server

	// Corrupt the first data-carrying A->B transport message.
	corrupted := false
	lb.A().Fault = func(p []byte) []byte {
		if !corrupted && len(p) > 4 {
			corrupted = true
			mangled := append([]byte(nil), p...)
			mangled[3] ^= 0xff
			return mangled
		}
		return p
	}

	client.Encode([]byte("rPayload"), true)
	assert.Empty(t, serverGot)

	// The ack timeout expires; the retransmitted message passes.
	clk.advance(DefaultAckTimeout + time.Millisecond)
	idleAll(client)

	require.Len(t, serverGot, 1)
	assert.Equal(t, []byte("rPayload"), serverGot[0])
}

// idleAll runs Idle down the whole stack.
func idleAll(top Layer) { top.Idle() }
