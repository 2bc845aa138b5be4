// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package debugger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/cc-devstore/pkg/protocol"
	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

// client speaks to a debugger through a complete codec stack over a
// constrained loopback link, like a tool attached to a serial port.
type stackClient struct {
	handler *protocol.Handler
	replies [][]byte
}

func newStackedDebugger(t *testing.T, d *Debugger) *stackClient {
	t.Helper()
	lb := protocol.NewLoopback()
	lb.A().MTUOverride = 24
	lb.B().MTUOverride = 24

	protocol.Connect(
		d.NewPort(),
		protocol.NewAsciiEscape(),
		protocol.NewTerminal(),
		protocol.NewCrc16(),
		protocol.NewSegmentation(),
		lb.A(),
	)

	c := &stackClient{}
	c.handler = &protocol.Handler{OnMessage: func(p []byte) {
		c.replies = append(c.replies, append([]byte(nil), p...))
	}}
	protocol.Connect(
		c.handler,
		protocol.NewAsciiEscape(),
		protocol.NewTerminal(),
		protocol.NewCrc16(),
		protocol.NewSegmentation(),
		lb.B(),
	)
	return c
}

func (c *stackClient) request(t *testing.T, req string) string {
	t.Helper()
	n := len(c.replies)
	c.handler.Encode([]byte(req), true)
	require.Len(t, c.replies, n+1, "request %q got no reply", req)
	return string(c.replies[n])
}

// TestDebuggerOverFullStack runs write-then-read through escaping,
// framing, CRC and segmentation: the client observes exactly the value
// it wrote, independent of the layer plumbing in between.
func TestDebuggerOverFullStack(t *testing.T) {
	st, err := store.NewBuilder("app", true).
		Int32("/x", 0x12345678).
		Blob("/raw", 8).
		Build()
	require.NoError(t, err)

	d := New([]*store.Store{st}, WithIdentification("stacked"))
	c := newStackedDebugger(t, d)

	assert.Equal(t, "Hello", c.request(t, "eHello"))
	assert.Equal(t, "12345678", c.request(t, "r/x"))

	assert.Equal(t, "!", c.request(t, "wcafebabe/x"))
	assert.Equal(t, "cafebabe", c.request(t, "r/x"))

	// A value whose bytes hit the escape set still round-trips; it
	// travels as hex text, and each message fits one segment of this
	// 24-byte link.
	assert.Equal(t, "!", c.request(t, "w000d11137f/raw"))
	assert.Equal(t, "000d11137f000000", c.request(t, "r/raw"))
	assert.Equal(t, "stacked", c.request(t, "i"))
	assert.Contains(t, c.request(t, "l"), "/raw\n")
}
