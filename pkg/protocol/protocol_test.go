// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture is a bottom layer recording every outbound message.
type capture struct {
	Base
	partial []byte
	msgs    [][]byte
	mtu     int
}

func (c *capture) Name() string { return "capture" }
func (c *capture) MTU() int     { return c.mtu }
func (c *capture) Flush() bool  { return true }
func (c *capture) Idle()        {}

func (c *capture) Encode(p []byte, last bool) {
	c.partial = append(c.partial, p...)
	if last {
		c.msgs = append(c.msgs, c.partial)
		c.partial = nil
	}
}

func (c *capture) last() []byte { return c.msgs[len(c.msgs)-1] }

var _ Layer = (*capture)(nil)

// sink is a top layer recording every inbound message.
type sink struct {
	Base
	msgs [][]byte
}

func (s *sink) Name() string { return "sink" }
func (s *sink) Decode(p []byte) {
	s.msgs = append(s.msgs, append([]byte(nil), p...))
}

func TestAsciiEscapeRoundTrip(t *testing.T) {
	payload := []byte{0x00, 'a', 0x11, 0x13, 0x1b, 0x0d, 0x7f, 0xff, 'z'}

	top := &sink{}
	esc := NewAsciiEscape()
	bottom := &capture{}
	Connect(top, esc, bottom)

	esc.Encode(payload, true)
	encoded := bottom.last()

	for _, b := range []byte{0x00, 0x11, 0x13, 0x1b, 0x0d} {
		assert.NotContains(t, encoded, b)
	}

	esc.Decode(encoded)
	require.Len(t, top.msgs, 1)
	assert.Equal(t, payload, top.msgs[0])
}

func TestAsciiEscapeSplitAcrossCalls(t *testing.T) {
	top := &sink{}
	esc := NewAsciiEscape()
	Connect(top, esc, &capture{})

	// An escape sequence torn in two must still decode.
	esc.Decode([]byte{'a', 0x7f})
	esc.Decode([]byte{0x40, 'b'})
	require.Len(t, top.msgs, 2)
	assert.Equal(t, []byte{'a'}, top.msgs[0])
	assert.Equal(t, []byte{0x00, 'b'}, top.msgs[1])
}

func TestTerminalFramingAndSideband(t *testing.T) {
	var side bytes.Buffer
	top := &sink{}
	term := NewTerminal(WithSideband(&side))
	bottom := &capture{}
	Connect(top, term, bottom)

	term.Encode([]byte("hello"), true)
	require.Len(t, bottom.msgs, 1)
	assert.Equal(t, append(append([]byte{0x1b, '_'}, []byte("hello")...), 0x1b, '\\'), bottom.msgs[0])

	// Interleaved console output around and between frames.
	term.Decode([]byte("log: "))
	term.Decode([]byte{0x1b, '_', 'm', 's'})
	term.Decode([]byte{'g', 0x1b, '\\'})
	term.Decode([]byte("tail"))

	require.Len(t, top.msgs, 1)
	assert.Equal(t, []byte("msg"), top.msgs[0])
	assert.Equal(t, "log: tail", side.String())
}

func TestTerminalChunkedEncode(t *testing.T) {
	top := &sink{}
	term := NewTerminal()
	bottom := &capture{}
	Connect(top, term, bottom)

	term.Encode([]byte("ab"), false)
	term.Encode([]byte("cd"), true)
	require.Len(t, bottom.msgs, 1)
	assert.Equal(t, []byte{0x1b, '_', 'a', 'b', 'c', 'd', 0x1b, '\\'}, bottom.msgs[0])
}

func TestSegmentationSplitsToMTU(t *testing.T) {
	top := &sink{}
	seg := NewSegmentation()
	bottom := &capture{mtu: 4}
	Connect(top, seg, bottom)

	seg.Encode([]byte("abcdefgh"), true)
	require.Equal(t, [][]byte{
		[]byte("abcC"), []byte("defC"), []byte("ghE"),
	}, bottom.msgs)

	// Feed the segments back; the original message reassembles.
	for _, m := range bottom.msgs {
		seg.Decode(m)
	}
	require.Len(t, top.msgs, 1)
	assert.Equal(t, []byte("abcdefgh"), top.msgs[0])
}

func TestSegmentationUnlimitedTransport(t *testing.T) {
	top := &sink{}
	seg := NewSegmentation()
	bottom := &capture{}
	Connect(top, seg, bottom)

	seg.Encode([]byte("abc"), true)
	require.Equal(t, [][]byte{[]byte("abcE")}, bottom.msgs)
	assert.Zero(t, seg.MTU())
}

func TestCrc16RoundTripAndDrop(t *testing.T) {
	top := &sink{}
	crc := NewCrc16()
	bottom := &capture{}
	Connect(top, crc, bottom)

	crc.Encode([]byte("payload"), true)
	msg := bottom.last()
	require.Len(t, msg, len("payload")+2)

	crc.Decode(msg)
	require.Len(t, top.msgs, 1)
	assert.Equal(t, []byte("payload"), top.msgs[0])

	// Flip one payload bit: the message must vanish silently.
	bad := append([]byte(nil), msg...)
	bad[2] ^= 0x04
	crc.Decode(bad)
	assert.Len(t, top.msgs, 1)
	assert.Equal(t, uint64(1), crc.Drops)
}

func TestCrc8RoundTripAndDrop(t *testing.T) {
	top := &sink{}
	crc := NewCrc8()
	bottom := &capture{}
	Connect(top, crc, bottom)

	crc.Encode([]byte{0xde, 0xad}, true)
	msg := bottom.last()
	require.Len(t, msg, 3)

	crc.Decode(msg)
	require.Len(t, top.msgs, 1)

	bad := append([]byte(nil), msg...)
	bad[0] ^= 0x80
	crc.Decode(bad)
	assert.Len(t, top.msgs, 1)
	assert.Equal(t, uint64(1), crc.Drops)
}

func TestCrcChunkedEncodeMatchesWhole(t *testing.T) {
	whole := &capture{}
	crcW := NewCrc16()
	Connect(&sink{}, crcW, whole)
	crcW.Encode([]byte("abcdef"), true)

	chunked := &capture{}
	crcC := NewCrc16()
	Connect(&sink{}, crcC, chunked)
	crcC.Encode([]byte("abc"), false)
	crcC.Encode([]byte("def"), true)

	assert.Equal(t, whole.last(), chunked.last())
}

func TestBufferHoldsUntilFlush(t *testing.T) {
	top := &sink{}
	buf := NewBuffer(2)
	bottom := &capture{}
	Connect(top, buf, bottom)

	buf.Encode([]byte("one"), true)
	buf.Encode([]byte("two"), true)
	assert.Empty(t, bottom.msgs)
	assert.Equal(t, 2, buf.Pending())

	// Overflow drops.
	buf.Encode([]byte("three"), true)
	assert.Equal(t, uint64(1), buf.Drops)

	buf.Flush()
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, bottom.msgs)
	assert.Zero(t, buf.Pending())
}

func TestDescribe(t *testing.T) {
	top := &sink{}
	stack := []Layer{top, NewAsciiEscape(), NewTerminal(), NewSegmentation(), &capture{}}
	Connect(stack...)
	assert.Equal(t, []string{"sink", "ascii", "term", "segment", "capture"}, Describe(top))
}
