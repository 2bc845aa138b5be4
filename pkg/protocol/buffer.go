// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

// Buffer decouples the timing of the layers above from the transport
// below: outbound messages are collected and only handed down on Flush
// or Idle. It also coalesces chunked Encode calls into one downward
// message. The FIFO depth is fixed; messages beyond it are dropped,
// counted, and logged by the caller via the Drops field.
type Buffer struct {
	Base
	partial []byte
	fifo    [][]byte
	depth   int

	// Drops counts messages discarded because the FIFO was full.
	Drops uint64
}

// NewBuffer returns a buffering layer with the given FIFO depth.
func NewBuffer(depth int) *Buffer {
	if depth <= 0 {
		depth = 16
	}
	return &Buffer{depth: depth}
}

func (b *Buffer) Name() string { return "buffer" }

func (b *Buffer) Encode(p []byte, last bool) {
	b.partial = append(b.partial, p...)
	if !last {
		return
	}
	if len(b.fifo) >= b.depth {
		b.Drops++
		b.partial = nil
		return
	}
	b.fifo = append(b.fifo, b.partial)
	b.partial = nil
}

func (b *Buffer) Flush() bool {
	for len(b.fifo) > 0 {
		msg := b.fifo[0]
		b.fifo = b.fifo[1:]
		b.Base.Encode(msg, true)
	}
	return b.Base.Flush()
}

func (b *Buffer) Idle() {
	b.Flush()
	b.Base.Idle()
}

// Pending returns the number of queued outbound messages.
func (b *Buffer) Pending() int { return len(b.fifo) }
