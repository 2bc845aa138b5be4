// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package protocol implements the bidirectional codec pipeline between
// the application layers (debugger, synchronizer) and a transport.
//
// A stack is a chain of layers. Encoded bytes flow downward via Encode,
// decoded messages flow upward via Decode:
//
//	application (debugger / synchronizer)
//	  AsciiEscape
//	  Terminal
//	  Arq          (lossy channels)
//	  Crc16
//	  Segmentation
//	  endpoint     (stdio, serial, ZMQ, ...)
//
// Encode is synchronous and may be called repeatedly for one logical
// message; last=true marks its end. A layer that buffers partial
// messages forwards exactly one downward message per logical message.
// Layers never reorder messages.
//
// The whole pipeline is single-threaded cooperative: Decode, Encode,
// Flush and Idle of one stack must be called from one goroutine,
// typically the poll loop that owns the endpoint.
package protocol

// Layer is one element of a protocol stack.
type Layer interface {
	// Name identifies the layer kind in diagnostics.
	Name() string

	// Decode handles inbound bytes from the layer below. Depending on
	// the layer this produces zero or more Decode calls on the layer
	// above.
	Decode(p []byte)

	// Encode handles outbound bytes from the layer above. last marks
	// the end of the logical message.
	Encode(p []byte, last bool)

	// MTU returns the maximum size of one outbound message at this
	// layer; 0 means unlimited.
	MTU() int

	// Flush pushes out buffered data. It returns true when nothing is
	// left pending anywhere below.
	Flush() bool

	// Idle gives buffering layers a chance to run timers (ARQ
	// retransmits, FIFO drain). Called regularly by the poll loop.
	Idle()

	SetUp(Layer)
	SetDown(Layer)
}

// Base provides the pass-through behavior layers embed and override
// selectively.
type Base struct {
	up, down Layer
}

// Up returns the upper neighbor, nil at the top.
func (b *Base) Up() Layer { return b.up }

// Down returns the lower neighbor, nil at the bottom.
func (b *Base) Down() Layer { return b.down }

func (b *Base) SetUp(l Layer)   { b.up = l }
func (b *Base) SetDown(l Layer) { b.down = l }

func (b *Base) Name() string { return "layer" }

func (b *Base) Decode(p []byte) {
	if b.up != nil {
		b.up.Decode(p)
	}
}

func (b *Base) Encode(p []byte, last bool) {
	if b.down != nil {
		b.down.Encode(p, last)
	}
}

func (b *Base) MTU() int {
	if b.down != nil {
		return b.down.MTU()
	}
	return 0
}

func (b *Base) Flush() bool {
	if b.down != nil {
		return b.down.Flush()
	}
	return true
}

func (b *Base) Idle() {
	if b.down != nil {
		b.down.Idle()
	}
}

// Connect chains layers top to bottom and returns the top layer.
func Connect(layers ...Layer) Layer {
	for i := 0; i+1 < len(layers); i++ {
		layers[i].SetDown(layers[i+1])
		layers[i+1].SetUp(layers[i])
	}
	if len(layers) == 0 {
		return nil
	}
	return layers[0]
}

// Describe lists the layer names from the given layer downward, for the
// debug endpoint of the management API.
func Describe(top Layer) []string {
	var names []string
	for l := top; l != nil; {
		names = append(names, l.Name())
		type downer interface{ Down() Layer }
		d, ok := l.(downer)
		if !ok {
			break
		}
		l = d.Down()
	}
	return names
}

// Handler is a top layer handing complete inbound messages to a
// callback. The callback's reply, if any, is sent by the callee through
// Encode.
type Handler struct {
	Base
	OnMessage func(p []byte)
}

func (h *Handler) Name() string { return "handler" }

func (h *Handler) Decode(p []byte) {
	if h.OnMessage != nil {
		h.OnMessage(p)
	}
}
