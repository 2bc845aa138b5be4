// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package endpoint provides the transport adapters terminating a
// protocol stack: stdio, files, named pipes, serial ports, ZMQ sockets
// and NATS subjects.
//
// An endpoint is a protocol.Layer at the bottom of a stack. Outbound
// data arrives via Encode and is written to the transport; inbound
// transport data is pushed upward with Decode from inside the poll loop,
// after the endpoint announced readiness through its Attach
// registration. Endpoints whose client library delivers on its own
// goroutines (serial, ZMQ, NATS) park inbound data in a small queue and
// wake the poller, so all protocol state still mutates on the loop's
// goroutine only.
package endpoint

import (
	"sync"

	"github.com/ClusterCockpit/cc-devstore/internal/poller"
	"github.com/ClusterCockpit/cc-devstore/pkg/protocol"
)

// Endpoint is a transport-bound bottom layer.
type Endpoint interface {
	protocol.Layer

	// Attach registers the endpoint's readiness with the poller.
	Attach(p *poller.Poller) error

	// Close releases the transport. The endpoint must not call Decode
	// afterwards.
	Close() error
}

// queue buffers inbound messages handed over from a client library
// goroutine until the poll loop picks them up.
type queue struct {
	mu     sync.Mutex
	msgs   [][]byte
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(msg []byte) {
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain hands all pending messages to fn, in arrival order.
func (q *queue) drain(fn func(msg []byte)) {
	q.mu.Lock()
	msgs := q.msgs
	q.msgs = nil
	q.mu.Unlock()
	for _, m := range msgs {
		fn(m)
	}
}
