// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package synchronizer keeps instances of the same store converging
// across processes and devices.
//
// Stores are identified on the wire by their content hash. Per transport
// port and store, a connection walks Unannounced -> HelloSent ->
// Welcomed; a Welcome carries the full buffer, afterwards journaled
// deltas travel in Update messages. Multiple stores share one port; a
// message that does not address a local store is ignored after a
// diagnostic, mirroring the daisy-chain passthrough of hardware
// deployments.
//
// Consistency model: one writer per object. Writes from one process are
// observed by all peers in that process's order; cross-process order is
// unspecified. A peer that reconnects is re-welcomed with the full
// buffer.
package synchronizer

import (
	"sync"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/ClusterCockpit/cc-devstore/pkg/protocol"
	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

// Synchronizer owns the connections of all its stores over all its
// ports.
//
// Locking: state mutates under mu, but messages are pushed into the
// stacks only after mu is released. A reply arriving synchronously
// (loopback transports, tests) re-enters handle without deadlocking.
type Synchronizer struct {
	mu     sync.Mutex
	stores []*store.Store
	ports  []*Port
	conns  []*connection
	nextID uint16
	hold   bool

	// UpdatesIn/UpdatesOut count applied and emitted Update messages.
	UpdatesIn  uint64
	UpdatesOut uint64

	onEvent func(event string)
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithEvents registers a diagnostics callback; events are "hello",
// "welcome", "update-in", "update-out", "bye", "drop".
func WithEvents(f func(event string)) Option {
	return func(s *Synchronizer) { s.onEvent = f }
}

// New returns a Synchronizer for the given stores.
func New(stores []*store.Store, opts ...Option) *Synchronizer {
	s := &Synchronizer{stores: stores}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) event(e string) {
	if s.onEvent != nil {
		s.onEvent(e)
	}
}

// Port is the top protocol layer binding the synchronizer to one
// transport stack. One peer is expected behind each port.
type Port struct {
	protocol.Base
	sync  *Synchronizer
	label string
}

// NewPort creates a port and the per-store connections behind it. Use
// the returned layer as the top of a transport stack.
func (s *Synchronizer) NewPort(label string) *Port {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &Port{sync: s, label: label}
	s.ports = append(s.ports, p)
	for _, st := range s.stores {
		// Chained id allocation: every connection takes the next id.
		s.nextID++
		s.conns = append(s.conns, &connection{
			st:      st,
			port:    p,
			idLocal: s.nextID,
			state:   StateUnannounced,
		})
	}
	return p
}

func (p *Port) Name() string { return "sync:" + p.label }

// Decode dispatches one inbound synchronizer message.
func (p *Port) Decode(msg []byte) {
	p.sync.handle(p, msg)
}

// outMsg is a message scheduled while holding the state lock and sent
// after its release.
type outMsg struct {
	port *Port
	msg  []byte
}

func flush(out []outMsg) {
	for _, o := range out {
		o.port.Encode(o.msg, true)
	}
}

// Announce sends a Hello for every not-yet-announced store on the port.
func (p *Port) Announce() {
	s := p.sync
	s.mu.Lock()
	var out []outMsg
	for _, c := range s.conns {
		if c.port != p || c.state != StateUnannounced {
			continue
		}
		out = append(out, outMsg{p, encodeHello(c.st, c.idLocal)})
		c.state = StateHelloSent
		s.event("hello")
		cclog.Debugf("sync %s: hello %s id=%d", p.label, c.st.Name(), c.idLocal)
	}
	s.mu.Unlock()
	flush(out)
}

// SetHold pauses (true) or resumes (false) outbound Updates.
func (s *Synchronizer) SetHold(hold bool) {
	s.mu.Lock()
	s.hold = hold
	s.mu.Unlock()
}

// Process emits pending Updates on every welcomed connection. The task
// manager calls this on the configured interval; callers may trigger it
// explicitly after a burst of writes.
func (s *Synchronizer) Process() {
	s.mu.Lock()
	var out []outMsg
	if !s.hold {
		for _, c := range s.conns {
			if c.state == StateHelloSent {
				// The peer may not have been listening yet; repeat the
				// Hello until a Welcome arrives.
				out = append(out, outMsg{c.port, encodeHello(c.st, c.idLocal)})
				continue
			}
			if c.state != StateWelcomed {
				continue
			}
			j := c.st.Journal()
			if !j.HasChangesSince(c.seqLastSent) {
				continue
			}
			snapshot := j.Snapshot()
			if msg := encodeUpdate(c.st, c.idRemote, c.seqLastSent); msg != nil {
				out = append(out, outMsg{c.port, msg})
				c.seqLastSent = snapshot
				s.UpdatesOut++
				s.event("update-out")
			}
		}
	}
	s.mu.Unlock()
	flush(out)
}

// ByeAll announces disconnection on every port and closes all
// connections. Stores keep their current values.
func (s *Synchronizer) ByeAll() {
	s.mu.Lock()
	var out []outMsg
	for _, c := range s.conns {
		if c.state == StateBye {
			continue
		}
		if c.state == StateWelcomed || c.state == StateHelloSent {
			out = append(out, outMsg{c.port, encodeBye(c.st, c.idRemote)})
		}
		c.state = StateBye
		s.event("bye")
	}
	s.mu.Unlock()
	flush(out)
}

// Status reports all connections, for the management API.
func (s *Synchronizer) Status() []ConnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ConnStatus, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, ConnStatus{
			Store:    c.st.Name(),
			Port:     c.port.label,
			State:    c.state.String(),
			IDLocal:  c.idLocal,
			IDRemote: c.idRemote,
			SeqSent:  c.seqLastSent,
		})
	}
	return out
}

// MinSnapshot returns the oldest snapshot any connection of st still
// needs deltas against, or ^0 when no connection is welcomed. The
// journal clean task uses this as its keep boundary.
func (s *Synchronizer) MinSnapshot(st *store.Store) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	min := ^uint64(0)
	for _, c := range s.conns {
		if c.st == st && c.state == StateWelcomed && c.seqLastSent < min {
			min = c.seqLastSent
		}
	}
	return min
}

// handle dispatches one inbound message on port p.
func (s *Synchronizer) handle(p *Port, msg []byte) {
	if len(msg) == 0 {
		return
	}
	cmd, le := splitCmd(msg[0])
	payload := msg[1:]

	s.mu.Lock()
	var out []outMsg
	switch cmd {
	case cmdHello:
		out = s.handleHello(p, payload, le)
	case cmdWelcome:
		s.handleWelcome(p, payload, le)
	case cmdUpdate:
		s.handleUpdate(p, payload, le)
	case cmdBye:
		s.handleBye(p, payload, le)
	default:
		s.event("drop")
		cclog.Debugf("sync %s: unknown command %#02x", p.label, msg[0])
	}
	s.mu.Unlock()
	flush(out)
}

// endianMatches verifies the command byte's case against the store's
// flag. A mismatch means the peer serializes differently than the hash
// promised; the message is dropped with a diagnostic.
func (s *Synchronizer) endianMatches(st *store.Store, le bool, p *Port) bool {
	if st.LittleEndian() == le {
		return true
	}
	s.event("drop")
	cclog.Warnf("sync %s: endianness mismatch for store %s", p.label, st.Name())
	return false
}

func (s *Synchronizer) handleHello(p *Port, payload []byte, le bool) []outMsg {
	h, err := decodeHello(payload, le)
	if err != nil {
		s.event("drop")
		return nil
	}

	st := s.storeByHash(h.hash)
	if st == nil {
		// Not ours; in a chained deployment the next hop picks it up.
		s.event("drop")
		cclog.Debugf("sync %s: hello for unknown hash %s", p.label, h.hash)
		return nil
	}
	if !s.endianMatches(st, le, p) {
		return nil
	}

	c := s.conn(p, st)
	if c == nil {
		return nil
	}
	c.idRemote = h.id
	c.seqLastSent = st.Journal().Snapshot()
	c.state = StateWelcomed
	s.event("welcome")
	cclog.Infof("sync %s: welcomed peer %d for store %s", p.label, h.id, st.Name())
	return []outMsg{{p, encodeWelcome(st, h.id, c.idLocal)}}
}

func (s *Synchronizer) handleWelcome(p *Port, payload []byte, le bool) {
	w, err := decodeWelcome(payload, le)
	if err != nil {
		s.event("drop")
		return
	}

	c := s.connByLocalID(p, w.helloID)
	if c == nil || c.state != StateHelloSent {
		s.event("drop")
		return
	}
	if !s.endianMatches(c.st, le, p) {
		return
	}
	if len(w.buffer) != c.st.BufferSize() {
		// Hash matched but the buffer did not: schema drift. Surface it
		// rather than applying a torn state.
		s.event("drop")
		cclog.Warnf("sync %s: welcome buffer size %d does not match store %s (%d), dropping",
			p.label, len(w.buffer), c.st.Name(), c.st.BufferSize())
		return
	}

	if err := c.st.ReplaceBuffer(w.buffer); err != nil {
		s.event("drop")
		return
	}
	c.idRemote = w.welcomeID
	// The welcome state must not bounce back as our next delta.
	c.seqLastSent = c.st.Journal().Snapshot()
	c.state = StateWelcomed
	s.event("welcome")
	cclog.Infof("sync %s: store %s adopted peer state (%d bytes)",
		p.label, c.st.Name(), len(w.buffer))
}

func (s *Synchronizer) handleUpdate(p *Port, payload []byte, le bool) {
	id, rest, err := decodeUpdateID(payload, le)
	if err != nil {
		s.event("drop")
		return
	}

	c := s.connByLocalID(p, id)
	if c == nil || c.state != StateWelcomed {
		s.event("drop")
		cclog.Debugf("sync %s: update for unknown id %d", p.label, id)
		return
	}
	if !s.endianMatches(c.st, le, p) {
		return
	}

	deltas, err := decodeDeltas(rest, keyWidth(c.st.BufferSize()), le)
	if err != nil {
		s.event("drop")
		cclog.Warnf("sync %s: %v", p.label, err)
		return
	}
	pending := c.st.Journal().HasChangesSince(c.seqLastSent)
	for _, d := range deltas {
		if err := c.st.ApplySync(d.key, d.data); err != nil {
			cclog.Warnf("sync %s: delta for key %d out of range on %s",
				p.label, d.key, c.st.Name())
		}
	}
	// Applied changes do not echo back to their sender unless local
	// writes are still unsent to it; those go out with the next Update,
	// together with the applied keys. Connections on other ports still
	// see the applied changes as fresh.
	if !pending {
		c.seqLastSent = c.st.Journal().Snapshot()
	}
	s.UpdatesIn++
	s.event("update-in")
}

func (s *Synchronizer) handleBye(p *Port, payload []byte, le bool) {
	b, err := decodeBye(payload, le)
	if err != nil {
		s.event("drop")
		return
	}

	for _, c := range s.conns {
		if c.port != p || c.state == StateBye {
			continue
		}
		match := true // empty Bye: everything on this port
		if b.hash != "" {
			match = c.st.Hash() == b.hash
		} else if b.hasID {
			match = c.idLocal == b.id
		}
		if match {
			c.state = StateBye
			s.event("bye")
			cclog.Infof("sync %s: peer said bye for store %s", p.label, c.st.Name())
		}
	}
}

func (s *Synchronizer) storeByHash(hash string) *store.Store {
	for _, st := range s.stores {
		if st.Hash() == hash {
			return st
		}
	}
	return nil
}

func (s *Synchronizer) conn(p *Port, st *store.Store) *connection {
	for _, c := range s.conns {
		if c.port == p && c.st == st {
			return c
		}
	}
	return nil
}

func (s *Synchronizer) connByLocalID(p *Port, id uint16) *connection {
	for _, c := range s.conns {
		if c.port == p && c.idLocal == id {
			return c
		}
	}
	return nil
}
