// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package poller multiplexes readiness over heterogeneous event sources:
// file descriptors (stdio, pipes, files, serial ports) and
// channel-backed adapters (ZMQ sockets, NATS subscriptions).
//
// The poll loop owns all protocol state: readiness callbacks run on the
// goroutine calling Poll, never concurrently. Per-descriptor watcher
// goroutines exist only to wait; they hand readiness over and block
// until the loop has consumed the data, which keeps level-triggered
// descriptors from spinning.
package poller

import (
	"errors"
	"sync"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// ErrClosed is returned by Poll after Close.
var ErrClosed = errors.New("poller: closed")

type source struct {
	name    string
	onReady func()
	resume  chan struct{} // fd watchers wait here after notifying
	stop    chan struct{}
}

// Poller is a readiness multiplexer. All methods except Poll may be
// called from any goroutine.
type Poller struct {
	mu      sync.Mutex
	sources map[string]*source
	notify  chan *source
	closed  bool
}

// New returns an empty Poller.
func New() *Poller {
	return &Poller{
		sources: make(map[string]*source),
		notify:  make(chan *source, 64),
	}
}

// AddFD registers a file descriptor. onReady runs inside Poll whenever
// the descriptor becomes readable; it must consume the available data.
func (p *Poller) AddFD(name string, fd int, onReady func()) error {
	s := &source{
		name:    name,
		onReady: onReady,
		resume:  make(chan struct{}),
		stop:    make(chan struct{}),
	}
	if err := p.add(s); err != nil {
		return err
	}
	go p.watchFD(s, fd)
	return nil
}

// AddChan registers a channel-backed source. The adapter signals ready
// on ch (a buffered channel of capacity 1 is enough); onReady runs
// inside Poll.
func (p *Poller) AddChan(name string, ch <-chan struct{}, onReady func()) error {
	s := &source{
		name:    name,
		onReady: onReady,
		stop:    make(chan struct{}),
	}
	if err := p.add(s); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-s.stop:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case p.notify <- s:
				case <-s.stop:
					return
				}
			}
		}
	}()
	return nil
}

func (p *Poller) add(s *source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.sources[s.name]; ok {
		return errors.New("poller: duplicate source " + s.name)
	}
	p.sources[s.name] = s
	return nil
}

// Remove unregisters a source. Pending readiness for it is discarded by
// the next Poll.
func (p *Poller) Remove(name string) {
	p.mu.Lock()
	s, ok := p.sources[name]
	if ok {
		delete(p.sources, name)
	}
	p.mu.Unlock()
	if ok {
		close(s.stop)
	}
}

// Poll blocks until at least one source is ready or the timeout expires,
// dispatches the ready callbacks, and returns the number dispatched.
// Zero means timeout. Poll must be called from a single goroutine.
func (p *Poller) Poll(timeout time.Duration) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	var timer <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	n := 0
	var first *source
	select {
	case first = <-p.notify:
	case <-timer:
		return 0, nil
	}
	n += p.dispatch(first)

	// Drain whatever else is already pending without blocking again.
	for {
		select {
		case s := <-p.notify:
			n += p.dispatch(s)
		default:
			return n, nil
		}
	}
}

func (p *Poller) dispatch(s *source) int {
	p.mu.Lock()
	_, registered := p.sources[s.name]
	p.mu.Unlock()
	if !registered {
		return 0 // removed while queued
	}

	if s.onReady != nil {
		s.onReady()
	}
	if s.resume != nil {
		// Let the fd watcher rearm now that the data is consumed.
		select {
		case s.resume <- struct{}{}:
		case <-s.stop:
		}
	}
	return 1
}

// Close shuts the poller down and stops all watcher goroutines.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	sources := p.sources
	p.sources = map[string]*source{}
	p.mu.Unlock()

	for _, s := range sources {
		close(s.stop)
	}
	cclog.Debug("poller: closed")
}
