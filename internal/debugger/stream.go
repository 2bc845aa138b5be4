// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package debugger

import (
	"errors"
	"sort"
	"sync"
)

const (
	// DefaultStreamCount bounds the number of concurrently open streams.
	DefaultStreamCount = 8
	// DefaultStreamBytes bounds each stream's buffer.
	DefaultStreamBytes = 1024
)

// streamOverflowMark is appended to a drained stream that lost data.
const streamOverflowMark = '~'

var errStreamSpace = errors.New("debugger: stream limit reached")

// streamTable holds the multiplexed byte FIFOs the application can emit
// into (tracing, application logs) and a client drains with the `s`
// command. Writers run on application goroutines, hence the lock.
type stream struct {
	buf       []byte
	truncated bool
}

type streamTable struct {
	mu       sync.Mutex
	maxCount int
	maxBytes int
	m        map[byte]*stream
}

func newStreamTable(maxCount, maxBytes int) *streamTable {
	if maxCount <= 0 {
		maxCount = DefaultStreamCount
	}
	if maxBytes <= 0 {
		maxBytes = DefaultStreamBytes
	}
	return &streamTable{maxCount: maxCount, maxBytes: maxBytes, m: make(map[byte]*stream)}
}

// write appends data to stream c, creating it on first use. On overflow
// the excess is dropped and the stream marked.
func (t *streamTable) write(c byte, data []byte) error {
	if !aliasChar(c) {
		return errors.New("debugger: invalid stream character")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.m[c]
	if !ok {
		if len(t.m) >= t.maxCount {
			return errStreamSpace
		}
		s = &stream{}
		t.m[c] = s
	}

	room := t.maxBytes - len(s.buf)
	if room < len(data) {
		data = data[:room]
		s.truncated = true
	}
	s.buf = append(s.buf, data...)
	return nil
}

// drain empties stream c and reports whether it exists. A stream that
// overflowed since the last drain carries a trailing marker.
func (t *streamTable) drain(c byte) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.m[c]
	if !ok {
		return nil, false
	}
	out := s.buf
	if s.truncated {
		out = append(out, streamOverflowMark)
	}
	s.buf = nil
	s.truncated = false
	return out, true
}

// list returns the existing stream characters in ascending order.
func (t *streamTable) list() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	chars := make([]byte, 0, len(t.m))
	for c := range t.m {
		chars = append(chars, c)
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })
	return chars
}
