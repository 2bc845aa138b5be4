// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import "io"

// Terminal extracts protocol messages from a textual byte stream and
// passes everything else to a sideband writer. Messages are framed as
// APC ... ST (ESC _ payload ESC \), which terminal emulators ignore, so
// a debugger can share a console with ordinary application output.
//
// The payload must not contain ESC; the AsciiEscape layer above
// guarantees that.
const (
	termEsc   = 0x1b
	termStart = '_'  // ESC _ : application program command
	termEnd   = '\\' // ESC \ : string terminator
)

type terminalState int

const (
	termIdle terminalState = iota
	termIdleEsc
	termMsg
	termMsgEsc
)

type Terminal struct {
	Base
	sideband io.Writer
	state    terminalState
	buf      []byte
	maxMsg   int
	overflow bool
	encoding bool

	// Drops counts frames discarded due to overflow.
	Drops uint64
}

// TerminalOption configures a Terminal layer.
type TerminalOption func(*Terminal)

// WithSideband directs unframed bytes to w. Without it they are
// discarded.
func WithSideband(w io.Writer) TerminalOption {
	return func(t *Terminal) { t.sideband = w }
}

// WithMaxFrame bounds the reassembled frame size.
func WithMaxFrame(n int) TerminalOption {
	return func(t *Terminal) { t.maxMsg = n }
}

// NewTerminal returns a terminal framing layer.
func NewTerminal(opts ...TerminalOption) *Terminal {
	t := &Terminal{maxMsg: 1 << 20}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Terminal) Name() string { return "term" }

func (t *Terminal) Encode(p []byte, last bool) {
	if !t.encoding {
		t.encoding = true
		t.Base.Encode([]byte{termEsc, termStart}, false)
	}
	t.Base.Encode(p, false)
	if last {
		t.encoding = false
		t.Base.Encode([]byte{termEsc, termEnd}, true)
	}
}

func (t *Terminal) Decode(p []byte) {
	for _, b := range p {
		switch t.state {
		case termIdle:
			if b == termEsc {
				t.state = termIdleEsc
			} else {
				t.aside(b)
			}
		case termIdleEsc:
			if b == termStart {
				t.state = termMsg
				t.buf = t.buf[:0]
				t.overflow = false
			} else {
				t.aside(termEsc)
				t.aside(b)
				t.state = termIdle
			}
		case termMsg:
			if b == termEsc {
				t.state = termMsgEsc
			} else {
				t.push(b)
			}
		case termMsgEsc:
			if b == termEnd {
				t.state = termIdle
				if t.overflow {
					t.Drops++
				} else {
					t.Base.Decode(t.buf)
				}
			} else {
				// Stray ESC inside a frame; keep both bytes.
				t.push(termEsc)
				t.push(b)
				t.state = termMsg
			}
		}
	}
}

func (t *Terminal) push(b byte) {
	if len(t.buf) >= t.maxMsg {
		t.overflow = true
		return
	}
	t.buf = append(t.buf, b)
}

func (t *Terminal) aside(b byte) {
	if t.sideband != nil {
		t.sideband.Write([]byte{b})
	}
}

func (t *Terminal) MTU() int {
	m := t.Base.MTU()
	if m == 0 {
		return 0
	}
	if m <= 4 {
		return 1
	}
	return m - 4
}
