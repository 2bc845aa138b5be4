// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

// escChar introduces an escape sequence; the escaped byte is ORed with
// 0x40 so that every control byte maps into the printable range.
const escChar = 0x7f // DEL

// AsciiEscape makes arbitrary binary payloads safe for channels that
// interpret a few control bytes (software flow control, line discipline,
// terminal emulators).
//
// On encode, every byte of the configured unsafe set is replaced by
// DEL <byte|0x40>, DEL itself by DEL DEL. On decode, a DEL followed by
// any byte other than DEL clears the high three bits of the successor.
// decode(encode(x)) == x for arbitrary x, and encoded output contains no
// unsafe byte.
type AsciiEscape struct {
	Base
	unsafe  [256]bool
	sawEsc  bool
	scratch []byte
}

// AsciiEscapeOption configures an AsciiEscape layer.
type AsciiEscapeOption func(*AsciiEscape)

// WithEscapeSet replaces the default unsafe set.
func WithEscapeSet(bytes []byte) AsciiEscapeOption {
	return func(a *AsciiEscape) {
		a.unsafe = [256]bool{}
		for _, b := range bytes {
			a.unsafe[b] = true
		}
		a.unsafe[escChar] = true
	}
}

// WithEscapeAllControl escapes every byte below 0x20 as well as the
// default set, for channels that eat arbitrary control characters.
func WithEscapeAllControl() AsciiEscapeOption {
	return func(a *AsciiEscape) {
		for b := 0; b < 0x20; b++ {
			a.unsafe[b] = true
		}
	}
}

// NewAsciiEscape returns an escape layer with the default unsafe set:
// NUL, XON, XOFF, ESC, CR and DEL.
func NewAsciiEscape(opts ...AsciiEscapeOption) *AsciiEscape {
	a := &AsciiEscape{}
	for _, b := range []byte{0x00, 0x11, 0x13, 0x1b, 0x0d, escChar} {
		a.unsafe[b] = true
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AsciiEscape) Name() string { return "ascii" }

func (a *AsciiEscape) Encode(p []byte, last bool) {
	out := a.scratch[:0]
	for _, b := range p {
		switch {
		case b == escChar:
			out = append(out, escChar, escChar)
		case a.unsafe[b]:
			out = append(out, escChar, b|0x40)
		default:
			out = append(out, b)
		}
	}
	a.scratch = out[:0]
	a.Base.Encode(out, last)
}

func (a *AsciiEscape) Decode(p []byte) {
	out := make([]byte, 0, len(p))
	for _, b := range p {
		if a.sawEsc {
			a.sawEsc = false
			if b == escChar {
				out = append(out, escChar)
			} else {
				out = append(out, b&0x1f)
			}
			continue
		}
		if b == escChar {
			a.sawEsc = true
			continue
		}
		out = append(out, b)
	}
	a.Base.Decode(out)
}

func (a *AsciiEscape) MTU() int {
	// Worst case every byte escapes to two.
	m := a.Base.MTU()
	if m == 0 {
		return 0
	}
	return m / 2
}
