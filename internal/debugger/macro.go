// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package debugger

import "errors"

// DefaultMacroBytes bounds the total size of all macro definitions.
const DefaultMacroBytes = 4096

// maxMacroDepth stops runaway macro recursion.
const maxMacroDepth = 8

var errMacroSpace = errors.New("debugger: macro definitions exhausted")

// macroTable stores literal command sequences under single characters.
// The body is kept verbatim and re-parsed per invocation, so a macro
// picks up alias changes made after its definition.
type macroDef struct {
	cmds [][]byte
	size int
}

type macroTable struct {
	limit int
	used  int
	defs  map[byte]macroDef
}

func newMacroTable(limit int) *macroTable {
	if limit <= 0 {
		limit = DefaultMacroBytes
	}
	return &macroTable{limit: limit, defs: make(map[byte]macroDef)}
}

// set defines c from a definition body `<sep><cmd>[<sep><cmd>...]`.
// Redefinition releases the old body's bytes first.
func (m *macroTable) set(c byte, body []byte) error {
	old, hadOld := m.defs[c]
	avail := m.limit - m.used
	if hadOld {
		avail += old.size
	}
	if len(body) > avail {
		return errMacroSpace
	}

	sep := body[0]
	var cmds [][]byte
	for _, part := range splitBytes(body[1:], sep) {
		if len(part) > 0 {
			cmds = append(cmds, append([]byte(nil), part...))
		}
	}

	if hadOld {
		m.used -= old.size
	}
	m.defs[c] = macroDef{cmds: cmds, size: len(body)}
	m.used += len(body)
	return nil
}

func (m *macroTable) get(c byte) (macroDef, bool) {
	d, ok := m.defs[c]
	return d, ok
}

func (m *macroTable) remove(c byte) {
	if old, ok := m.defs[c]; ok {
		m.used -= old.size
		delete(m.defs, c)
	}
}

func splitBytes(b []byte, sep byte) [][]byte {
	var parts [][]byte
	start := 0
	for i := 0; i < len(b); i++ {
		if b[i] == sep {
			parts = append(parts, b[start:i])
			start = i + 1
		}
	}
	return append(parts, b[start:])
}
