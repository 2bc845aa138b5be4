// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package debugger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewBuilder("app", true).
		Int32("/x", 0x12345678).
		Int32("/y", 0x0000abcd).
		Uint8("/bar", 1).
		Uint8("/baz", 2).
		String("/id", 16, "node-a").
		Build()
	require.NoError(t, err)
	return s
}

func newDebugger(t *testing.T, opts ...Option) *Debugger {
	t.Helper()
	return New([]*store.Store{testStore(t)}, opts...)
}

func run(d *Debugger, req string) string {
	return string(d.Process([]byte(req)))
}

// Scenario S1: echo.
func TestEcho(t *testing.T) {
	d := newDebugger(t)
	assert.Equal(t, "Hello", run(d, "eHello"))
}

// Scenario S2: scalar read is big-endian lowercase hex.
func TestReadScalar(t *testing.T) {
	d := newDebugger(t)
	assert.Equal(t, "12345678", run(d, "r/x"))

	// Leading zero nybbles are omitted.
	assert.Equal(t, "abcd", run(d, "r/y"))
}

// Scenario S3: ambiguous abbreviation nacks.
func TestReadAmbiguous(t *testing.T) {
	d := newDebugger(t)
	assert.Equal(t, "?", run(d, "r/b"))
	assert.Equal(t, "1", run(d, "r/bar"))
}

func TestWriteThenRead(t *testing.T) {
	d := newDebugger(t)
	assert.Equal(t, "!", run(d, "wcafe/y"))
	assert.Equal(t, "cafe", run(d, "r/y"))

	// Odd nybble count carries an implied leading zero.
	assert.Equal(t, "!", run(d, "wf/y"))
	assert.Equal(t, "f", run(d, "r/y"))

	// Value larger than the object nacks.
	assert.Equal(t, "?", run(d, "w112233445566/y"))

	// Missing name nacks.
	assert.Equal(t, "?", run(d, "w12"))
}

// Scenario S4: alias lifecycle.
func TestAliasLifecycle(t *testing.T) {
	d := newDebugger(t)
	assert.Equal(t, "!", run(d, "a0/x"))
	assert.Equal(t, "12345678", run(d, "r0"))
	assert.Equal(t, "!", run(d, "a0"))
	assert.Equal(t, "?", run(d, "r0"))
}

func TestAliasEvictsLeastRecentlyUsed(t *testing.T) {
	d := newDebugger(t, WithAliasLimit(2))
	require.Equal(t, "!", run(d, "aA/x"))
	require.Equal(t, "!", run(d, "aB/y"))
	require.Equal(t, "12345678", run(d, "rA")) // refresh A
	require.Equal(t, "!", run(d, "aC/bar"))    // evicts B

	assert.Equal(t, "12345678", run(d, "rA"))
	assert.Equal(t, "?", run(d, "rB"))
	assert.Equal(t, "1", run(d, "rC"))
}

// Scenario S5: macro bodies re-execute and responses concatenate
// without separators.
func TestMacro(t *testing.T) {
	d := newDebugger(t)
	require.Equal(t, "!", run(d, "mZ;r/x;e-;r/y"))
	assert.Equal(t, "12345678-abcd", run(d, "Z"))

	// The separator is whatever follows the macro char; here a space,
	// leaving two commands whose results concatenate directly.
	require.Equal(t, "!", run(d, "mY r/x r/y"))
	assert.Equal(t, "12345678abcd", run(d, "Y"))

	// Redefinition replaces, deletion removes.
	require.Equal(t, "!", run(d, "mZ e-"))
	assert.Equal(t, "-", run(d, "Z"))
	require.Equal(t, "!", run(d, "mZ"))
	assert.Equal(t, "?", run(d, "Z"))
}

func TestMacroCannotShadowBuiltin(t *testing.T) {
	d := newDebugger(t)
	assert.Equal(t, "!", run(d, "mr e-oops"))
	// `r` still reads.
	assert.Equal(t, "12345678", run(d, "r/x"))
}

func TestMacroBudget(t *testing.T) {
	d := newDebugger(t, WithMacroBytes(8))
	assert.Equal(t, "?", run(d, "mQ e0123456789"))
	assert.Equal(t, "!", run(d, "mQ e01"))
}

func TestListFormat(t *testing.T) {
	d := newDebugger(t)
	out := run(d, "l")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 5)
	// Objects list in name order; /x is an int32 (tag 0x3b, size 4).
	assert.Equal(t, fmt.Sprintf("%02x4 /x", uint8(store.TypeInt32)), lines[3])
	assert.Contains(t, out, " /id\n")
}

func TestCapabilitiesAndVersion(t *testing.T) {
	d := newDebugger(t, WithVersionTokens("app=demo"))
	caps := run(d, "?")
	for _, c := range "?erwlamivs" {
		assert.Contains(t, caps, string(c))
	}
	assert.NotContains(t, caps, "R") // memory access disabled

	assert.Equal(t, "2 app=demo", run(d, "v"))
}

func TestIdentification(t *testing.T) {
	d := newDebugger(t, WithIdentification("cc-devstore"))
	assert.Equal(t, "cc-devstore", run(d, "i"))

	bare := newDebugger(t)
	assert.Equal(t, "?", run(bare, "i"))
}

func TestStreams(t *testing.T) {
	d := newDebugger(t)

	// No streams yet: listing is empty, draining an absent one nacks.
	assert.Equal(t, "", run(d, "s"))
	assert.Equal(t, "?", run(d, "st"))

	require.NoError(t, d.StreamWrite('t', []byte("trace ")))
	require.NoError(t, d.StreamWrite('t', []byte("data")))
	assert.Equal(t, "t", run(d, "s"))

	// Draining empties the buffer; the optional suffix is appended.
	assert.Equal(t, "trace data>", run(d, "st>"))
	assert.Equal(t, ">", run(d, "st>"))
}

func TestStreamOverflowMarks(t *testing.T) {
	d := newDebugger(t, WithStreamLimits(2, 4))
	require.NoError(t, d.StreamWrite('x', []byte("abcdef")))
	assert.Equal(t, "abcd~", run(d, "sx"))
}

func TestMalformedRequests(t *testing.T) {
	d := newDebugger(t)
	for _, req := range []string{"", "r", "rzz", "w", "wzz/x", "a/", "m/", "R0 4", "Wdead beef"} {
		assert.Equal(t, "?", run(d, req), "request %q", req)
	}
}

func TestUnknownCommand(t *testing.T) {
	d := newDebugger(t)
	assert.Equal(t, "?", run(d, "q"))
}
