// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, littleEndian bool) *Store {
	t.Helper()
	s, err := NewBuilder("test", littleEndian).
		Int32("/x", 0x12345678).
		Uint16("/count", 7).
		Bool("/enable", true).
		Double("/ratio", 0.5).
		String("/name", 8, "dev").
		Blob("/raw", 4).
		Function("/now", TypeUint32, 0).
		Build()
	require.NoError(t, err)
	return s
}

func TestBuildDeterministicHash(t *testing.T) {
	a := testStore(t, true)
	b := testStore(t, true)
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 40)

	// The endianness flag is part of the identity.
	c := testStore(t, false)
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestGetWireOrderIndependentOfStoreOrder(t *testing.T) {
	for _, le := range []bool{true, false} {
		s := testStore(t, le)
		o, err := s.Lookup("/x")
		require.NoError(t, err)

		buf, err := s.Get(o)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, buf, "littleEndian=%v", le)
	}
}

func TestSetZeroExtends(t *testing.T) {
	s := testStore(t, true)
	o, err := s.Lookup("/x")
	require.NoError(t, err)

	// A write with leading zero nybbles omitted must still land right.
	require.NoError(t, s.Set(o, []byte{0xab}))
	v, err := s.GetInt64(o)
	require.NoError(t, err)
	assert.Equal(t, int64(0xab), v)
}

func TestLookupAbbreviationAndErrors(t *testing.T) {
	s := testStore(t, true)

	o, err := s.Lookup("/x")
	require.NoError(t, err)
	assert.Equal(t, "/x", o.Name)

	o, err = s.Lookup("/e")
	require.NoError(t, err)
	assert.Equal(t, "/enable", o.Name)

	_, err = s.Lookup("/n")
	assert.ErrorIs(t, err, ErrAmbiguous) // /name vs /now

	_, err = s.Lookup("/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTypedAccessors(t *testing.T) {
	s := testStore(t, true)

	ratio, err := s.Lookup("/ratio")
	require.NoError(t, err)
	require.NoError(t, s.SetFloat64(ratio, 2.25))
	f, err := s.GetFloat64(ratio)
	require.NoError(t, err)
	assert.Equal(t, 2.25, f)

	name, err := s.Lookup("/name")
	require.NoError(t, err)
	str, err := s.GetString(name)
	require.NoError(t, err)
	assert.Equal(t, "dev", str)

	count, err := s.Lookup("/count")
	require.NoError(t, err)
	require.NoError(t, s.SetInt64(count, 1<<20)) // saturates to uint16 max
	v, err := s.GetInt64(count)
	require.NoError(t, err)
	assert.Equal(t, int64(0xffff), v)

	require.NoError(t, s.SetInt64(count, -5))
	v, err = s.GetInt64(count)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestSignedRoundTrip(t *testing.T) {
	s, err := NewBuilder("signed", true).Int16("/v", 0).Build()
	require.NoError(t, err)

	o, err := s.Lookup("/v")
	require.NoError(t, err)
	require.NoError(t, s.SetInt64(o, -2))
	v, err := s.GetInt64(o)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), v)

	// Saturation at the signed boundary.
	require.NoError(t, s.SetInt64(o, 1<<30))
	v, err = s.GetInt64(o)
	require.NoError(t, err)
	assert.Equal(t, int64(0x7fff), v)
}

func TestFunctionObject(t *testing.T) {
	s := testStore(t, true)

	var written []byte
	err := s.RegisterFunction("/now",
		func(_ *Store, buf []byte) int {
			buf[0], buf[1], buf[2], buf[3] = 0xde, 0xad, 0xbe, 0xef
			return 4
		},
		func(_ *Store, buf []byte) {
			written = append([]byte(nil), buf...)
		})
	require.NoError(t, err)

	o, err := s.Lookup("/now")
	require.NoError(t, err)
	assert.True(t, o.IsFunction())

	buf, err := s.Get(o)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, buf)

	require.NoError(t, s.Set(o, []byte{0x01}))
	assert.Equal(t, []byte{0, 0, 0, 0x01}, written)
}

func TestWriteHookAndJournal(t *testing.T) {
	s := testStore(t, true)

	var hooked []string
	s.OnWrite(func(_ *Store, o Object) { hooked = append(hooked, o.Name) })

	o, err := s.Lookup("/x")
	require.NoError(t, err)

	before := s.Journal().Snapshot()
	require.NoError(t, s.SetInt64(o, 42))
	assert.Equal(t, []string{"/x"}, hooked)
	assert.True(t, s.Journal().HasChangesSince(before))

	var keys []uint32
	s.Journal().ChangesSince(before, func(key, _ uint32) { keys = append(keys, key) })
	assert.Equal(t, []uint32{o.Key()}, keys)
}

func TestReplaceBufferJournalsEverything(t *testing.T) {
	a := testStore(t, true)
	b := testStore(t, true)

	o, err := a.Lookup("/x")
	require.NoError(t, err)
	require.NoError(t, a.SetInt64(o, 99))

	before := b.Journal().Snapshot()
	require.NoError(t, b.ReplaceBuffer(a.CopyBuffer()))

	ob, err := b.Lookup("/x")
	require.NoError(t, err)
	v, err := b.GetInt64(ob)
	require.NoError(t, err)
	assert.Equal(t, int64(99), v)
	assert.True(t, b.Journal().HasChangesSince(before))
}

func TestRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	s := testStore(t, true)
	require.NoError(t, Register(s))
	assert.Same(t, s, Get("test"))
	assert.Same(t, s, ByHash(s.Hash()))
	assert.Error(t, Register(s))
	assert.Len(t, All(), 1)
}
