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

func TestJournalSequenceStrictlyIncreasing(t *testing.T) {
	j := newJournal()
	last := uint64(0)
	for i := 0; i < 100; i++ {
		seq := j.record(uint32(i%3), 4)
		require.Greater(t, seq, last)
		last = seq
	}
	assert.Equal(t, last, j.SeqNow())
}

func TestJournalChangesSinceKeyOrder(t *testing.T) {
	j := newJournal()
	for _, key := range []uint32{40, 8, 24, 0, 16} {
		j.record(key, 4)
	}

	var keys []uint32
	j.ChangesSince(0, func(key, _ uint32) { keys = append(keys, key) })
	assert.Equal(t, []uint32{0, 8, 16, 24, 40}, keys)
}

// TestJournalSnapshotDelta covers testable property 5: an object written
// after snapshot s0 shows up in ChangesSince(s0) exactly once, with a
// later overwrite folding into the same entry.
func TestJournalSnapshotDelta(t *testing.T) {
	j := newJournal()
	j.record(0, 4)
	s0 := j.Snapshot()

	j.record(8, 4)
	j.record(8, 4) // overwrite folds
	j.record(16, 2)

	count := map[uint32]int{}
	j.ChangesSince(s0, func(key, _ uint32) { count[key]++ })
	assert.Equal(t, map[uint32]int{8: 1, 16: 1}, count)

	// Nothing after the current instant.
	assert.False(t, j.HasChangesSince(j.Snapshot()))
}

func TestJournalClean(t *testing.T) {
	j := newJournal()
	j.record(0, 4)
	j.record(8, 4)
	mid := j.Snapshot()
	j.record(16, 4)

	dropped := j.Clean(mid)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 1, j.Len())

	var keys []uint32
	j.ChangesSince(0, func(key, _ uint32) { keys = append(keys, key) })
	assert.Equal(t, []uint32{16}, keys)
}
