// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import "sync"

// Journal tracks, per object key, the sequence number of the last write
// to that object. A snapshot freezes the global counter; the delta toward
// a snapshot S is the set of objects written after S, which is exactly
// what the synchronizer ships in an Update.
//
// Sequence numbers are strictly increasing per write. Entries are kept
// sorted by key so that ChangesSince emits in ascending key order without
// sorting on the hot path.
type Journal struct {
	mu      sync.Mutex
	seqNow  uint64
	entries []journalEntry
}

type journalEntry struct {
	key  uint32
	size uint32
	seq  uint64
}

func newJournal() *Journal {
	return &Journal{}
}

// SeqNow returns the current global sequence counter.
func (j *Journal) SeqNow() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seqNow
}

// Snapshot freezes the current instant. Objects written after a snapshot
// have a higher sequence number than the returned value.
func (j *Journal) Snapshot() uint64 {
	return j.SeqNow()
}

// record stamps a write to key. Called by the store on every value
// change, local or applied from a peer.
func (j *Journal) record(key, size uint32) uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seqNow++
	lo, hi := 0, len(j.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if j.entries[mid].key < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(j.entries) && j.entries[lo].key == key {
		j.entries[lo].size = size
		j.entries[lo].seq = j.seqNow
		return j.seqNow
	}
	j.entries = append(j.entries, journalEntry{})
	copy(j.entries[lo+1:], j.entries[lo:])
	j.entries[lo] = journalEntry{key: key, size: size, seq: j.seqNow}
	return j.seqNow
}

// HasChangesSince reports whether any object was written after the given
// snapshot.
func (j *Journal) HasChangesSince(seq uint64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries {
		if e.seq > seq {
			return true
		}
	}
	return false
}

// ChangesSince invokes emit for every object written after the given
// snapshot, in ascending key order.
func (j *Journal) ChangesSince(seq uint64, emit func(key, size uint32)) {
	j.mu.Lock()
	changed := make([]journalEntry, 0, len(j.entries))
	for _, e := range j.entries {
		if e.seq > seq {
			changed = append(changed, e)
		}
	}
	j.mu.Unlock()

	for _, e := range changed {
		emit(e.key, e.size)
	}
}

// Clean drops entries whose last write is at or before keepSeq. Callers
// must make sure no peer still needs a delta against an older snapshot;
// the synchronizer passes the minimum snapshot across its connections.
func (j *Journal) Clean(keepSeq uint64) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.entries[:0]
	for _, e := range j.entries {
		if e.seq > keepSeq {
			kept = append(kept, e)
		}
	}
	dropped := len(j.entries) - len(kept)
	j.entries = kept
	return dropped
}

// Len returns the number of tracked objects.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
