// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store implements the typed object stores that the debugger and
// the synchronizer operate on.
//
// A store is a fixed collection of named objects over one contiguous byte
// buffer. The set of objects, their types and their buffer offsets are
// frozen at build time (see Builder); afterwards only values change. Each
// store carries a deterministic 160-bit content hash over its definition,
// which identifies compatible instances across processes and devices.
//
// Values are kept in the store's configured endianness. The debugger wire
// format is big-endian regardless, so accessors exist for both views:
// Get/Set translate to wire order, BytesAt/ApplySync move raw buffer
// bytes for the synchronizer.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ClusterCockpit/cc-devstore/pkg/directory"
)

var (
	// ErrNotFound indicates that no object matches the name.
	ErrNotFound = errors.New("store: no such object")

	// ErrAmbiguous indicates that an abbreviated name matches more than
	// one object.
	ErrAmbiguous = errors.New("store: ambiguous name")

	// ErrReadOnly indicates a write to an object that cannot be written.
	ErrReadOnly = errors.New("store: object is not writable")

	// ErrSize indicates a value of unusable length.
	ErrSize = errors.New("store: value size mismatch")
)

// WriteHook is invoked after an object's value changed, with the store
// lock released. Hooks must not block; they run on the writer's
// goroutine.
type WriteHook func(s *Store, o Object)

type funcEntry struct {
	read  ReadFunc
	write WriteFunc
}

// Store is a fixed, typed collection of named objects.
type Store struct {
	mu sync.RWMutex

	name         string
	hash         string
	littleEndian bool

	buf     []byte
	objects []Object // index-aligned with the directory
	dir     *directory.Directory
	journal *Journal

	funcs map[uint32]funcEntry
	hooks []WriteHook
}

// Name returns the store's name.
func (s *Store) Name() string { return s.name }

// Hash returns the store's content hash as 40 lowercase hex characters.
func (s *Store) Hash() string { return s.hash }

// LittleEndian reports the store's wire endianness flag.
func (s *Store) LittleEndian() bool { return s.littleEndian }

// BufferSize returns the size of the store's value buffer in bytes.
func (s *Store) BufferSize() int { return len(s.buf) }

// Journal returns the store's change journal.
func (s *Store) Journal() *Journal { return s.journal }

// Directory returns the store's compiled name trie.
func (s *Store) Directory() *directory.Directory { return s.dir }

// Objects returns the store's objects in name order. The slice is shared;
// callers must not modify it.
func (s *Store) Objects() []Object { return s.objects }

// OnWrite registers a hook that fires after every value change, local or
// applied from a sync update.
func (s *Store) OnWrite(h WriteHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// Lookup resolves a possibly-abbreviated object name.
func (s *Store) Lookup(name string) (Object, error) {
	idx, err := s.dir.Lookup(name)
	switch {
	case errors.Is(err, directory.ErrAmbiguous):
		return Object{Type: TypeInvalid}, ErrAmbiguous
	case err != nil:
		return Object{Type: TypeInvalid}, ErrNotFound
	}
	return s.objects[idx], nil
}

// List enumerates all objects with the given name prefix in lexicographic
// order.
func (s *Store) List(prefix string, emit func(Object)) {
	s.dir.List(prefix, func(index int, _ string) {
		emit(s.objects[index])
	})
}

// RegisterFunction installs the callbacks of a function object. At least
// a read callback is required; a nil write callback makes the object
// read-only.
func (s *Store) RegisterFunction(name string, read ReadFunc, write WriteFunc) error {
	o, err := s.Lookup(name)
	if err != nil {
		return err
	}
	if !o.IsFunction() {
		return fmt.Errorf("store: %s is not a function object", o.Name)
	}
	if read == nil {
		return errors.New("store: function object needs a read callback")
	}
	s.mu.Lock()
	s.funcs[o.Key()] = funcEntry{read: read, write: write}
	s.mu.Unlock()
	return nil
}

// Get returns the object's value in wire (big-endian) byte order. For
// function objects the read callback is dispatched; an unregistered
// function reads as all zero.
func (s *Store) Get(o Object) ([]byte, error) {
	if o.IsFunction() {
		s.mu.RLock()
		f, ok := s.funcs[o.Key()]
		s.mu.RUnlock()
		buf := make([]byte, o.Size)
		if ok {
			// Callbacks run without the store lock so that they can
			// access sibling objects through the passed handle.
			n := f.read(s, buf)
			if n >= 0 && n < len(buf) {
				buf = buf[:n]
			}
		}
		return buf, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := make([]byte, o.Size)
	copy(buf, s.buf[o.Offset:o.Offset+o.Size])
	if s.littleEndian && o.Type.IsFixed() {
		reverse(buf)
	}
	return buf, nil
}

// Set writes the object's value. data is in wire (big-endian) byte order;
// for fixed-width objects shorter data is zero-extended at the high end,
// so leading zero nybbles may be omitted by the debugger. Strings shorter
// than the object are zero-padded, mirroring a C char array.
func (s *Store) Set(o Object, data []byte) error {
	if len(data) > int(o.Size) {
		return ErrSize
	}

	if o.IsFunction() {
		s.mu.RLock()
		f, ok := s.funcs[o.Key()]
		s.mu.RUnlock()
		if !ok || f.write == nil {
			return ErrReadOnly
		}
		buf := make([]byte, o.Size)
		copy(buf[int(o.Size)-len(data):], data)
		f.write(s, buf)
		s.changed(o)
		return nil
	}

	s.mu.Lock()
	dst := s.buf[o.Offset : o.Offset+o.Size]
	if o.Type.IsFixed() {
		if len(data) < len(dst) {
			// Zero-extend towards the most significant end.
			for i := range dst {
				dst[i] = 0
			}
			copy(dst[len(dst)-len(data):], data)
		} else {
			copy(dst, data)
		}
		if s.littleEndian {
			reverse(dst)
		}
	} else {
		copy(dst, data)
		for i := len(data); i < len(dst); i++ {
			dst[i] = 0
		}
	}
	s.mu.Unlock()

	s.changed(o)
	return nil
}

// BytesAt copies size raw buffer bytes starting at key into dst. Used by
// the synchronizer, which ships values in store byte order.
func (s *Store) BytesAt(key, size uint32, dst []byte) error {
	if int(key)+int(size) > len(s.buf) {
		return ErrSize
	}
	s.mu.RLock()
	copy(dst, s.buf[key:key+size])
	s.mu.RUnlock()
	return nil
}

// CopyBuffer returns a snapshot of the whole value buffer, for the
// synchronizer's Welcome message.
func (s *Store) CopyBuffer() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := make([]byte, len(s.buf))
	copy(buf, s.buf)
	return buf
}

// ReplaceBuffer overwrites the whole value buffer, as done when a Welcome
// with the peer's full state arrives. The journal is stamped for every
// object so that chained peers see the change.
func (s *Store) ReplaceBuffer(data []byte) error {
	if len(data) != len(s.buf) {
		return ErrSize
	}
	s.mu.Lock()
	copy(s.buf, data)
	s.mu.Unlock()
	for _, o := range s.objects {
		if !o.IsFunction() {
			s.changed(o)
		}
	}
	return nil
}

// ApplySync writes raw buffer bytes received in a sync update. The write
// is journaled like a local one, which keeps daisy-chained peers
// converging, and hooks fire as usual.
func (s *Store) ApplySync(key uint32, data []byte) error {
	if int(key)+len(data) > len(s.buf) {
		return ErrSize
	}
	s.mu.Lock()
	copy(s.buf[key:], data)
	s.mu.Unlock()

	if o, ok := s.objectAt(key); ok {
		s.changed(o)
	}
	return nil
}

// objectAt finds the variable starting at the given buffer offset.
func (s *Store) objectAt(key uint32) (Object, bool) {
	for _, o := range s.objects {
		if !o.IsFunction() && o.Offset == key {
			return o, true
		}
	}
	return Object{Type: TypeInvalid}, false
}

// changed stamps the journal and runs the write hooks.
func (s *Store) changed(o Object) {
	if !o.IsFunction() {
		s.journal.record(o.Key(), o.Size)
	}
	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()
	for _, h := range hooks {
		h(s, o)
	}
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
