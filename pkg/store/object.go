// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

// Object describes one named entry of a store. Variables live at a fixed
// offset in the store buffer; functions are synthetic and dispatch to the
// callbacks registered under their key.
type Object struct {
	Name   string
	Type   Type
	Offset uint32
	Size   uint32
}

// Key returns the object's numeric identifier within its store. For
// variables this is the buffer offset, which is what the synchronizer
// puts on the wire.
func (o Object) Key() uint32 { return o.Offset }

// IsFunction reports whether the object is callback-backed.
func (o Object) IsFunction() bool { return o.Type.IsFunction() }

// Valid reports whether the object refers to an actual store entry.
func (o Object) Valid() bool { return o.Type != TypeInvalid }

// ReadFunc produces the current value of a function object into buf and
// returns the number of bytes written. The store handle is passed in so
// that callbacks can reach sibling objects without a cyclic reference.
type ReadFunc func(s *Store, buf []byte) int

// WriteFunc consumes a value written to a function object.
type WriteFunc func(s *Store, buf []byte)
