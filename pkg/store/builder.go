// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/ClusterCockpit/cc-devstore/pkg/directory"
)

// Builder assembles a store definition. The usual producer is generated
// code; tests and the built-in demo store use it directly.
//
//	b := store.NewBuilder("app", true)
//	b.Int32("/control/setpoint", 0)
//	b.Float("/sensor/temperature", 21.5)
//	st, err := b.Build()
//
// Object order, buffer offsets and the content hash are deterministic
// functions of the definition, so two processes building the same
// definition end up with byte-compatible stores.
type Builder struct {
	name         string
	littleEndian bool
	objs         []buildObj
	err          error
}

type buildObj struct {
	name string
	typ  Type
	size uint32
	init []byte // wire (big-endian) order, may be nil
}

// NewBuilder starts a store definition. littleEndian selects the buffer
// and sync wire byte order.
func NewBuilder(name string, littleEndian bool) *Builder {
	return &Builder{name: name, littleEndian: littleEndian}
}

func (b *Builder) add(name string, typ Type, size uint32, init []byte) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" || name[0] != '/' {
		b.err = fmt.Errorf("store: object name %q must start with '/'", name)
		return b
	}
	for _, o := range b.objs {
		if o.name == name {
			b.err = fmt.Errorf("store: duplicate object %q", name)
			return b
		}
	}
	b.objs = append(b.objs, buildObj{name: name, typ: typ, size: size, init: init})
	return b
}

func (b *Builder) fixed(name string, typ Type, v uint64) *Builder {
	size := uint32(typ.Size())
	init := make([]byte, size)
	for i := int(size) - 1; i >= 0; i-- {
		init[i] = byte(v)
		v >>= 8
	}
	return b.add(name, typ, size, init)
}

func (b *Builder) Int8(name string, v int8) *Builder   { return b.fixed(name, TypeInt8, uint64(uint8(v))) }
func (b *Builder) Uint8(name string, v uint8) *Builder { return b.fixed(name, TypeUint8, uint64(v)) }
func (b *Builder) Int16(name string, v int16) *Builder {
	return b.fixed(name, TypeInt16, uint64(uint16(v)))
}
func (b *Builder) Uint16(name string, v uint16) *Builder { return b.fixed(name, TypeUint16, uint64(v)) }
func (b *Builder) Int32(name string, v int32) *Builder {
	return b.fixed(name, TypeInt32, uint64(uint32(v)))
}
func (b *Builder) Uint32(name string, v uint32) *Builder { return b.fixed(name, TypeUint32, uint64(v)) }
func (b *Builder) Int64(name string, v int64) *Builder {
	return b.fixed(name, TypeInt64, uint64(v))
}
func (b *Builder) Uint64(name string, v uint64) *Builder { return b.fixed(name, TypeUint64, v) }

func (b *Builder) Float(name string, v float64) *Builder {
	return b.fixed(name, TypeFloat, encodeFloat(TypeFloat, v))
}

func (b *Builder) Double(name string, v float64) *Builder {
	return b.fixed(name, TypeDouble, encodeFloat(TypeDouble, v))
}

func (b *Builder) Bool(name string, v bool) *Builder {
	raw := uint64(0)
	if v {
		raw = 1
	}
	return b.fixed(name, TypeBool, raw)
}

// String reserves size bytes and initializes them with v, zero-padded.
func (b *Builder) String(name string, size uint32, v string) *Builder {
	if uint32(len(v)) > size {
		b.err = fmt.Errorf("store: initializer for %q exceeds size %d", name, size)
		return b
	}
	init := make([]byte, size)
	copy(init, v)
	return b.add(name, TypeString, size, init)
}

// Blob reserves size raw bytes, initialized to zero.
func (b *Builder) Blob(name string, size uint32) *Builder {
	return b.add(name, TypeBlob, size, nil)
}

// Function declares a callback-backed object of the given value type.
// valueType must not carry the function flag; it is added here.
func (b *Builder) Function(name string, valueType Type, size uint32) *Builder {
	if valueType.IsFixed() {
		size = uint32(valueType.Size())
	}
	return b.add(name, valueType|FlagFunction, size, nil)
}

// Build freezes the definition into a Store.
//
// Variables are laid out in name order with natural alignment; function
// objects get keys past the end of the buffer so that variable offsets
// and function keys never collide. The content hash is a SHA-1 over the
// canonicalized definition, printed as 40 lowercase hex characters.
func (b *Builder) Build() (*Store, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.objs) == 0 {
		return nil, fmt.Errorf("store: %q has no objects", b.name)
	}

	objs := make([]buildObj, len(b.objs))
	copy(objs, b.objs)
	sort.Slice(objs, func(i, j int) bool { return objs[i].name < objs[j].name })

	// Offsets for variables, with natural alignment up to 8 bytes.
	var bufSize uint32
	offsets := make([]uint32, len(objs))
	for i, o := range objs {
		if o.typ.IsFunction() {
			continue
		}
		align := o.size
		if !o.typ.IsFixed() || align > 8 {
			align = 1
		}
		if align > 1 && bufSize%align != 0 {
			bufSize += align - bufSize%align
		}
		offsets[i] = bufSize
		bufSize += o.size
	}

	// Function keys start past the buffer.
	fnKey := bufSize
	names := make([]string, len(objs))
	objects := make([]Object, len(objs))
	for i, o := range objs {
		off := offsets[i]
		if o.typ.IsFunction() {
			off = fnKey
			fnKey++
		}
		names[i] = o.name
		objects[i] = Object{Name: o.name, Type: o.typ, Offset: off, Size: o.size}
	}

	dir, err := directory.Build(names)
	if err != nil {
		return nil, err
	}

	h := sha1.New()
	endian := "BE"
	if b.littleEndian {
		endian = "LE"
	}
	fmt.Fprintf(h, "%s\n", endian)
	for i, o := range objects {
		fmt.Fprintf(h, "%s %02x %d %d\n", o.Name, uint8(o.Type), o.Size, objects[i].Offset)
	}

	s := &Store{
		name:         b.name,
		hash:         hex.EncodeToString(h.Sum(nil)),
		littleEndian: b.littleEndian,
		buf:          make([]byte, bufSize),
		objects:      objects,
		dir:          dir,
		journal:      newJournal(),
		funcs:        make(map[uint32]funcEntry),
	}

	// Apply initializers without touching the journal: a fresh store has
	// no changes to synchronize.
	for _, o := range objs {
		if o.typ.IsFunction() || o.init == nil {
			continue
		}
		obj, err := s.Lookup(o.name)
		if err != nil {
			return nil, err
		}
		dst := s.buf[obj.Offset : obj.Offset+obj.Size]
		copy(dst, o.init)
		if s.littleEndian && o.typ.IsFixed() {
			reverse(dst)
		}
	}

	return s, nil
}
