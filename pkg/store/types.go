// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"math"
)

// Type is the one-byte type tag of a store object.
//
// The tag is self-describing: readers can derive size class, signedness and
// function-ness from the byte alone, without consulting the directory. The
// low three bits encode the size of fixed-width types as size-1, so the
// whole fixed range {1,2,3,4,8} fits the mask.
//
//	bit 6: function (value produced/consumed by callbacks)
//	bit 5: fixed width (size known from the tag)
//	bit 4: integer
//	bit 3: signed
//	bits 0-2: size-1 for fixed types
type Type uint8

const (
	MaskSize  Type = 0x07
	MaskFlags Type = 0x78

	FlagSigned   Type = 0x08
	FlagInt      Type = 0x10
	FlagFixed    Type = 0x20
	FlagFunction Type = 0x40
)

const (
	TypeInt8   Type = FlagFixed | FlagInt | FlagSigned | 0
	TypeUint8  Type = FlagFixed | FlagInt | 0
	TypeInt16  Type = FlagFixed | FlagInt | FlagSigned | 1
	TypeUint16 Type = FlagFixed | FlagInt | 1
	TypeInt32  Type = FlagFixed | FlagInt | FlagSigned | 3
	TypeUint32 Type = FlagFixed | FlagInt | 3
	TypeInt64  Type = FlagFixed | FlagInt | FlagSigned | 7
	TypeUint64 Type = FlagFixed | FlagInt | 7

	TypeFloat  Type = FlagFixed | FlagSigned | 3
	TypeDouble Type = FlagFixed | FlagSigned | 7

	TypeBool      Type = FlagFixed | 0
	TypePointer32 Type = FlagFixed | 3
	TypePointer64 Type = FlagFixed | 7

	TypeVoid    Type = 0
	TypeBlob    Type = 1
	TypeString  Type = 2
	TypeInvalid Type = 0xff
)

// IsFixed reports whether the size of t is encoded in the tag itself.
func (t Type) IsFixed() bool { return t&FlagFixed != 0 }

// IsInt reports whether t is an integer type.
func (t Type) IsInt() bool { return t.IsFixed() && t&FlagInt != 0 }

// IsSigned reports whether t is a signed integer or a floating point type.
func (t Type) IsSigned() bool { return t.IsFixed() && t&FlagSigned != 0 }

// IsFunction reports whether t carries the function flag.
func (t Type) IsFunction() bool { return t&FlagFunction != 0 }

// WithoutFunction strips the function flag, leaving the value type.
func (t Type) WithoutFunction() Type { return t &^ FlagFunction }

// Size returns the value size in bytes for fixed-width types, or 0 when the
// size must come from the object (blob, string, void).
func (t Type) Size() int {
	if !t.IsFixed() {
		return 0
	}
	return int(t&MaskSize) + 1
}

// String returns the canonical spelling used by the store DSL and the
// debugger list output.
func (t Type) String() string {
	switch t.WithoutFunction() {
	case TypeInt8:
		return "int8"
	case TypeUint8:
		return "uint8"
	case TypeInt16:
		return "int16"
	case TypeUint16:
		return "uint16"
	case TypeInt32:
		return "int32"
	case TypeUint32:
		return "uint32"
	case TypeInt64:
		return "int64"
	case TypeUint64:
		return "uint64"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeBool:
		return "bool"
	case TypePointer32:
		return "ptr32"
	case TypePointer64:
		return "ptr64"
	case TypeVoid:
		return "void"
	case TypeBlob:
		return "blob"
	case TypeString:
		return "string"
	}
	return "invalid"
}

// byteOrder returns the binary.ByteOrder matching the store's endianness
// flag. Wire formats that are defined in terms of the store flag (the
// synchronizer) use this; the debugger always talks big-endian.
func byteOrder(littleEndian bool) binary.ByteOrder {
	if littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// decodeFloat reinterprets raw as float64 according to t (float or double).
func decodeFloat(t Type, raw uint64) float64 {
	if t.Size() == 4 {
		return float64(math.Float32frombits(uint32(raw)))
	}
	return math.Float64frombits(raw)
}

// encodeFloat produces the raw bit pattern for v according to t.
func encodeFloat(t Type, v float64) uint64 {
	if t.Size() == 4 {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}
