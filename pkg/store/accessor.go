// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"fmt"

	"github.com/ClusterCockpit/cc-devstore/internal/util"
)

// The typed accessors below are conveniences over Get/Set for code that
// works with interpreted values rather than wire bytes: the management
// API, the change monitor, and computed-object expressions. Integer
// writes saturate instead of wrapping.

// GetInt64 reads a fixed-width object as a signed integer.
func (s *Store) GetInt64(o Object) (int64, error) {
	raw, err := s.rawUint(o)
	if err != nil {
		return 0, err
	}
	if !o.Type.IsSigned() {
		return int64(raw), nil
	}
	// Sign-extend from the object's width.
	shift := uint(64 - o.Size*8)
	return int64(raw<<shift) >> shift, nil
}

// GetFloat64 reads any numeric object as a float.
func (s *Store) GetFloat64(o Object) (float64, error) {
	t := o.Type.WithoutFunction()
	if t == TypeFloat || t == TypeDouble {
		raw, err := s.rawUint(o)
		if err != nil {
			return 0, err
		}
		return decodeFloat(t, raw), nil
	}
	v, err := s.GetInt64(o)
	if err != nil {
		return 0, err
	}
	if !o.Type.IsSigned() {
		return float64(uint64(v)), nil
	}
	return float64(v), nil
}

// GetBool reads an object as a truth value: any non-zero byte is true.
func (s *Store) GetBool(o Object) (bool, error) {
	buf, err := s.Get(o)
	if err != nil {
		return false, err
	}
	for _, b := range buf {
		if b != 0 {
			return true, nil
		}
	}
	return false, nil
}

// GetString reads a string or blob object, trimming trailing NUL padding
// for strings.
func (s *Store) GetString(o Object) (string, error) {
	buf, err := s.Get(o)
	if err != nil {
		return "", err
	}
	if o.Type.WithoutFunction() == TypeString {
		buf = util.TrimTrailingZeros(buf)
	}
	return string(buf), nil
}

// SetInt64 writes a fixed-width object, saturating to the object's range.
func (s *Store) SetInt64(o Object, v int64) error {
	size := int(o.Size)
	if size == 0 || size > 8 {
		return ErrSize
	}
	var raw uint64
	if o.Type.IsSigned() {
		raw = uint64(util.SaturateInt64(v, size))
	} else {
		if v < 0 {
			v = 0
		}
		raw = util.SaturateUint64(uint64(v), size)
	}
	return s.setRaw(o, raw)
}

// SetFloat64 writes a numeric object from a float, converting with
// saturation for integer targets.
func (s *Store) SetFloat64(o Object, v float64) error {
	t := o.Type.WithoutFunction()
	if t == TypeFloat || t == TypeDouble {
		return s.setRaw(o, encodeFloat(t, v))
	}
	if o.Type.IsSigned() {
		return s.SetInt64(o, util.SaturateFloatToInt64(v))
	}
	raw := util.SaturateUint64(util.SaturateFloatToUint64(v), int(o.Size))
	return s.setRaw(o, raw)
}

// SetBool writes a truth value.
func (s *Store) SetBool(o Object, v bool) error {
	raw := uint64(0)
	if v {
		raw = 1
	}
	return s.setRaw(o, raw)
}

// SetString writes a string or blob object.
func (s *Store) SetString(o Object, v string) error {
	if len(v) > int(o.Size) {
		return ErrSize
	}
	return s.Set(o, []byte(v))
}

// Value reads an object into its natural Go representation, for JSON
// serialization in the management API.
func (s *Store) Value(o Object) (any, error) {
	switch t := o.Type.WithoutFunction(); {
	case t == TypeBool:
		return s.GetBool(o)
	case t == TypeFloat || t == TypeDouble:
		return s.GetFloat64(o)
	case t == TypeString:
		return s.GetString(o)
	case t == TypeBlob || t == TypeVoid:
		return s.Get(o)
	case t.IsInt() && !t.IsSigned():
		raw, err := s.rawUint(o)
		return raw, err
	case t.IsFixed():
		return s.GetInt64(o)
	}
	return nil, fmt.Errorf("store: unreadable type %#02x", uint8(o.Type))
}

func (s *Store) rawUint(o Object) (uint64, error) {
	if !o.Type.IsFixed() || o.Size > 8 {
		return 0, ErrSize
	}
	buf, err := s.Get(o)
	if err != nil {
		return 0, err
	}
	var wide [8]byte
	copy(wide[8-len(buf):], buf)
	return binary.BigEndian.Uint64(wide[:]), nil
}

func (s *Store) setRaw(o Object, raw uint64) error {
	if !o.Type.IsFixed() || o.Size > 8 {
		return ErrSize
	}
	var wide [8]byte
	binary.BigEndian.PutUint64(wide[:], raw)
	return s.Set(o, wide[8-o.Size:])
}
