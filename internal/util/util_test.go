// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaturateInt64(t *testing.T) {
	assert.Equal(t, int64(127), SaturateInt64(1000, 1))
	assert.Equal(t, int64(-128), SaturateInt64(-1000, 1))
	assert.Equal(t, int64(42), SaturateInt64(42, 1))
	assert.Equal(t, int64(0x7fff), SaturateInt64(1<<20, 2))
	assert.Equal(t, int64(math.MaxInt64), SaturateInt64(math.MaxInt64, 8))
}

func TestSaturateUint64(t *testing.T) {
	assert.Equal(t, uint64(255), SaturateUint64(1000, 1))
	assert.Equal(t, uint64(7), SaturateUint64(7, 1))
	assert.Equal(t, uint64(0xffffffff), SaturateUint64(1<<40, 4))
}

func TestSaturateFloatToInt64(t *testing.T) {
	assert.Equal(t, int64(0), SaturateFloatToInt64(math.NaN()))
	assert.Equal(t, int64(math.MaxInt64), SaturateFloatToInt64(math.Inf(1)))
	assert.Equal(t, int64(math.MinInt64), SaturateFloatToInt64(math.Inf(-1)))
	assert.Equal(t, int64(-3), SaturateFloatToInt64(-3.7))
}

func TestSaturateFloatToUint64(t *testing.T) {
	assert.Equal(t, uint64(0), SaturateFloatToUint64(-1))
	assert.Equal(t, uint64(0), SaturateFloatToUint64(math.NaN()))
	assert.Equal(t, uint64(math.MaxUint64), SaturateFloatToUint64(math.Inf(1)))
	assert.Equal(t, uint64(9), SaturateFloatToUint64(9.2))
}

func TestSwap(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Swap(b)
	assert.Equal(t, []byte{4, 3, 2, 1}, b)

	odd := []byte{1, 2, 3}
	Swap(odd)
	assert.Equal(t, []byte{3, 2, 1}, odd)
}

func TestCommonPrefixLen(t *testing.T) {
	assert.Equal(t, 3, CommonPrefixLen("/ab", "/abc"))
	assert.Equal(t, 0, CommonPrefixLen("x", "y"))
	assert.Equal(t, 2, CommonPrefixLen("/a", "/a"))
}

func TestTrimTrailingZeros(t *testing.T) {
	assert.Equal(t, []byte("abc"), TrimTrailingZeros([]byte{'a', 'b', 'c', 0, 0}))
	assert.Empty(t, TrimTrailingZeros([]byte{0, 0}))
}

func TestScratch(t *testing.T) {
	s := NewScratch(8)

	a := s.Alloc(4)
	b := s.Alloc(4)
	assert.Len(t, a, 4)
	assert.Len(t, b, 4)

	// Growth past the initial capacity keeps earlier content.
	a[0] = 0xaa
	c := s.Alloc(32)
	assert.Len(t, c, 32)
	assert.Equal(t, byte(0xaa), a[0])

	s.Reset()
	d := s.Alloc(4)
	for _, v := range d {
		assert.Zero(t, v)
	}
}
