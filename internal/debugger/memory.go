// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package debugger

import (
	"errors"
	"unsafe"
)

// ProcessMemory implements MemoryAccessor against this process's own
// address space. The R and W commands then behave like on a bare-metal
// target: the pointer is taken at face value.
//
// This is as dangerous as it sounds and therefore off by default; the
// daemon enables it only when the config says so, for lab setups where
// a tool inspects buffers it learned the address of via pointer-typed
// store objects.
type ProcessMemory struct{}

var errMemRange = errors.New("debugger: bad memory range")

func (ProcessMemory) ReadMemory(addr uint64, buf []byte) error {
	if addr == 0 {
		return errMemRange
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(buf))
	copy(buf, src)
	return nil
}

func (ProcessMemory) WriteMemory(addr uint64, data []byte) error {
	if addr == 0 {
		return errMemRange
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(data))
	copy(dst, data)
	return nil
}
