// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package synchronizer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

// Wire format. One command byte, then fields in the store's endianness.
// The command byte's case mirrors that endianness - lowercase little,
// uppercase big - so a receiver detects a mismatched peer before parsing
// any multi-byte field:
//
//	h|H <40 hash chars> <id:u16>
//	w|W <helloID:u16> <welcomeID:u16> <buffer>
//	u|U <id:u16> { <key> <len> <data> }*
//	b|B [ <40 hash chars> | <id:u16> ]
//
// Update keys and lengths are fixed-width: the smallest whole number of
// bytes that can express the store's buffer size.
const (
	cmdHello   = 'h'
	cmdWelcome = 'w'
	cmdUpdate  = 'u'
	cmdBye     = 'b'
)

const hashLen = 40

var errShortMessage = errors.New("synchronizer: short message")

// keyWidth returns the byte width of update keys and lengths for a
// buffer of the given size.
func keyWidth(bufSize int) int {
	switch {
	case bufSize <= 0xff:
		return 1
	case bufSize <= 0xffff:
		return 2
	case bufSize <= 0xffffff:
		return 3
	}
	return 4
}

// cmdByte returns the command byte with the case encoding the store's
// endianness.
func cmdByte(cmd byte, st *store.Store) byte {
	if st.LittleEndian() {
		return cmd
	}
	return cmd - 'a' + 'A'
}

// splitCmd lowers an inbound command byte and reports whether it
// announced little-endian fields.
func splitCmd(b byte) (cmd byte, littleEndian bool) {
	if b >= 'a' && b <= 'z' {
		return b, true
	}
	return b - 'A' + 'a', false
}

func putUint16(dst []byte, v uint16, littleEndian bool) {
	if littleEndian {
		binary.LittleEndian.PutUint16(dst, v)
	} else {
		binary.BigEndian.PutUint16(dst, v)
	}
}

func getUint16(src []byte, littleEndian bool) uint16 {
	if littleEndian {
		return binary.LittleEndian.Uint16(src)
	}
	return binary.BigEndian.Uint16(src)
}

func putUintN(dst []byte, v uint32, width int, littleEndian bool) {
	for i := 0; i < width; i++ {
		if littleEndian {
			dst[i] = byte(v >> (8 * i))
		} else {
			dst[width-1-i] = byte(v >> (8 * i))
		}
	}
}

func getUintN(src []byte, width int, littleEndian bool) uint32 {
	var v uint32
	for i := 0; i < width; i++ {
		if littleEndian {
			v |= uint32(src[i]) << (8 * i)
		} else {
			v = v<<8 | uint32(src[i])
		}
	}
	return v
}

func encodeHello(st *store.Store, id uint16) []byte {
	msg := make([]byte, 1+hashLen+2)
	msg[0] = cmdByte(cmdHello, st)
	copy(msg[1:], st.Hash())
	putUint16(msg[1+hashLen:], id, st.LittleEndian())
	return msg
}

func encodeWelcome(st *store.Store, helloID, welcomeID uint16) []byte {
	buf := st.CopyBuffer()
	msg := make([]byte, 1+4+len(buf))
	msg[0] = cmdByte(cmdWelcome, st)
	putUint16(msg[1:], helloID, st.LittleEndian())
	putUint16(msg[3:], welcomeID, st.LittleEndian())
	copy(msg[5:], buf)
	return msg
}

// encodeUpdate serializes the changes since the given snapshot, in
// ascending key order. It returns nil when nothing changed.
func encodeUpdate(st *store.Store, id uint16, sinceSeq uint64) []byte {
	le := st.LittleEndian()
	w := keyWidth(st.BufferSize())

	msg := make([]byte, 3, 3+16*w)
	msg[0] = cmdByte(cmdUpdate, st)
	putUint16(msg[1:], id, le)

	any := false
	st.Journal().ChangesSince(sinceSeq, func(key, size uint32) {
		any = true
		field := make([]byte, 2*w+int(size))
		putUintN(field, key, w, le)
		putUintN(field[w:], size, w, le)
		if err := st.BytesAt(key, size, field[2*w:]); err != nil {
			return
		}
		msg = append(msg, field...)
	})
	if !any {
		return nil
	}
	return msg
}

func encodeBye(st *store.Store, id uint16) []byte {
	msg := make([]byte, 3)
	msg[0] = cmdByte(cmdBye, st)
	putUint16(msg[1:], id, st.LittleEndian())
	return msg
}

// helloMsg, welcomeMsg, updateMsg and byeMsg are the parsed forms.
type helloMsg struct {
	hash string
	id   uint16
}

type welcomeMsg struct {
	helloID   uint16
	welcomeID uint16
	buffer    []byte
}

type updateDelta struct {
	key  uint32
	data []byte
}

type byeMsg struct {
	hash  string // optional
	id    uint16 // optional
	hasID bool
}

func decodeHello(p []byte, le bool) (helloMsg, error) {
	if len(p) != hashLen+2 {
		return helloMsg{}, errShortMessage
	}
	return helloMsg{hash: string(p[:hashLen]), id: getUint16(p[hashLen:], le)}, nil
}

func decodeWelcome(p []byte, le bool) (welcomeMsg, error) {
	if len(p) < 4 {
		return welcomeMsg{}, errShortMessage
	}
	return welcomeMsg{
		helloID:   getUint16(p, le),
		welcomeID: getUint16(p[2:], le),
		buffer:    p[4:],
	}, nil
}

// decodeUpdateID parses the id at the head of an Update and returns the
// rest, the delta list that decodeDeltas parses once the id has resolved
// to a store and thereby to a key width.
func decodeUpdateID(p []byte, le bool) (uint16, []byte, error) {
	if len(p) < 2 {
		return 0, nil, errShortMessage
	}
	return getUint16(p, le), p[2:], nil
}

func decodeDeltas(p []byte, width int, le bool) ([]updateDelta, error) {
	var deltas []updateDelta
	for len(p) > 0 {
		if len(p) < 2*width {
			return nil, errShortMessage
		}
		key := getUintN(p, width, le)
		size := getUintN(p[width:], width, le)
		p = p[2*width:]
		if uint32(len(p)) < size {
			return nil, fmt.Errorf("synchronizer: truncated delta for key %d", key)
		}
		deltas = append(deltas, updateDelta{key: key, data: p[:size]})
		p = p[size:]
	}
	return deltas, nil
}

func decodeBye(p []byte, le bool) (byeMsg, error) {
	switch len(p) {
	case 0:
		return byeMsg{}, nil
	case 2:
		return byeMsg{id: getUint16(p, le), hasID: true}, nil
	case hashLen:
		return byeMsg{hash: string(p)}, nil
	}
	return byeMsg{}, errShortMessage
}
