// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package debugger implements the application layer of the embedded
// debugging protocol: an interpreter for single-character commands that
// exposes every store object by name.
//
// A request is one command byte plus payload; the response is either
// result bytes, '!' for a plain acknowledgement or '?' for any failure
// (parse error, unknown or ambiguous name, resource limits). Values
// travel hex-encoded, big-endian, lowercase, regardless of the store's
// internal byte order.
//
// The Debugger sits on top of a protocol stack: inbound messages arrive
// through Decode, the response is pushed down through Encode before
// Decode returns.
package debugger

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/ClusterCockpit/cc-devstore/pkg/protocol"
	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

// ProtocolVersion is the first token of the `v` reply.
const ProtocolVersion = "2"

var (
	ack  = []byte{'!'}
	nack = []byte{'?'}
)

// Debugger is the command interpreter. It implements protocol.Layer and
// is used as the top of a stack.
type Debugger struct {
	protocol.Base

	stores         []*store.Store
	aliases        *aliasTable
	macros         *macroTable
	streams        *streamTable
	identification string
	versionTokens  []string
	memAccess      MemoryAccessor
	onRequest      func(cmd byte)
}

// MemoryAccessor implements the raw memory commands R and W. It is nil
// by default: direct memory access must be opted into explicitly.
type MemoryAccessor interface {
	ReadMemory(addr uint64, buf []byte) error
	WriteMemory(addr uint64, data []byte) error
}

// Option configures a Debugger.
type Option func(*Debugger)

// WithIdentification sets the `i` reply.
func WithIdentification(s string) Option {
	return func(d *Debugger) { d.identification = s }
}

// WithVersionTokens appends application tokens to the `v` reply.
func WithVersionTokens(tokens ...string) Option {
	return func(d *Debugger) { d.versionTokens = tokens }
}

// WithMemoryAccess enables the R and W commands.
func WithMemoryAccess(m MemoryAccessor) Option {
	return func(d *Debugger) { d.memAccess = m }
}

// WithAliasLimit overrides the alias table size.
func WithAliasLimit(n int) Option {
	return func(d *Debugger) { d.aliases = newAliasTable(n) }
}

// WithMacroBytes overrides the macro definition budget.
func WithMacroBytes(n int) Option {
	return func(d *Debugger) { d.macros = newMacroTable(n) }
}

// WithStreamLimits overrides stream count and per-stream size.
func WithStreamLimits(count, size int) Option {
	return func(d *Debugger) { d.streams = newStreamTable(count, size) }
}

// WithRequestHook registers a per-request callback (metrics).
func WithRequestHook(f func(cmd byte)) Option {
	return func(d *Debugger) { d.onRequest = f }
}

// New returns a Debugger over the given stores.
func New(stores []*store.Store, opts ...Option) *Debugger {
	d := &Debugger{
		stores:  stores,
		aliases: newAliasTable(0),
		macros:  newMacroTable(0),
		streams: newStreamTable(0, 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Debugger) Name() string { return "debugger" }

// StreamWrite lets the application emit bytes into a stream, to be
// collected by a client via the `s` command.
func (d *Debugger) StreamWrite(c byte, data []byte) error {
	return d.streams.write(c, data)
}

// Decode handles one request and pushes the response downward.
func (d *Debugger) Decode(req []byte) {
	rsp := d.Process(req)
	d.Encode(rsp, true)
}

// NewPort returns a top layer routing requests from one stack into this
// debugger. The session (aliases, macros, streams) is process-wide and
// shared across all ports, while each reply leaves through the stack
// its request came in on.
func (d *Debugger) NewPort() protocol.Layer {
	return &debuggerPort{dbg: d}
}

type debuggerPort struct {
	protocol.Base
	dbg *Debugger
}

func (p *debuggerPort) Name() string { return "debugger" }

func (p *debuggerPort) Decode(req []byte) {
	p.Encode(p.dbg.Process(req), true)
}

// Process interprets a single request and returns the response. Exposed
// for in-process consumers (management API, tests).
func (d *Debugger) Process(req []byte) []byte {
	return d.process(req, 0)
}

func (d *Debugger) process(req []byte, depth int) []byte {
	if len(req) == 0 {
		return nack
	}
	cmd, payload := req[0], req[1:]
	if d.onRequest != nil {
		d.onRequest(cmd)
	}

	switch cmd {
	case '?':
		return d.capabilities()
	case 'e':
		return payload
	case 'r':
		return d.read(payload)
	case 'w':
		return d.write(payload)
	case 'l':
		return d.list()
	case 'a':
		return d.alias(payload)
	case 'm':
		return d.macro(payload)
	case 'i':
		if d.identification == "" {
			return nack
		}
		return []byte(d.identification)
	case 'v':
		return d.version()
	case 'R':
		return d.readMem(payload)
	case 'W':
		return d.writeMem(payload)
	case 's':
		return d.stream(payload)
	}

	// Not a built-in: macro dispatch.
	if def, ok := d.macros.get(cmd); ok {
		if depth >= maxMacroDepth {
			cclog.Warnf("debugger: macro recursion limit at '%c'", cmd)
			return nack
		}
		var out bytes.Buffer
		for _, sub := range def.cmds {
			// Responses concatenate without separators.
			out.Write(d.process(sub, depth+1))
		}
		return out.Bytes()
	}
	return nack
}

func (d *Debugger) capabilities() []byte {
	caps := []byte{'?', 'e', 'r', 'w', 'l', 'a', 'm', 'i', 'v', 's'}
	if d.memAccess != nil {
		caps = append(caps, 'R', 'W')
	}
	return caps
}

func (d *Debugger) version() []byte {
	tokens := append([]string{ProtocolVersion}, d.versionTokens...)
	return []byte(strings.Join(tokens, " "))
}

// resolveName expands a single-character alias; anything longer is a
// (possibly abbreviated) object name as-is.
func (d *Debugger) resolveName(field []byte) string {
	if len(field) == 1 {
		if name, ok := d.aliases.get(field[0]); ok {
			return name
		}
	}
	return string(field)
}

// lookup resolves a name across all attached stores. A name matching in
// more than one store is ambiguous.
func (d *Debugger) lookup(name string) (*store.Store, store.Object, error) {
	var (
		hitStore *store.Store
		hit      store.Object
		hits     int
		ambig    bool
	)
	for _, s := range d.stores {
		o, err := s.Lookup(name)
		switch {
		case err == nil:
			hitStore, hit = s, o
			hits++
		case errors.Is(err, store.ErrAmbiguous):
			ambig = true
		}
	}
	switch {
	case hits == 1:
		return hitStore, hit, nil
	case hits > 1 || ambig:
		return nil, store.Object{}, store.ErrAmbiguous
	}
	return nil, store.Object{}, store.ErrNotFound
}

func (d *Debugger) read(payload []byte) []byte {
	if len(payload) == 0 {
		return nack
	}
	s, o, err := d.lookup(d.resolveName(payload))
	if err != nil {
		return nack
	}
	value, err := s.Get(o)
	if err != nil {
		return nack
	}
	out := hex.EncodeToString(value)
	if o.Type.IsFixed() {
		// Leading zero nybbles may be omitted on fixed-width values.
		out = strings.TrimLeft(out, "0")
		if out == "" {
			out = "0"
		}
	}
	return []byte(out)
}

func (d *Debugger) write(payload []byte) []byte {
	n := 0
	for n < len(payload) && isHexDigit(payload[n]) {
		n++
	}
	if n == 0 || n == len(payload) {
		return nack
	}
	value, err := parseHex(payload[:n])
	if err != nil {
		return nack
	}

	s, o, err := d.lookup(d.resolveName(payload[n:]))
	if err != nil {
		return nack
	}
	if err := s.Set(o, value); err != nil {
		return nack
	}
	return ack
}

func (d *Debugger) list() []byte {
	var out bytes.Buffer
	for _, s := range d.stores {
		s.List("", func(o store.Object) {
			fmt.Fprintf(&out, "%02x%x %s\n", uint8(o.Type), o.Size, o.Name)
		})
	}
	return out.Bytes()
}

func (d *Debugger) alias(payload []byte) []byte {
	if len(payload) == 0 {
		return nack
	}
	c := payload[0]
	if !aliasChar(c) {
		return nack
	}
	if len(payload) == 1 {
		d.aliases.remove(c)
		return ack
	}
	name := d.resolveName(payload[1:])
	if _, _, err := d.lookup(name); err != nil {
		return nack
	}
	d.aliases.set(c, name)
	return ack
}

func (d *Debugger) macro(payload []byte) []byte {
	if len(payload) == 0 {
		return nack
	}
	c := payload[0]
	if !aliasChar(c) {
		return nack
	}
	if bytes.IndexByte(d.capabilities(), c) >= 0 {
		// Built-ins cannot be shadowed; the attempt is ignored.
		return ack
	}
	if len(payload) == 1 {
		d.macros.remove(c)
		return ack
	}
	if err := d.macros.set(c, payload[1:]); err != nil {
		return nack
	}
	return ack
}

func (d *Debugger) stream(payload []byte) []byte {
	if len(payload) == 0 {
		return d.streams.list()
	}
	c := payload[0]
	suffix := payload[1:]
	data, ok := d.streams.drain(c)
	if !ok {
		return nack
	}
	return append(data, suffix...)
}

func (d *Debugger) readMem(payload []byte) []byte {
	if d.memAccess == nil {
		return nack
	}
	fields := bytes.Fields(payload)
	if len(fields) < 1 || len(fields) > 2 {
		return nack
	}
	addr, err := parseHexUint(fields[0])
	if err != nil {
		return nack
	}
	length := uint64(1)
	if len(fields) == 2 {
		if length, err = parseHexUint(fields[1]); err != nil || length == 0 || length > 4096 {
			return nack
		}
	}
	buf := make([]byte, length)
	if err := d.memAccess.ReadMemory(addr, buf); err != nil {
		return nack
	}
	return []byte(hex.EncodeToString(buf))
}

func (d *Debugger) writeMem(payload []byte) []byte {
	if d.memAccess == nil {
		return nack
	}
	fields := bytes.Fields(payload)
	if len(fields) != 2 {
		return nack
	}
	addr, err := parseHexUint(fields[0])
	if err != nil {
		return nack
	}
	data, err := parseHex(fields[1])
	if err != nil {
		return nack
	}
	if err := d.memAccess.WriteMemory(addr, data); err != nil {
		return nack
	}
	return ack
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// parseHex decodes a hex string, tolerating an odd number of nybbles by
// an implied leading zero.
func parseHex(b []byte) ([]byte, error) {
	if len(b)%2 != 0 {
		b = append([]byte{'0'}, b...)
	}
	out := make([]byte, len(b)/2)
	if _, err := hex.Decode(out, b); err != nil {
		return nil, err
	}
	return out, nil
}

func parseHexUint(b []byte) (uint64, error) {
	if len(b) == 0 || len(b) > 16 {
		return 0, errors.New("debugger: bad hex number")
	}
	var v uint64
	for _, c := range b {
		if !isHexDigit(c) {
			return 0, errors.New("debugger: bad hex number")
		}
		v <<= 4
		switch {
		case c <= '9':
			v |= uint64(c - '0')
		case c >= 'a':
			v |= uint64(c-'a') + 10
		default:
			v |= uint64(c-'A') + 10
		}
	}
	return v, nil
}
