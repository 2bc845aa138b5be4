// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package debugger

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultAliasLimit bounds the alias table; the least recently used
// alias is evicted when a new one would exceed it.
const DefaultAliasLimit = 32

// aliasTable maps single characters to object names. Eviction order is
// by use: reading through an alias refreshes it.
type aliasTable struct {
	l *lru.Cache[byte, string]
}

func newAliasTable(limit int) *aliasTable {
	if limit <= 0 {
		limit = DefaultAliasLimit
	}
	l, _ := lru.New[byte, string](limit)
	return &aliasTable{l: l}
}

func (a *aliasTable) set(c byte, name string) {
	a.l.Add(c, name)
}

func (a *aliasTable) get(c byte) (string, bool) {
	return a.l.Get(c)
}

func (a *aliasTable) remove(c byte) {
	a.l.Remove(c)
}

func (a *aliasTable) len() int { return a.l.Len() }

// aliasChar reports whether c may serve as an alias character: any
// printable ASCII except space and the name separator.
func aliasChar(c byte) bool {
	return c > 0x20 && c < 0x7f && c != '/'
}
