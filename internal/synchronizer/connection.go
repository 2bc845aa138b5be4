// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package synchronizer

import (
	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

// ConnState is the association state of one (store, port) pair.
type ConnState int

const (
	// StateUnannounced: no Hello has been sent or received yet.
	StateUnannounced ConnState = iota
	// StateHelloSent: our Hello is out, the Welcome is pending.
	StateHelloSent
	// StateWelcomed: associated; Updates flow in both directions.
	StateWelcomed
	// StateBye: the association ended; the store stays untouched.
	StateBye
)

func (s ConnState) String() string {
	switch s {
	case StateUnannounced:
		return "unannounced"
	case StateHelloSent:
		return "hello-sent"
	case StateWelcomed:
		return "welcomed"
	case StateBye:
		return "bye"
	}
	return "invalid"
}

// connection tracks one store's association with the peer behind one
// port.
type connection struct {
	st       *store.Store
	port     *Port
	idLocal  uint16 // our id for this store on this port
	idRemote uint16
	state    ConnState

	// seqLastSent is the journal snapshot covered by the last Welcome
	// or Update exchanged with the peer. Deltas start above it.
	seqLastSent uint64
}

// ConnStatus is the externally visible connection state, served by the
// management API.
type ConnStatus struct {
	Store    string `json:"store"`
	Port     string `json:"port"`
	State    string `json:"state"`
	IDLocal  uint16 `json:"id-local"`
	IDRemote uint16 `json:"id-remote"`
	SeqSent  uint64 `json:"seq-last-sent"`
}
