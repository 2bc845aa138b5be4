// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics defines the Prometheus instrumentation of the daemon.
// Counters are wired into the protocol layers and the synchronizer via
// their event hooks at stack assembly time, so the library packages stay
// free of a metrics dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DebuggerRequests counts debugger requests by command byte.
	DebuggerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccdevstore_debugger_requests_total",
		Help: "Debugger requests by command.",
	}, []string{"command"})

	// ArqRetransmits counts ARQ retransmissions per endpoint.
	ArqRetransmits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccdevstore_arq_retransmits_total",
		Help: "ARQ timeouts that led to a retransmission.",
	}, []string{"endpoint"})

	// ArqResets counts ARQ connection (re-)establishments per endpoint.
	ArqResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccdevstore_arq_resets_total",
		Help: "ARQ RESET handshakes started.",
	}, []string{"endpoint"})

	// CrcDrops counts messages dropped on checksum mismatch.
	CrcDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccdevstore_crc_drops_total",
		Help: "Messages dropped due to CRC mismatch.",
	}, []string{"endpoint"})

	// SyncEvents counts synchronizer protocol events by kind.
	SyncEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccdevstore_sync_events_total",
		Help: "Synchronizer events (hello, welcome, update-in, update-out, bye, drop).",
	}, []string{"event"})

	// StoreWrites counts object writes per store.
	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccdevstore_store_writes_total",
		Help: "Object writes, local and sync-applied.",
	}, []string{"store"})
)
