// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config holds the daemon configuration: a package-level Keys
// struct initialized once from a JSON file that is validated against the
// embedded schema before decoding.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/docker/go-units"
)

// EndpointConfig describes one debugger transport and its layer stack.
type EndpointConfig struct {
	// Type is one of "stdio", "pipe", "serial", "zmq".
	Type string `json:"type"`

	// Layers lists codec layers top to bottom; valid entries are
	// "ascii", "term", "arq", "crc8", "crc16", "segment", "buffer",
	// "print". Empty means a sensible default for the transport type.
	Layers []string `json:"layers"`

	// Serial options.
	Device string `json:"device"`
	Baud   int    `json:"baud"`

	// Pipe options.
	InPath  string `json:"in-path"`
	OutPath string `json:"out-path"`

	// ZMQ options.
	Listen string `json:"listen"`
}

// SyncConfig describes the synchronizer.
type SyncConfig struct {
	// Interval between Update ticks, e.g. "100ms". Empty disables the
	// periodic tick.
	Interval string `json:"interval"`

	// Hold starts the synchronizer with updates paused.
	Hold bool `json:"hold"`

	// ZmqListen/ZmqPeers configure a ZMQ sync mesh.
	ZmqListen string   `json:"zmq-listen"`
	ZmqPeers  []string `json:"zmq-peers"`

	// Nats configures sync over a NATS subject instead of (or next to)
	// ZMQ.
	Nats *NatsConfig `json:"nats"`

	// JournalCleanInterval controls the journal garbage collection
	// task, e.g. "10m". Empty disables it.
	JournalCleanInterval string `json:"journal-clean-interval"`
}

// NatsConfig mirrors the cc-backend NATS client options.
type NatsConfig struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds-file-path"`
	Subject       string `json:"subject"`
}

// DebuggerConfig bounds the debugger's session tables.
type DebuggerConfig struct {
	AliasLimit  int    `json:"alias-limit"`
	MacroBytes  string `json:"macro-bytes"` // e.g. "4KiB"
	StreamCount int    `json:"stream-count"`
	StreamBytes string `json:"stream-bytes"` // e.g. "1KiB"

	// EnableMemoryAccess switches the raw memory commands R/W on.
	EnableMemoryAccess bool `json:"enable-memory-access"`
}

// APIConfig describes the management HTTP API.
type APIConfig struct {
	// Addr to listen on; empty disables the API.
	Addr string `json:"addr"`

	// JwtSecret enables bearer authentication when non-empty. The
	// secret itself usually comes in via the environment, see
	// runtimeEnv.
	JwtSecret string `json:"jwt-secret"`

	// RateLimit is the request budget per second, shared by all clients;
	// 0 means unlimited.
	RateLimit int `json:"rate-limit"`
}

// MonitorConfig describes the change monitor publishing store writes as
// influx line protocol over NATS.
type MonitorConfig struct {
	Enabled       bool   `json:"enabled"`
	SubjectPrefix string `json:"subject-prefix"`
}

// ComputedObject defines a synthetic function object whose value is an
// expression over other store objects.
type ComputedObject struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// ProgramConfig is the complete daemon configuration.
type ProgramConfig struct {
	Identification string   `json:"identification"`
	VersionTokens  []string `json:"version-tokens"`

	// User/Group to drop privileges to once all endpoints are bound.
	// Empty keeps the invoking identity.
	User  string `json:"user"`
	Group string `json:"group"`

	Endpoints []EndpointConfig `json:"endpoints"`
	Debugger  DebuggerConfig   `json:"debugger"`
	Sync      SyncConfig       `json:"sync"`
	API       APIConfig        `json:"api"`
	Monitor   MonitorConfig    `json:"monitor"`
	Computed  []ComputedObject `json:"computed"`
}

// Keys holds the active configuration; Init fills it.
var Keys = ProgramConfig{
	Identification: "cc-devstore",
	Endpoints:      []EndpointConfig{{Type: "stdio"}},
	Debugger: DebuggerConfig{
		AliasLimit:  32,
		MacroBytes:  "4KiB",
		StreamCount: 8,
		StreamBytes: "1KiB",
	},
	Sync: SyncConfig{
		Interval:             "100ms",
		JournalCleanInterval: "10m",
	},
	Monitor: MonitorConfig{
		SubjectPrefix: "cc-devstore.store",
	},
}

// Init loads and validates the configuration file. A missing file keeps
// the defaults; a malformed one aborts before the daemon binds any
// endpoint, so a typo never leaves a half-configured stack listening.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			cclog.Abortf("Config Init: Could not read config file '%s'.\nError: %s\n",
				flagConfigFile, err.Error())
		}
		return
	}

	if err := validate(raw); err != nil {
		cclog.Abortf("Config Init: config file '%s' rejected by schema.\nError: %s\n",
			flagConfigFile, err.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		cclog.Abortf("Config Init: Could not decode config file '%s'.\nError: %s\n",
			flagConfigFile, err.Error())
	}
}

// validate checks raw against the pre-compiled schema.
func validate(raw json.RawMessage) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return err
	}
	return compiledSchema.Validate(instance)
}

// SizeInBytes parses a human-readable size like "4KiB". Zero on empty.
func SizeInBytes(s string) int {
	if s == "" {
		return 0
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		cclog.Abortf("Config Init: invalid size %q: %s\n", s, err.Error())
	}
	return int(n)
}
