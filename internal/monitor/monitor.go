// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package monitor publishes store writes as influx line protocol over
// NATS, so fleet tooling can watch live values without speaking the
// debugger protocol. One line per write:
//
//	store_write,object=<name>,store=<store> value=<v> <ts>
//
// published on `<subject-prefix>.<store>`.
package monitor

import (
	"fmt"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/nats-io/nats.go"

	"github.com/ClusterCockpit/cc-devstore/internal/config"
	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

// Monitor forwards write events of the attached stores.
type Monitor struct {
	conn   *nats.Conn
	prefix string
}

// Init connects to NATS and hooks every given store. Returns nil (and
// logs) when the monitor is disabled or misconfigured; the daemon runs
// fine without it.
func Init(cfg config.MonitorConfig, natsCfg *config.NatsConfig, stores []*store.Store) *Monitor {
	if !cfg.Enabled {
		return nil
	}
	if natsCfg == nil || natsCfg.Address == "" {
		cclog.Warn("monitor: enabled but no NATS address configured")
		return nil
	}

	var opts []nats.Option
	if natsCfg.Username != "" && natsCfg.Password != "" {
		opts = append(opts, nats.UserInfo(natsCfg.Username, natsCfg.Password))
	}
	if natsCfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(natsCfg.CredsFilePath))
	}
	nc, err := nats.Connect(natsCfg.Address, opts...)
	if err != nil {
		cclog.Errorf("monitor: NATS connect failed: %v", err)
		return nil
	}

	m := &Monitor{conn: nc, prefix: cfg.SubjectPrefix}
	if m.prefix == "" {
		m.prefix = "cc-devstore.store"
	}

	for _, st := range stores {
		st.OnWrite(m.onWrite)
	}
	cclog.Infof("monitor: publishing store writes to '%s.*' via %s",
		m.prefix, natsCfg.Address)
	return m
}

// onWrite runs on the writer's goroutine; encoding and publishing is
// cheap enough to do inline.
func (m *Monitor) onWrite(s *store.Store, o store.Object) {
	v, err := s.Value(o)
	if err != nil {
		return
	}
	val, ok := lineprotocol.NewValue(normalize(v))
	if !ok {
		return
	}

	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Microsecond)
	enc.StartLine("store_write")
	enc.AddTag("object", o.Name)
	enc.AddTag("store", s.Name())
	enc.AddField("value", val)
	enc.EndLine(time.Now())
	if err := enc.Err(); err != nil {
		cclog.Warnf("monitor: encoding %s failed: %v", o.Name, err)
		return
	}

	subject := fmt.Sprintf("%s.%s", m.prefix, s.Name())
	if err := m.conn.Publish(subject, enc.Bytes()); err != nil {
		cclog.Warnf("monitor: publish to %s failed: %v", subject, err)
	}
}

// normalize maps store value types onto line-protocol field types.
func normalize(v any) any {
	switch x := v.(type) {
	case uint64:
		return int64(x)
	case []byte:
		return fmt.Sprintf("%x", x)
	default:
		return v
	}
}

// Close drops the NATS connection.
func (m *Monitor) Close() {
	if m != nil && m.conn != nil {
		m.conn.Close()
	}
}
