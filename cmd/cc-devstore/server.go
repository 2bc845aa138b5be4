// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ClusterCockpit/cc-devstore/internal/api"
	"github.com/ClusterCockpit/cc-devstore/internal/config"
	"github.com/ClusterCockpit/cc-devstore/internal/debugger"
	"github.com/ClusterCockpit/cc-devstore/internal/metrics"
	"github.com/ClusterCockpit/cc-devstore/internal/monitor"
	"github.com/ClusterCockpit/cc-devstore/internal/poller"
	"github.com/ClusterCockpit/cc-devstore/internal/runtimeEnv"
	"github.com/ClusterCockpit/cc-devstore/internal/synchronizer"
	"github.com/ClusterCockpit/cc-devstore/internal/taskmanager"
	"github.com/ClusterCockpit/cc-devstore/pkg/endpoint"
	"github.com/ClusterCockpit/cc-devstore/pkg/protocol"
	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

// pollInterval paces the loop that owns all protocol state; it bounds
// ARQ timer resolution, so it must stay well below the ack timeout.
const pollInterval = 20 * time.Millisecond

func runServer() {
	st, err := buildAppStore()
	if err != nil {
		cclog.Abortf("Could not build application store.\nError: %s\n", err.Error())
	}
	if err := store.Register(st); err != nil {
		cclog.Abortf("Could not register application store.\nError: %s\n", err.Error())
	}
	stores := store.All()
	for _, s := range stores {
		s := s
		s.OnWrite(func(_ *store.Store, _ store.Object) {
			metrics.StoreWrites.WithLabelValues(s.Name()).Inc()
		})
	}
	cclog.Infof("store %s ready, hash %s", st.Name(), st.Hash())

	dbg := debugger.New(stores, debuggerOptions()...)

	pl := poller.New()
	var (
		tops      []protocol.Layer
		endpoints []endpoint.Endpoint
		stacks    = map[string][]string{}
	)

	for i, ec := range config.Keys.Endpoints {
		label := fmt.Sprintf("%s-%d", ec.Type, i)
		ep, err := openEndpoint(ec)
		if err != nil {
			cclog.Errorf("endpoint %s: %v", label, err)
			continue
		}
		top := buildStack(dbg.NewPort(), ec, label, ep)
		if err := ep.Attach(pl); err != nil {
			cclog.Errorf("endpoint %s: %v", label, err)
			ep.Close()
			continue
		}
		tops = append(tops, top)
		endpoints = append(endpoints, ep)
		stacks[label] = protocol.Describe(top)
		cclog.Infof("endpoint %s: %v", label, stacks[label])
	}

	// Synchronizer, when any sync transport is configured.
	var sync *synchronizer.Synchronizer
	if config.Keys.Sync.ZmqListen != "" || config.Keys.Sync.Nats != nil {
		sync = synchronizer.New(stores, synchronizer.WithEvents(func(e string) {
			metrics.SyncEvents.WithLabelValues(e).Inc()
		}))
		sync.SetHold(config.Keys.Sync.Hold)

		if config.Keys.Sync.ZmqListen != "" {
			zs, err := endpoint.NewZmqSync(config.Keys.Sync.ZmqListen, config.Keys.Sync.ZmqPeers)
			if err != nil {
				cclog.Abortf("Could not open ZMQ sync endpoint.\nError: %s\n", err.Error())
			}
			port := sync.NewPort("zmq")
			protocol.Connect(port, zs)
			if err := zs.Attach(pl); err != nil {
				cclog.Abortf("Could not attach ZMQ sync endpoint.\nError: %s\n", err.Error())
			}
			endpoints = append(endpoints, zs)
			stacks["sync-zmq"] = protocol.Describe(port)
			port.Announce()
		}

		if natsCfg := config.Keys.Sync.Nats; natsCfg != nil {
			ns, err := endpoint.NewNatsSync(endpoint.NatsConfig{
				Address:       natsCfg.Address,
				Username:      natsCfg.Username,
				Password:      natsCfg.Password,
				CredsFilePath: natsCfg.CredsFilePath,
				Subject:       natsCfg.Subject,
			})
			if err != nil {
				cclog.Abortf("Could not open NATS sync endpoint.\nError: %s\n", err.Error())
			}
			port := sync.NewPort("nats")
			protocol.Connect(port, ns)
			if err := ns.Attach(pl); err != nil {
				cclog.Abortf("Could not attach NATS sync endpoint.\nError: %s\n", err.Error())
			}
			endpoints = append(endpoints, ns)
			stacks["sync-nats"] = protocol.Describe(port)
			port.Announce()
		}

		taskmanager.Init()
		taskmanager.RegisterSyncService(config.Keys.Sync.Interval, sync)
		taskmanager.RegisterJournalCleanService(config.Keys.Sync.JournalCleanInterval, sync, stores)
		taskmanager.Start()
	}

	mon := monitor.Init(config.Keys.Monitor, config.Keys.Sync.Nats, stores)

	// Management API.
	var srv *http.Server
	if config.Keys.API.Addr != "" {
		restAPI := &api.RestAPI{
			Stores:       stores,
			Synchronizer: sync,
			Stacks:       stacks,
			JwtSecret:    config.Keys.API.JwtSecret,
			RateLimit:    config.Keys.API.RateLimit,
		}
		r := mux.NewRouter()
		restAPI.MountRoutes(r)

		srv = &http.Server{
			Addr:         config.Keys.API.Addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler:      handlers.RecoveryHandler()(handlers.CompressHandler(r)),
		}
		// Bind before the privilege drop below; the listener may need
		// a privileged port.
		ln, err := net.Listen("tcp", config.Keys.API.Addr)
		if err != nil {
			cclog.Abortf("Could not bind management API to '%s'.\nError: %s\n",
				config.Keys.API.Addr, err.Error())
		}
		go func() {
			cclog.Infof("management API listening on %s", config.Keys.API.Addr)
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				cclog.Errorf("api: %v", err)
			}
		}()
	}

	// All ports and devices are open; shed root if configured.
	if config.Keys.User != "" || config.Keys.Group != "" {
		if err := runtimeEnv.DropPrivileges(config.Keys.User, config.Keys.Group); err != nil {
			cclog.Abortf("Could not drop privileges.\nError: %s\n", err.Error())
		}
	}

	// The poll loop owns all protocol state; endpoints decode inside
	// Poll, Idle drives ARQ timers and FIFO drains.
	done := make(chan struct{})
	go func() {
		for {
			if _, err := pl.Poll(pollInterval); err != nil {
				close(done)
				return
			}
			for _, top := range tops {
				top.Idle()
			}
		}
	}()

	runtimeEnv.NotifyReady("running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	cclog.Info("shutting down")

	if sync != nil {
		sync.ByeAll()
		taskmanager.Shutdown()
	}
	mon.Close()
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(ctx)
		cancel()
	}
	pl.Close()
	<-done
	for _, ep := range endpoints {
		ep.Close()
	}
}

func debuggerOptions() []debugger.Option {
	cfg := config.Keys.Debugger
	opts := []debugger.Option{
		debugger.WithIdentification(config.Keys.Identification),
		debugger.WithVersionTokens(config.Keys.VersionTokens...),
		debugger.WithAliasLimit(cfg.AliasLimit),
		debugger.WithMacroBytes(config.SizeInBytes(cfg.MacroBytes)),
		debugger.WithStreamLimits(cfg.StreamCount, config.SizeInBytes(cfg.StreamBytes)),
		debugger.WithRequestHook(func(cmd byte) {
			metrics.DebuggerRequests.WithLabelValues(string(cmd)).Inc()
		}),
	}
	if cfg.EnableMemoryAccess {
		cclog.Warn("debugger: raw memory access enabled")
		opts = append(opts, debugger.WithMemoryAccess(debugger.ProcessMemory{}))
	}
	return opts
}

func openEndpoint(ec config.EndpointConfig) (endpoint.Endpoint, error) {
	switch ec.Type {
	case "stdio":
		return endpoint.NewStdio(), nil
	case "pipe":
		return endpoint.NewNamedPipe(ec.InPath, ec.OutPath)
	case "serial":
		baud := ec.Baud
		if baud == 0 {
			baud = 115200
		}
		return endpoint.NewSerial(ec.Device, baud)
	case "zmq":
		listen := ec.Listen
		if listen == "" {
			listen = "tcp://*:19026"
		}
		return endpoint.NewZmqServer(listen)
	}
	return nil, fmt.Errorf("unknown endpoint type %q", ec.Type)
}

// defaultLayers picks the codec stack for transports that did not
// configure one: consoles get terminal framing, serial links the full
// lossy-channel treatment, ZMQ none (its messages arrive whole).
func defaultLayers(typ string) []string {
	switch typ {
	case "stdio", "pipe":
		return []string{"ascii", "term"}
	case "serial":
		return []string{"ascii", "term", "arq", "crc16", "segment"}
	}
	return nil
}

func buildStack(top protocol.Layer, ec config.EndpointConfig, label string, ep endpoint.Endpoint) protocol.Layer {
	names := ec.Layers
	if len(names) == 0 {
		names = defaultLayers(ec.Type)
	}

	layers := []protocol.Layer{top}
	for _, name := range names {
		switch name {
		case "ascii":
			layers = append(layers, protocol.NewAsciiEscape())
		case "term":
			layers = append(layers, protocol.NewTerminal(protocol.WithSideband(os.Stdout)))
		case "arq":
			layers = append(layers, protocol.NewArq(protocol.WithArqEvents(func(e protocol.ArqEvent) {
				switch e {
				case protocol.ArqEventRetransmit:
					metrics.ArqRetransmits.WithLabelValues(label).Inc()
				case protocol.ArqEventReset:
					metrics.ArqResets.WithLabelValues(label).Inc()
				}
			})))
		case "crc8":
			c := protocol.NewCrc8()
			c.OnDrop = func() { metrics.CrcDrops.WithLabelValues(label).Inc() }
			layers = append(layers, c)
		case "crc16":
			c := protocol.NewCrc16()
			c.OnDrop = func() { metrics.CrcDrops.WithLabelValues(label).Inc() }
			layers = append(layers, c)
		case "segment":
			layers = append(layers, protocol.NewSegmentation())
		case "buffer":
			layers = append(layers, protocol.NewBuffer(16))
		case "print":
			layers = append(layers, protocol.NewPrint(label))
		default:
			cclog.Warnf("endpoint %s: unknown layer %q skipped", label, name)
		}
	}
	layers = append(layers, ep)
	return protocol.Connect(layers...)
}
