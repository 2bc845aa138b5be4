// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package endpoint

import (
	"fmt"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/nats-io/nats.go"

	"github.com/ClusterCockpit/cc-devstore/internal/poller"
	"github.com/ClusterCockpit/cc-devstore/pkg/protocol"
)

// NatsSync carries synchronizer traffic over a single NATS subject, an
// alternative to ZmqSync for fleets that already run a NATS server.
// Every node publishes to the shared subject and subscribes to it;
// self-published messages are filtered by the connection's NoEcho
// option.
type NatsSync struct {
	protocol.Base
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	inbox   *queue
	partial []byte
}

// NatsConfig mirrors the pkg/nats configuration of cc-backend.
type NatsConfig struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds-file-path"`
	Subject       string `json:"subject"`
}

// NewNatsSync connects to the configured NATS server and binds the sync
// subject.
func NewNatsSync(cfg NatsConfig) (*NatsSync, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("nats: address is required")
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "cc-devstore.sync"
	}

	opts := []nats.Option{nats.NoEcho()}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			cclog.Warnf("nats sync: disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		cclog.Infof("nats sync: reconnected to %s", nc.ConnectedUrl())
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.Address, err)
	}

	n := &NatsSync{conn: nc, subject: subject, inbox: newQueue()}
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		n.inbox.push(msg.Data)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	n.sub = sub

	cclog.Infof("nats: sync over '%s' via %s", subject, cfg.Address)
	return n, nil
}

func (n *NatsSync) Name() string { return "nats:" + n.subject }
func (n *NatsSync) MTU() int     { return 0 }
func (n *NatsSync) Idle()        {}

func (n *NatsSync) Encode(p []byte, last bool) {
	n.partial = append(n.partial, p...)
	if !last {
		return
	}
	msg := n.partial
	n.partial = nil
	if err := n.conn.Publish(n.subject, msg); err != nil {
		cclog.Errorf("nats sync: publish: %v", err)
	}
}

func (n *NatsSync) Flush() bool {
	return n.conn.Flush() == nil
}

func (n *NatsSync) Attach(pl *poller.Poller) error {
	return pl.AddChan(n.Name(), n.inbox.notify, func() {
		n.inbox.drain(func(msg []byte) {
			if up := n.Up(); up != nil {
				up.Decode(msg)
			}
		})
	})
}

func (n *NatsSync) Close() error {
	if n.sub != nil {
		n.sub.Unsubscribe()
	}
	n.conn.Close()
	return nil
}
