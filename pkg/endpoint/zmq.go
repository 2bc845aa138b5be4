// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package endpoint

import (
	"context"
	"fmt"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-zeromq/zmq4"

	"github.com/ClusterCockpit/cc-devstore/internal/poller"
	"github.com/ClusterCockpit/cc-devstore/pkg/protocol"
)

// ZmqServer is a REQ/REP endpoint for debugger clients. One full
// upper-layer message travels as one ZMQ message, so no further framing
// layers are needed; a GUI talks to `tcp://host:port` directly.
//
// REP sockets are strictly request/reply: the stack above must produce
// exactly one reply per request, which the debugger does.
type ZmqServer struct {
	protocol.Base
	addr    string
	sock    zmq4.Socket
	inbox   *queue
	replied chan struct{}
	partial []byte
	cancel  context.CancelFunc
}

// NewZmqServer listens on the given ZMQ address, e.g. "tcp://*:19026".
func NewZmqServer(addr string) (*ZmqServer, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewRep(ctx)
	if err := sock.Listen(addr); err != nil {
		cancel()
		return nil, fmt.Errorf("zmq listen %s: %w", addr, err)
	}

	z := &ZmqServer{
		addr:    addr,
		sock:    sock,
		inbox:   newQueue(),
		replied: make(chan struct{}, 1),
		cancel:  cancel,
	}
	go z.reader(ctx)
	cclog.Infof("zmq: debugger listening on %s", addr)
	return z, nil
}

func (z *ZmqServer) Name() string { return "zmq:" + z.addr }
func (z *ZmqServer) MTU() int     { return 0 }
func (z *ZmqServer) Flush() bool  { return true }
func (z *ZmqServer) Idle()        {}

// reader feeds requests into the inbox and, per REP state machine, waits
// for the poll loop to send the reply before receiving again.
func (z *ZmqServer) reader(ctx context.Context) {
	for {
		msg, err := z.sock.Recv()
		if err != nil {
			if ctx.Err() == nil {
				cclog.Errorf("zmq %s: recv: %v", z.addr, err)
			}
			return
		}
		z.inbox.push(msg.Bytes())
		select {
		case <-z.replied:
		case <-ctx.Done():
			return
		}
	}
}

func (z *ZmqServer) Encode(p []byte, last bool) {
	z.partial = append(z.partial, p...)
	if !last {
		return
	}
	reply := z.partial
	z.partial = nil
	if err := z.sock.Send(zmq4.NewMsg(reply)); err != nil {
		cclog.Errorf("zmq %s: send: %v", z.addr, err)
	}
	select {
	case z.replied <- struct{}{}:
	default:
	}
}

func (z *ZmqServer) Attach(pl *poller.Poller) error {
	return pl.AddChan(z.Name(), z.inbox.notify, func() {
		z.inbox.drain(func(msg []byte) {
			if up := z.Up(); up != nil {
				up.Decode(msg)
			}
		})
	})
}

func (z *ZmqServer) Close() error {
	z.cancel()
	return z.sock.Close()
}

// ZmqSync carries synchronizer traffic: a PUB socket publishes this
// node's messages, SUB connections to the configured peers deliver
// theirs. Every peer sees every message; the synchronizer's hash/id
// addressing sorts out what applies to whom.
type ZmqSync struct {
	protocol.Base
	listen  string
	pub     zmq4.Socket
	subs    []zmq4.Socket
	inbox   *queue
	partial []byte
	cancel  context.CancelFunc
}

// NewZmqSync listens for peers on listenAddr and connects to each given
// peer address.
func NewZmqSync(listenAddr string, peers []string) (*ZmqSync, error) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := zmq4.NewPub(ctx)
	if err := pub.Listen(listenAddr); err != nil {
		cancel()
		return nil, fmt.Errorf("zmq sync listen %s: %w", listenAddr, err)
	}

	z := &ZmqSync{
		listen: listenAddr,
		pub:    pub,
		inbox:  newQueue(),
		cancel: cancel,
	}

	for _, peer := range peers {
		sub := zmq4.NewSub(ctx)
		if err := sub.Dial(peer); err != nil {
			z.Close()
			return nil, fmt.Errorf("zmq sync dial %s: %w", peer, err)
		}
		if err := sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
			z.Close()
			return nil, fmt.Errorf("zmq sync subscribe %s: %w", peer, err)
		}
		z.subs = append(z.subs, sub)
		go z.reader(ctx, peer, sub)
	}

	cclog.Infof("zmq: sync on %s, %d peer(s)", listenAddr, len(peers))
	return z, nil
}

func (z *ZmqSync) Name() string { return "zmqsync:" + z.listen }
func (z *ZmqSync) MTU() int     { return 0 }
func (z *ZmqSync) Flush() bool  { return true }
func (z *ZmqSync) Idle()        {}

func (z *ZmqSync) reader(ctx context.Context, peer string, sub zmq4.Socket) {
	for {
		msg, err := sub.Recv()
		if err != nil {
			if ctx.Err() == nil {
				cclog.Errorf("zmq sync %s: recv: %v", peer, err)
			}
			return
		}
		z.inbox.push(msg.Bytes())
	}
}

// Encode publishes one sync message per logical message.
func (z *ZmqSync) Encode(p []byte, last bool) {
	z.partial = append(z.partial, p...)
	if !last {
		return
	}
	msg := z.partial
	z.partial = nil
	if err := z.pub.Send(zmq4.NewMsg(msg)); err != nil {
		cclog.Errorf("zmq sync %s: send: %v", z.listen, err)
	}
}

func (z *ZmqSync) Attach(pl *poller.Poller) error {
	return pl.AddChan(z.Name(), z.inbox.notify, func() {
		z.inbox.drain(func(msg []byte) {
			if up := z.Up(); up != nil {
				up.Decode(msg)
			}
		})
	})
}

func (z *ZmqSync) Close() error {
	z.cancel()
	for _, sub := range z.subs {
		sub.Close()
	}
	return z.pub.Close()
}
