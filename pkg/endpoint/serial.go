// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package endpoint

import (
	"fmt"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"go.bug.st/serial"

	"github.com/ClusterCockpit/cc-devstore/internal/poller"
	"github.com/ClusterCockpit/cc-devstore/pkg/protocol"
)

// Serial is the endpoint over a UART, raw 8-N-1. Framing, integrity and
// retransmission are entirely the business of the layers above; the
// usual stack on a UART is Terminal+Arq+Crc+Segmentation.
type Serial struct {
	protocol.Base
	device string
	port   serial.Port
	inbox  *queue
	done   chan struct{}
}

// NewSerial opens the given device at the given baud rate.
func NewSerial(device string, baud int) (*Serial, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serial %s: %w", device, err)
	}

	s := &Serial{
		device: device,
		port:   port,
		inbox:  newQueue(),
		done:   make(chan struct{}),
	}
	go s.reader()
	return s, nil
}

func (s *Serial) Name() string { return "serial:" + s.device }
func (s *Serial) MTU() int     { return 0 }
func (s *Serial) Flush() bool  { return true }
func (s *Serial) Idle()        {}

// reader moves bytes from the blocking port read into the inbox. The
// poll loop drains them on its own goroutine.
func (s *Serial) reader() {
	buf := make([]byte, 4096)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			select {
			case <-s.done:
			default:
				cclog.Errorf("serial %s: read: %v", s.device, err)
			}
			return
		}
		if n > 0 {
			s.inbox.push(append([]byte(nil), buf[:n]...))
		}
	}
}

func (s *Serial) Encode(p []byte, _ bool) {
	for len(p) > 0 {
		n, err := s.port.Write(p)
		if err != nil {
			cclog.Errorf("serial %s: write: %v", s.device, err)
			return
		}
		p = p[n:]
	}
}

func (s *Serial) Attach(pl *poller.Poller) error {
	return pl.AddChan(s.Name(), s.inbox.notify, func() {
		s.inbox.drain(func(msg []byte) {
			if up := s.Up(); up != nil {
				up.Decode(msg)
			}
		})
	})
}

func (s *Serial) Close() error {
	close(s.done)
	return s.port.Close()
}
