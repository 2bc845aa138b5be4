// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package endpoint

import (
	"fmt"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/ClusterCockpit/cc-devstore/internal/poller"
	"github.com/ClusterCockpit/cc-devstore/pkg/protocol"
)

// fdEndpoint is the shared implementation for endpoints backed by a
// readable and a writable file: stdio, named pipes.
type fdEndpoint struct {
	protocol.Base
	label string
	in    *os.File
	out   *os.File
	buf   []byte
}

func newFDEndpoint(label string, in, out *os.File) *fdEndpoint {
	return &fdEndpoint{label: label, in: in, out: out, buf: make([]byte, 4096)}
}

func (e *fdEndpoint) Name() string { return e.label }
func (e *fdEndpoint) MTU() int     { return 0 }
func (e *fdEndpoint) Flush() bool  { return true }
func (e *fdEndpoint) Idle()        {}

func (e *fdEndpoint) Encode(p []byte, _ bool) {
	for len(p) > 0 {
		n, err := e.out.Write(p)
		if err != nil {
			cclog.Errorf("%s: write: %v", e.label, err)
			return
		}
		p = p[n:]
	}
}

func (e *fdEndpoint) Attach(pl *poller.Poller) error {
	return pl.AddFD(e.label, int(e.in.Fd()), e.readReady)
}

// readReady pulls the available bytes and pushes them upward. Runs on
// the poll loop.
func (e *fdEndpoint) readReady() {
	n, err := e.in.Read(e.buf)
	if err != nil || n == 0 {
		return
	}
	if up := e.Up(); up != nil {
		up.Decode(e.buf[:n])
	}
}

func (e *fdEndpoint) Close() error {
	// Leave process-owned descriptors (stdio) alone.
	return nil
}

// Stdio is the endpoint over the process's stdin/stdout, the classic
// deployment for a debugger sharing the console with application output
// through the Terminal layer.
type Stdio struct {
	fdEndpoint
}

// NewStdio returns a stdio endpoint.
func NewStdio() *Stdio {
	return &Stdio{fdEndpoint: *newFDEndpoint("stdio", os.Stdin, os.Stdout)}
}

// NamedPipe is the endpoint over a pair of OS FIFOs, used for simulation
// IPC. The inbound pipe is read, the outbound pipe written.
type NamedPipe struct {
	fdEndpoint
}

// NewNamedPipe opens (and creates, if necessary) the two FIFOs.
func NewNamedPipe(inPath, outPath string) (*NamedPipe, error) {
	if err := mkfifo(inPath); err != nil {
		return nil, fmt.Errorf("pipe %s: %w", inPath, err)
	}
	if err := mkfifo(outPath); err != nil {
		return nil, fmt.Errorf("pipe %s: %w", outPath, err)
	}

	// O_RDWR on both sides: opening a FIFO read-only blocks until a
	// writer appears, and a writer-less FIFO reports EOF forever.
	in, err := os.OpenFile(inPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("pipe %s: %w", inPath, err)
	}
	out, err := os.OpenFile(outPath, os.O_RDWR, 0)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("pipe %s: %w", outPath, err)
	}

	return &NamedPipe{fdEndpoint: *newFDEndpoint("pipe:"+inPath, in, out)}, nil
}

func (e *NamedPipe) Close() error {
	e.in.Close()
	return e.out.Close()
}
