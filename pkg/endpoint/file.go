// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package endpoint

import (
	"errors"
	"fmt"
	"io"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/ClusterCockpit/cc-devstore/internal/poller"
	"github.com/ClusterCockpit/cc-devstore/pkg/protocol"
)

// File replays a recorded byte stream into the stack and appends
// outbound data to a second file. Intended for test replay and offline
// protocol debugging, not for live traffic.
type File struct {
	protocol.Base
	in  *os.File
	out *os.File
}

// NewFile opens inPath for replay. outPath may be empty; outbound data
// is then discarded.
func NewFile(inPath, outPath string) (*File, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("file endpoint: %w", err)
	}
	var out *os.File
	if outPath != "" {
		out, err = os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("file endpoint: %w", err)
		}
	}
	return &File{in: in, out: out}, nil
}

func (f *File) Name() string { return "file" }
func (f *File) MTU() int     { return 0 }
func (f *File) Flush() bool  { return true }
func (f *File) Idle()        {}

func (f *File) Encode(p []byte, _ bool) {
	if f.out == nil {
		return
	}
	if _, err := f.out.Write(p); err != nil {
		cclog.Errorf("file endpoint: write: %v", err)
	}
}

// Attach is a no-op: file replay is driven explicitly via Replay.
func (f *File) Attach(*poller.Poller) error { return nil }

// Replay pushes the whole input file upward in chunks of the given size
// (default 4096 when zero or negative).
func (f *File) Replay(chunk int) error {
	if chunk <= 0 {
		chunk = 4096
	}
	buf := make([]byte, chunk)
	for {
		n, err := f.in.Read(buf)
		if n > 0 {
			if up := f.Up(); up != nil {
				up.Decode(buf[:n])
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (f *File) Close() error {
	f.in.Close()
	if f.out != nil {
		return f.out.Close()
	}
	return nil
}
