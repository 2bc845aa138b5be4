// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

// Segmentation splits outbound messages into segments that fit the lower
// layer's MTU and reassembles inbound segments. Every segment carries one
// trailing control byte: 'C' when more segments follow, 'E' on the last
// one. The layer reports an unlimited MTU upward; reassembly is bounded
// only by the configured frame limit.
const (
	segMore = 'C'
	segEnd  = 'E'
)

type Segmentation struct {
	Base
	sbuf   []byte // outbound, partial segment
	rbuf   []byte // inbound, partial reassembly
	maxMsg int
	rdrop  bool

	// Drops counts reassembled messages discarded due to overflow or a
	// malformed control byte.
	Drops uint64
}

// SegmentationOption configures a Segmentation layer.
type SegmentationOption func(*Segmentation)

// WithMaxReassembly bounds the reassembled message size.
func WithMaxReassembly(n int) SegmentationOption {
	return func(s *Segmentation) { s.maxMsg = n }
}

// NewSegmentation returns a segmentation layer.
func NewSegmentation(opts ...SegmentationOption) *Segmentation {
	s := &Segmentation{maxMsg: 1 << 20}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Segmentation) Name() string { return "segment" }

// segSize returns the payload capacity of one segment.
func (s *Segmentation) segSize() int {
	m := s.Base.MTU()
	if m == 0 {
		// Unlimited transport; no need to split, but the control byte
		// stays so that the peer's reassembly is uniform.
		return 1 << 30
	}
	if m < 2 {
		return 1
	}
	return m - 1
}

func (s *Segmentation) Encode(p []byte, last bool) {
	size := s.segSize()
	for {
		room := size - len(s.sbuf)
		if room > len(p) {
			s.sbuf = append(s.sbuf, p...)
			break
		}
		s.sbuf = append(s.sbuf, p[:room]...)
		p = p[room:]
		if last && len(p) == 0 {
			break
		}
		s.flushSegment(segMore)
	}
	if last {
		s.flushSegment(segEnd)
	}
}

func (s *Segmentation) flushSegment(ctl byte) {
	seg := append(s.sbuf, ctl)
	s.sbuf = s.sbuf[:0]
	s.Base.Encode(seg, true)
}

func (s *Segmentation) Decode(p []byte) {
	if len(p) == 0 {
		return
	}
	payload, ctl := p[:len(p)-1], p[len(p)-1]

	if len(s.rbuf)+len(payload) > s.maxMsg {
		s.rdrop = true
	}
	if !s.rdrop {
		s.rbuf = append(s.rbuf, payload...)
	}

	switch ctl {
	case segMore:
		return
	case segEnd:
		// Detach the message before delivering it: a reply sent from the
		// upper layer's Decode can bring new segments back into this layer
		// before Decode returns.
		msg, drop := s.rbuf, s.rdrop
		s.rbuf, s.rdrop = nil, false
		if drop {
			s.Drops++
		} else {
			s.Base.Decode(msg)
		}
		if s.rbuf == nil {
			s.rbuf = msg[:0]
		}
		return
	default:
		// Desynchronized peer; throw the partial message away.
		s.Drops++
	}
	s.rbuf = s.rbuf[:0]
	s.rdrop = false
}

func (s *Segmentation) MTU() int { return 0 }
