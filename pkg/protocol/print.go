// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"encoding/hex"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// Print is a transparent tracing layer. Inserted anywhere in a stack it
// logs passing messages hex-encoded at debug level, tagged with a label
// so that multiple stacks stay distinguishable.
type Print struct {
	Base
	label string
}

// NewPrint returns a tracing layer with the given label.
func NewPrint(label string) *Print { return &Print{label: label} }

func (p *Print) Name() string { return "print" }

func (p *Print) Decode(buf []byte) {
	cclog.Debugf("%s < %s", p.label, hex.EncodeToString(buf))
	p.Base.Decode(buf)
}

func (p *Print) Encode(buf []byte, last bool) {
	cclog.Debugf("%s > %s last=%v", p.label, hex.EncodeToString(buf), last)
	p.Base.Encode(buf, last)
}
