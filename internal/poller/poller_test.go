// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package poller

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollTimeout(t *testing.T) {
	p := New()
	defer p.Close()

	n, err := p.Poll(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChanSourceDispatch(t *testing.T) {
	p := New()
	defer p.Close()

	ch := make(chan struct{}, 1)
	fired := 0
	require.NoError(t, p.AddChan("test", ch, func() { fired++ }))

	ch <- struct{}{}
	n, err := p.Poll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, fired)
}

func TestRemovedSourceIsNotDispatched(t *testing.T) {
	p := New()
	defer p.Close()

	ch := make(chan struct{}, 1)
	fired := 0
	require.NoError(t, p.AddChan("gone", ch, func() { fired++ }))
	ch <- struct{}{}
	// Give the forwarder a chance to enqueue before removal.
	time.Sleep(20 * time.Millisecond)
	p.Remove("gone")

	n, err := p.Poll(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, fired)
	_ = n
}

func TestFDSourceDispatch(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	p := New()
	defer p.Close()

	got := make([]byte, 0, 8)
	require.NoError(t, p.AddFD("pipe", int(r.Fd()), func() {
		buf := make([]byte, 8)
		n, _ := r.Read(buf)
		got = append(got, buf[:n]...)
	}))

	_, err = w.Write([]byte("ping"))
	require.NoError(t, err)

	n, err := p.Poll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte("ping"), got)
}

func TestPollAfterClose(t *testing.T) {
	p := New()
	p.Close()
	_, err := p.Poll(time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}
