// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package poller

import (
	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"golang.org/x/sys/unix"
)

// watchFD waits for fd to become readable, reports it, and blocks until
// the poll loop consumed the data. A finite kernel timeout lets the
// goroutine notice Remove/Close without an interruptible syscall.
func (p *Poller) watchFD(s *source, fd int) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		fds[0].Revents = 0
		n, err := unix.Poll(fds, 500 /* ms */)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			cclog.Errorf("poller: poll on %s: %v", s.name, err)
			return
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			cclog.Warnf("poller: descriptor of %s went bad", s.name)
			return
		}

		select {
		case p.notify <- s:
		case <-s.stop:
			return
		}
		// Block until the loop read the descriptor dry, or we are done.
		select {
		case <-s.resume:
		case <-s.stop:
			return
		}
	}
}
