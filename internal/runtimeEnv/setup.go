// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runtimeEnv carries the process-level plumbing around the
// daemon: .env loading, privilege dropping and systemd readiness
// notification.
package runtimeEnv

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"
	"syscall"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/joho/godotenv"
)

// LoadEnv reads the given .env file into the process environment.
// Secrets like the API JWT secret are injected this way instead of
// living in config.json.
func LoadEnv(file string) error {
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return err
	}
	return godotenv.Load(file)
}

// DropPrivileges switches the process to the configured user and group
// once all sockets and serial devices are bound, so a daemon started as
// root for a privileged port or /dev/tty* does not stay root. The group
// changes first; after a setuid the process could no longer do so. The
// Go runtime applies the switch to every thread.
func DropPrivileges(username, group string) error {
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return fmt.Errorf("runtimeEnv: group %q: %w", group, err)
		}
		gid, err := strconv.Atoi(g.Gid)
		if err != nil {
			return fmt.Errorf("runtimeEnv: group %q has non-numeric gid %q", group, g.Gid)
		}
		if err := syscall.Setgid(gid); err != nil {
			return fmt.Errorf("runtimeEnv: setgid %d: %w", gid, err)
		}
	}

	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			return fmt.Errorf("runtimeEnv: user %q: %w", username, err)
		}
		uid, err := strconv.Atoi(u.Uid)
		if err != nil {
			return fmt.Errorf("runtimeEnv: user %q has non-numeric uid %q", username, u.Uid)
		}
		if err := syscall.Setuid(uid); err != nil {
			return fmt.Errorf("runtimeEnv: setuid %d: %w", uid, err)
		}
	}

	return nil
}

// NotifyReady tells a supervising systemd that startup finished, by
// speaking the sd_notify datagram protocol on NOTIFY_SOCKET directly:
// https://www.freedesktop.org/software/systemd/man/sd_notify.html
// Without a supervisor this is a no-op, and a failed send is only worth
// a debug line since the service keeps running either way.
func NotifyReady(status string) {
	socket := os.Getenv("NOTIFY_SOCKET")
	if socket == "" {
		return
	}

	conn, err := net.Dial("unixgram", socket)
	if err != nil {
		cclog.Debugf("runtimeEnv: sd_notify socket: %v", err)
		return
	}
	defer conn.Close()

	state := "READY=1"
	if status != "" {
		state += "\nSTATUS=" + status
	}
	if _, err := conn.Write([]byte(state)); err != nil {
		cclog.Debugf("runtimeEnv: sd_notify send: %v", err)
	}
}
