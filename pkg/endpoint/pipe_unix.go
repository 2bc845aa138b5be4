// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package endpoint

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// mkfifo creates the FIFO if it does not exist yet.
func mkfifo(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	err := unix.Mkfifo(path, 0o660)
	if err != nil && !errors.Is(err, unix.EEXIST) {
		return err
	}
	return nil
}
