// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmanager

import (
	"github.com/ClusterCockpit/cc-devstore/internal/synchronizer"
)

// RegisterSyncService emits pending store deltas on the configured
// interval. This is the synchronizer's send tick: updates only ever
// leave the process here or on an explicit trigger.
func RegisterSyncService(intervalText string, sync *synchronizer.Synchronizer) {
	interval, err := parseDuration(intervalText)
	if err != nil {
		return
	}
	register("sync", interval, sync.Process)
}
