// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmanager

import (
	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/ClusterCockpit/cc-devstore/internal/synchronizer"
	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

// RegisterJournalCleanService periodically drops journal entries no
// peer still needs a delta against. Bounds journal growth on long-lived
// stores with wide write sets.
func RegisterJournalCleanService(intervalText string, sync *synchronizer.Synchronizer, stores []*store.Store) {
	interval, err := parseDuration(intervalText)
	if err != nil {
		return
	}
	register("journal-clean", interval, func() {
		for _, st := range stores {
			keep := sync.MinSnapshot(st)
			if keep == ^uint64(0) {
				// No welcomed peer; everything before now is garbage.
				keep = st.Journal().Snapshot()
			}
			if n := st.Journal().Clean(keep); n > 0 {
				cclog.Debugf("journal-clean: %s dropped %d entries", st.Name(), n)
			}
		}
	})
}
