// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"sort"
	"sync"
)

// The registry makes stores visible process-wide so that the debugger,
// the synchronizer, the management API and the change monitor agree on
// the same instances. Stores register once at startup.

var (
	registryMu sync.RWMutex
	byName     = map[string]*Store{}
	byHash     = map[string]*Store{}
)

// Register adds s to the process-wide registry.
func Register(s *Store) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := byName[s.Name()]; ok {
		return fmt.Errorf("store: %q already registered", s.Name())
	}
	if other, ok := byHash[s.Hash()]; ok {
		return fmt.Errorf("store: %q has the same hash as %q", s.Name(), other.Name())
	}
	byName[s.Name()] = s
	byHash[s.Hash()] = s
	return nil
}

// Get returns the registered store with the given name, or nil.
func Get(name string) *Store {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return byName[name]
}

// ByHash returns the registered store with the given content hash, or
// nil. The synchronizer associates Hello messages this way.
func ByHash(hash string) *Store {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return byHash[hash]
}

// All returns the registered stores in name order.
func All() []*Store {
	registryMu.RLock()
	defer registryMu.RUnlock()

	stores := make([]*Store, 0, len(byName))
	for _, s := range byName {
		stores = append(stores, s)
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].Name() < stores[j].Name() })
	return stores
}

// Reset clears the registry. Only tests use this.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	byName = map[string]*Store{}
	byHash = map[string]*Store{}
}
