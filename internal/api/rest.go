// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes a small management HTTP API next to the byte
// protocols: object inspection for tooling, synchronizer status, the
// protocol stack layout and Prometheus metrics. It is strictly a
// convenience surface; the debugger protocol remains the source of
// truth for clients on constrained transports.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ClusterCockpit/cc-devstore/internal/synchronizer"
	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

// RestAPI serves the management endpoints.
type RestAPI struct {
	Stores       []*store.Store
	Synchronizer *synchronizer.Synchronizer

	// Stacks maps endpoint labels to their layer names, for /api/debug/stacks.
	Stacks map[string][]string

	// JwtSecret enables bearer auth when non-empty.
	JwtSecret string

	// RateLimit requests per second; 0 disables limiting.
	RateLimit int
}

// MountRoutes attaches all handlers to r.
func (api *RestAPI) MountRoutes(r *mux.Router) {
	sub := r.PathPrefix("/api").Subrouter()
	sub.Use(api.authMiddleware)
	sub.Use(api.rateLimitMiddleware())

	sub.HandleFunc("/stores/", api.getStores).Methods(http.MethodGet)
	sub.HandleFunc("/objects/", api.getObjects).Methods(http.MethodGet)
	sub.HandleFunc("/objects/{name:.+}", api.getObject).Methods(http.MethodGet)
	sub.HandleFunc("/objects/{name:.+}", api.putObject).Methods(http.MethodPut)
	sub.HandleFunc("/sync/status", api.getSyncStatus).Methods(http.MethodGet)
	sub.HandleFunc("/debug/stacks", api.getStacks).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		cclog.Warnf("api: encoding response: %v", err)
	}
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}

type storeInfo struct {
	Name         string `json:"name"`
	Hash         string `json:"hash"`
	LittleEndian bool   `json:"little-endian"`
	BufferSize   int    `json:"buffer-size"`
	Objects      int    `json:"objects"`
	Seq          uint64 `json:"seq"`
}

func (api *RestAPI) getStores(rw http.ResponseWriter, _ *http.Request) {
	out := make([]storeInfo, 0, len(api.Stores))
	for _, st := range api.Stores {
		out = append(out, storeInfo{
			Name:         st.Name(),
			Hash:         st.Hash(),
			LittleEndian: st.LittleEndian(),
			BufferSize:   st.BufferSize(),
			Objects:      len(st.Objects()),
			Seq:          st.Journal().SeqNow(),
		})
	}
	writeJSON(rw, http.StatusOK, out)
}

type objectInfo struct {
	Name     string `json:"name"`
	Store    string `json:"store"`
	Type     string `json:"type"`
	Size     uint32 `json:"size"`
	Function bool   `json:"function"`
}

func (api *RestAPI) getObjects(rw http.ResponseWriter, _ *http.Request) {
	out := []objectInfo{}
	for _, st := range api.Stores {
		st.List("", func(o store.Object) {
			out = append(out, objectInfo{
				Name:     o.Name,
				Store:    st.Name(),
				Type:     o.Type.String(),
				Size:     o.Size,
				Function: o.IsFunction(),
			})
		})
	}
	writeJSON(rw, http.StatusOK, out)
}

// lookup resolves a name (without its leading slash, as it arrives in
// the URL) across all stores.
func (api *RestAPI) lookup(rawName string) (*store.Store, store.Object, error) {
	name := "/" + rawName
	var (
		hitStore *store.Store
		hit      store.Object
		hits     int
	)
	for _, st := range api.Stores {
		if o, err := st.Lookup(name); err == nil {
			hitStore, hit = st, o
			hits++
		}
	}
	if hits != 1 {
		return nil, store.Object{}, fmt.Errorf("no unique object %q", name)
	}
	return hitStore, hit, nil
}

func (api *RestAPI) getObject(rw http.ResponseWriter, r *http.Request) {
	st, o, err := api.lookup(mux.Vars(r)["name"])
	if err != nil {
		writeError(rw, http.StatusNotFound, err.Error())
		return
	}
	v, err := st.Value(o)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"name":  o.Name,
		"store": st.Name(),
		"type":  o.Type.String(),
		"value": v,
	})
}

func (api *RestAPI) putObject(rw http.ResponseWriter, r *http.Request) {
	st, o, err := api.lookup(mux.Vars(r)["name"])
	if err != nil {
		writeError(rw, http.StatusNotFound, err.Error())
		return
	}

	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(rw, http.StatusBadRequest, "malformed body")
		return
	}

	if err := setFromJSON(st, o, body.Value); err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

// setFromJSON writes a JSON value using the accessor matching the
// object's type.
func setFromJSON(st *store.Store, o store.Object, raw json.RawMessage) error {
	t := o.Type.WithoutFunction()
	switch {
	case t == store.TypeBool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		return st.SetBool(o, v)
	case t == store.TypeString || t == store.TypeBlob:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		return st.SetString(o, v)
	case t == store.TypeFloat || t == store.TypeDouble:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		return st.SetFloat64(o, v)
	case t.IsInt():
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			// Tolerate JSON floats on integer objects.
			var f float64
			if err2 := json.Unmarshal(raw, &f); err2 != nil {
				return err
			}
			return st.SetFloat64(o, f)
		}
		return st.SetInt64(o, v)
	}
	return fmt.Errorf("object %s is not writable over the API", o.Name)
}

func (api *RestAPI) getSyncStatus(rw http.ResponseWriter, _ *http.Request) {
	if api.Synchronizer == nil {
		writeJSON(rw, http.StatusOK, []synchronizer.ConnStatus{})
		return
	}
	writeJSON(rw, http.StatusOK, api.Synchronizer.Status())
}

func (api *RestAPI) getStacks(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, api.Stacks)
}
