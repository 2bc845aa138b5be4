// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

func testAPI(t *testing.T, secret string) (*RestAPI, *mux.Router) {
	t.Helper()
	s, err := store.NewBuilder("app", true).
		Int32("/x", 7).
		Double("/ratio", 1.5).
		String("/name", 8, "node").
		Build()
	require.NoError(t, err)

	api := &RestAPI{
		Stores:    []*store.Store{s},
		Stacks:    map[string][]string{"stdio": {"debugger", "ascii", "term", "stdio"}},
		JwtSecret: secret,
	}
	r := mux.NewRouter()
	api.MountRoutes(r)
	return api, r
}

func doRequest(r *mux.Router, method, url, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetStores(t *testing.T) {
	_, r := testAPI(t, "")
	rec := doRequest(r, http.MethodGet, "/api/stores/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stores []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stores))
	require.Len(t, stores, 1)
	assert.Equal(t, "app", stores[0]["name"])
	assert.Len(t, stores[0]["hash"], 40)
}

func TestGetAndPutObject(t *testing.T) {
	_, r := testAPI(t, "")

	rec := doRequest(r, http.MethodGet, "/api/objects/x", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obj))
	assert.Equal(t, "/x", obj["name"])
	assert.EqualValues(t, 7, obj["value"])

	rec = doRequest(r, http.MethodPut, "/api/objects/x", `{"value": 42}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(r, http.MethodGet, "/api/objects/x", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obj))
	assert.EqualValues(t, 42, obj["value"])

	// Abbreviations resolve like in the debugger.
	rec = doRequest(r, http.MethodGet, "/api/objects/r", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(r, http.MethodGet, "/api/objects/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutObjectString(t *testing.T) {
	_, r := testAPI(t, "")
	rec := doRequest(r, http.MethodPut, "/api/objects/name", `{"value": "edge-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(r, http.MethodGet, "/api/objects/name", "")
	var obj map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obj))
	assert.Equal(t, "edge-1", obj["value"])
}

func TestGetObjectsList(t *testing.T) {
	_, r := testAPI(t, "")
	rec := doRequest(r, http.MethodGet, "/api/objects/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var objs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &objs))
	assert.Len(t, objs, 3)
}

func TestAuthRequired(t *testing.T) {
	_, r := testAPI(t, "topsecret")
	rec := doRequest(r, http.MethodGet, "/api/stores/", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStacksEndpoint(t *testing.T) {
	_, r := testAPI(t, "")
	rec := doRequest(r, http.MethodGet, "/api/debug/stacks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "debugger")
}
