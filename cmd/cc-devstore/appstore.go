// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"math"
	"strings"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ClusterCockpit/cc-devstore/internal/config"
	"github.com/ClusterCockpit/cc-devstore/pkg/store"
)

// buildAppStore assembles the daemon's built-in store. Deployments with
// generated stores link their own definitions instead and register them
// next to (or instead of) this one.
func buildAppStore() (*store.Store, error) {
	started := time.Now()

	b := store.NewBuilder("app", true).
		Int32("/ctrl/setpoint", 0).
		Bool("/ctrl/enable", false).
		Double("/meas/temperature", 21.0).
		Double("/meas/humidity", 45.0).
		String("/info/name", 16, "cc-devstore").
		Function("/stats/uptime", store.TypeUint32, 0)

	// Config-defined computed objects become function objects whose
	// read evaluates an expression over the other store values.
	programs := make(map[string]*vm.Program, len(config.Keys.Computed))
	for _, c := range config.Keys.Computed {
		prog, err := expr.Compile(c.Expr, expr.AllowUndefinedVariables())
		if err != nil {
			cclog.Errorf("computed object %s: %v", c.Name, err)
			continue
		}
		b.Function(c.Name, store.TypeDouble, 0)
		programs[c.Name] = prog
	}

	st, err := b.Build()
	if err != nil {
		return nil, err
	}

	err = st.RegisterFunction("/stats/uptime",
		func(_ *store.Store, buf []byte) int {
			secs := uint32(time.Since(started).Seconds())
			buf[0] = byte(secs >> 24)
			buf[1] = byte(secs >> 16)
			buf[2] = byte(secs >> 8)
			buf[3] = byte(secs)
			return 4
		}, nil)
	if err != nil {
		return nil, err
	}

	for name, prog := range programs {
		if err := registerComputed(st, name, prog); err != nil {
			return nil, err
		}
	}

	return st, nil
}

// registerComputed installs the read callback evaluating prog. The
// expression sees every numeric object under its last path segment
// ("/meas/temperature" -> temperature) and a get("/full/name") helper.
func registerComputed(st *store.Store, name string, prog *vm.Program) error {
	return st.RegisterFunction(name,
		func(s *store.Store, buf []byte) int {
			env := exprEnv(s)
			out, err := expr.Run(prog, env)
			if err != nil {
				cclog.Debugf("computed %s: %v", name, err)
				return 0
			}
			v, ok := toFloat(out)
			if !ok {
				return 0
			}
			raw := math.Float64bits(v)
			for i := 0; i < 8; i++ {
				buf[i] = byte(raw >> (56 - 8*i))
			}
			return 8
		}, nil)
}

func exprEnv(s *store.Store) map[string]any {
	env := map[string]any{
		"get": func(name string) float64 {
			o, err := s.Lookup(name)
			if err != nil || o.IsFunction() {
				return 0
			}
			v, err := s.GetFloat64(o)
			if err != nil {
				return 0
			}
			return v
		},
	}
	for _, o := range s.Objects() {
		if o.IsFunction() || !o.Type.IsFixed() {
			continue
		}
		leaf := o.Name[strings.LastIndexByte(o.Name, '/')+1:]
		if _, taken := env[leaf]; taken {
			continue
		}
		if v, err := s.GetFloat64(o); err == nil {
			env[leaf] = v
		}
	}
	return env
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
