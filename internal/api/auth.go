// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// authMiddleware verifies an HS256 bearer token when a secret is
// configured. Without one the API is open, the usual lab setup.
func (api *RestAPI) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if api.JwtSecret == "" {
			next.ServeHTTP(rw, r)
			return
		}

		auth := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			writeError(rw, http.StatusUnauthorized, "bearer token required")
			return
		}

		_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(api.JwtSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			writeError(rw, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(rw, r)
	})
}

// rateLimitMiddleware applies one process-wide token bucket; the API is
// diagnostics, not a data plane.
func (api *RestAPI) rateLimitMiddleware() mux.MiddlewareFunc {
	if api.RateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(api.RateLimit), api.RateLimit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(rw, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(rw, r)
		})
	}
}
