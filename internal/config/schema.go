// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import "github.com/santhosh-tekuri/jsonschema/v5"

// compiledSchema is built once at load; the schema is a string literal,
// so a compile failure is a programming error, not a runtime condition.
var compiledSchema = jsonschema.MustCompileString("config.json", configSchema)

// configSchema is the JSON schema every config file must satisfy.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "identification": { "type": "string" },
    "user": { "type": "string" },
    "group": { "type": "string" },
    "version-tokens": {
      "type": "array",
      "items": { "type": "string" }
    },
    "endpoints": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["type"],
        "properties": {
          "type": { "enum": ["stdio", "pipe", "serial", "zmq"] },
          "layers": {
            "type": "array",
            "items": {
              "enum": ["ascii", "term", "arq", "crc8", "crc16", "segment", "buffer", "print"]
            }
          },
          "device": { "type": "string" },
          "baud": { "type": "integer", "minimum": 50 },
          "in-path": { "type": "string" },
          "out-path": { "type": "string" },
          "listen": { "type": "string" }
        }
      }
    },
    "debugger": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "alias-limit": { "type": "integer", "minimum": 1 },
        "macro-bytes": { "type": "string" },
        "stream-count": { "type": "integer", "minimum": 1 },
        "stream-bytes": { "type": "string" },
        "enable-memory-access": { "type": "boolean" }
      }
    },
    "sync": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "interval": { "type": "string" },
        "hold": { "type": "boolean" },
        "zmq-listen": { "type": "string" },
        "zmq-peers": {
          "type": "array",
          "items": { "type": "string" }
        },
        "nats": {
          "type": "object",
          "additionalProperties": false,
          "required": ["address"],
          "properties": {
            "address": { "type": "string" },
            "username": { "type": "string" },
            "password": { "type": "string" },
            "creds-file-path": { "type": "string" },
            "subject": { "type": "string" }
          }
        },
        "journal-clean-interval": { "type": "string" }
      }
    },
    "api": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "addr": { "type": "string" },
        "jwt-secret": { "type": "string" },
        "rate-limit": { "type": "integer", "minimum": 0 }
      }
    },
    "monitor": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": { "type": "boolean" },
        "subject-prefix": { "type": "string" }
      }
    },
    "computed": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "expr"],
        "properties": {
          "name": { "type": "string" },
          "expr": { "type": "string" }
        }
      }
    }
  }
}`
