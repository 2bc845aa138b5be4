// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/gops/agent"

	"github.com/ClusterCockpit/cc-devstore/internal/config"
	"github.com/ClusterCockpit/cc-devstore/internal/runtimeEnv"
)

const logoString = `
  ___ ___ ___ ___  ___ _  _ ___ _____ ___  ___ ___
 / __/ __|___|   \| __| || / __|_   _/ _ \| _ \ __|
| (_| (__|___| |) | _|| V /\__ \ | || (_) |   / _|
 \___\___|   |___/|___|\_/ |___/ |_| \___/|_|_\___|
`

var (
	version = "1.2.0"
	commit  = "norev"
	date    = "unknown"
)

func main() {
	cliInit()

	if flagVersion {
		fmt.Print(logoString)
		fmt.Printf("Version:\t%s\n", version)
		fmt.Printf("Git hash:\t%s\n", commit)
		fmt.Printf("Build time:\t%s\n", date)
		os.Exit(0)
	}

	cclog.Init(flagLogLevel, flagLogDateTime)

	// Apply .env file, if present, before anything reads the
	// environment (API secret).
	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		cclog.Abortf("Could not parse existing .env file at location './.env'. Application startup failed, exited.\nError: %s\n", err.Error())
	}

	config.Init(flagConfigFile)
	if secret := os.Getenv("CCDEVSTORE_JWT_SECRET"); secret != "" {
		config.Keys.API.JwtSecret = secret
	}

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Abortf("Could not start gops agent with 'gops' flag set. Application startup failed, exited.\nError: %s\n", err.Error())
		}
	}

	switch {
	case flagConsole:
		runConsole(flagConnect)
	case flagServer:
		runServer()
	default:
		fmt.Println("cc-devstore: nothing to do; use -server, -console or -version")
	}
}
